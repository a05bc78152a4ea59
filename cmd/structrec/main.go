package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/layout"
	"github.com/wippyai/structrecover/program"
	"github.com/wippyai/structrecover/session"
)

func main() {
	var (
		sessionFile = flag.String("session", "", "Path to session file")
		list        = flag.Bool("list", false, "List recovered fields and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		name        = flag.String("name", "", "Structure name")
		yes         = flag.Bool("yes", false, "Accept generated declarations without confirmation")
		packRows    = flag.String("pack-rows", "", "Pack rows FIRST:LAST into a substructure before finalizing")
		subName     = flag.String("sub-name", "", "Name of the substructure packed by -pack-rows (default <name>_sub_<offset>)")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *sessionFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: structrec -session <file.yaml> [-name N] [-yes] [-pack-rows 2:5 [-sub-name S]]")
		fmt.Fprintln(os.Stderr, "       structrec -session <file.yaml> -list")
		fmt.Fprintln(os.Stderr, "       structrec -session <file.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fail(err)
		}
		defer logger.Sync()
		layout.SetLogger(logger)
		program.SetLogger(logger)
		session.SetLogger(logger)
	}

	s, err := session.Open(*sessionFile)
	if err != nil {
		fail(err)
	}
	if *name != "" {
		s.Accumulator.SetStructureName(*name)
	}

	if *interactive {
		if err := runInteractive(*sessionFile, s); err != nil {
			fail(err)
		}
		return
	}

	if err := run(s, *list, *yes, *packRows, *subName); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
	os.Exit(1)
}

func run(s *session.Session, listOnly, yes bool, packRows, subName string) error {
	acc := s.Accumulator

	fmt.Printf("Structure: %s\n", acc.StructureName())
	fmt.Printf("Fields: %d\n", acc.Len())
	for _, addr := range s.Rejected {
		fmt.Printf("Skipped vtable candidate at %s\n", addr)
	}
	fmt.Println()
	printRows(os.Stdout, acc.Rows())

	if listOnly {
		return nil
	}

	var c structrecover.Confirmer = structrecover.AcceptAll
	if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
		c = structrecover.ConfirmFunc(confirmDeclaration)
	}

	if packRows != "" {
		rows, err := parseRows(packRows)
		if err != nil {
			return err
		}
		res, err := packSubstructure(acc, rows, subName, c)
		if err != nil {
			return fmt.Errorf("pack rows %s: %w", packRows, err)
		}
		printResult(os.Stdout, res)
		fmt.Println()
		printRows(os.Stdout, acc.Rows())
	}

	res, err := acc.Finalize(c)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	printResult(os.Stdout, res)
	return nil
}

// packSubstructure packs rows under subName, or under a name derived from
// the outer structure and the first row's offset when subName is empty.
// The outer structure name is restored afterwards.
func packSubstructure(acc *layout.Accumulator, rows []int, subName string, c structrecover.Confirmer) (*layout.Result, error) {
	name := acc.StructureName()
	if subName == "" && len(rows) > 0 {
		if f := acc.Item(rows[0]); f != nil {
			subName = fmt.Sprintf("%s_sub_%X", name, f.Offset())
		}
	}
	if subName != "" {
		acc.SetStructureName(subName)
	}
	defer acc.SetStructureName(name)
	return acc.PackSubstructure(rows, c)
}

// parseRows expands "FIRST:LAST" into the inclusive list of row indices.
func parseRows(spec string) ([]int, error) {
	first, last, ok := strings.Cut(spec, ":")
	if !ok {
		last = first
	}
	lo, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return nil, fmt.Errorf("invalid row %q", first)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return nil, fmt.Errorf("invalid row %q", last)
	}
	if hi < lo {
		return nil, fmt.Errorf("invalid row range %q", spec)
	}
	rows := make([]int, 0, hi-lo+1)
	for r := lo; r <= hi; r++ {
		rows = append(rows, r)
	}
	return rows, nil
}

var (
	disabledClr  = color.New(color.FgHiBlack)
	collisionClr = color.New(color.FgYellow)
	originClr    = color.New(color.FgRed)
	vtableClr    = color.New(color.Bold)
)

func rowColor(r layout.Row) *color.Color {
	switch {
	case !r.Enabled:
		return disabledClr
	case r.Collision:
		return collisionClr
	case r.Origin:
		return originClr
	case r.VirtualTable:
		return vtableClr
	}
	return nil
}

func printRows(w io.Writer, rows []layout.Row) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Row", "Offset", "Type", "Name", "State"})
	for i, r := range rows {
		var state []string
		if !r.Enabled {
			state = append(state, "disabled")
		}
		if r.Collision {
			state = append(state, "collision")
		}
		if r.Origin {
			state = append(state, "origin")
		}
		cells := []string{strconv.Itoa(i), r.Offset, r.Type, r.Name, strings.Join(state, ",")}
		if clr := rowColor(r); clr != nil {
			for j := range cells {
				cells[j] = clr.Sprint(cells[j])
			}
		}
		table.Append(cells)
	}
	table.Render()
}

func printResult(w io.Writer, res *layout.Result) {
	fmt.Fprintf(w, "\n%s\n", res.Type.Declaration(res.Type.Name))
	for _, b := range res.Rebound {
		fmt.Fprintf(w, "%s %s -> %s\n", color.GreenString("retyped"), b, res.Pointer)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "%s %s: %v\n", color.RedString("failed"), f.Binding, f.Err)
	}
}
