// Package structrecover recovers composite data layouts from the way a
// decompiled program accesses memory through a base pointer.
//
// Observed accesses become candidate fields in a layout accumulator. The
// accumulator keeps candidates sorted, flags overlapping ones, infers array
// extents from neighbouring fields, folds recovered virtual tables in as
// typed sub-structures, and finally packs everything into a gapless struct
// that is registered with the local type library and applied back to the
// variables the fields were observed through.
//
// # Architecture Overview
//
//	structrecover/       Root package with the host collaborator interfaces
//	├── layout/          Candidate fields, vtables, the accumulator and packing
//	├── ctype/           C type model, declaration printer/parser, type registry
//	├── program/         In-memory program image implementing the host interfaces
//	├── session/         Session files replaying recorded observations
//	├── errors/          Structured error types
//	└── cmd/structrec/   Command line and interactive editor
//
// # Quick Start
//
//	img, _ := program.Load(f)
//	reg := ctype.NewRegistry(img.PointerSize())
//	acc := layout.New(layout.Config{
//	    Memory: img, Signatures: img, Symbols: img,
//	    Rebinder: img, Registry: reg,
//	})
//
//	acc.Add(layout.NewScalarField(0, intType, binding, 0))
//	acc.Add(layout.NewScalarField(8, intType, binding, 0))
//
//	t, err := acc.Pack(0, acc.Len(), structrecover.AcceptAll)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(t.Declaration(t.Name))
//
// # Collaborators
//
// The host disassembler is reached only through the small interfaces in
// this package: Memory answers questions about code and pointers, Signatures
// and Symbols describe functions, Rebinder retypes local variables and
// Confirmer lets a user edit the generated declaration before it is
// committed.
package structrecover
