// Package ctype models the C-like types a decompiler works with and the
// local type library recovered structures are registered in.
//
// Types print as C declarations:
//
//	t := ctype.Struct("Player", []ctype.Member{
//	    {Name: "hp", Type: hp, Offset: 0, Size: 4},
//	    {Name: "gap_4", Type: ctype.Array(ctype.Byte(), 4), Offset: 4, Size: 4},
//	})
//	fmt.Println(t.Declaration("Player"))
//
// and parse back with ParseDeclaration, which lays members out back to
// back with no implicit alignment; padding is always an explicit member.
//
// The Registry replaces a type of the same name on registration and
// rejects builtin names, invalid identifiers, empty structs, and structs
// that contain themselves by value.
package ctype
