// Package program provides an in-memory model of the analysed binary.
//
// An Image holds mapped segments, defined functions with their decompiled
// signatures and local variables, and data symbols. It answers the
// questions structure recovery asks of a disassembler: reading pointers,
// telling code from data, naming addresses and retyping variables.
//
// Images are usually loaded from YAML:
//
//	pointer_size: 8
//	segments:
//	  - name: .text
//	    start: 0x401000
//	    size: 0x1000
//	    perm: r-x
//	  - name: .rdata
//	    start: 0x500000
//	    perm: r--
//	    words: [0x401000, 0x401020, 0]
//	functions:
//	  - entry: 0x401000
//	    size: 0x20
//	    name: _ZN3Foo6UpdateEv
//	    signature: "void __fastcall(void *this)"
//	    locals: {this: "void *"}
//	symbols:
//	  0x500000: _ZTV3Foo
package program
