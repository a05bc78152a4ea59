package token

import "testing"

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		values []string
		types  []Type
	}{
		{
			"member",
			"int field_0;",
			[]string{"int", "field_0", ";"},
			[]Type{Ident, Ident, Punct},
		},
		{
			"array",
			"_BYTE gap_4[12];",
			[]string{"_BYTE", "gap_4", "[", "12", "]", ";"},
			[]Type{Ident, Ident, Punct, Number, Punct, Punct},
		},
		{
			"function pointer",
			"int (__thiscall *Update)(void *, ...);",
			[]string{"int", "(", "__thiscall", "*", "Update", ")", "(", "void", "*", ",", "...", ")", ";"},
			[]Type{Ident, Punct, Ident, Punct, Ident, Punct, Punct, Ident, Punct, Punct, Ident, Punct, Punct},
		},
		{
			"scoped name",
			"Foo::Bar *p",
			[]string{"Foo::Bar", "*", "p"},
			[]Type{Ident, Punct, Ident},
		},
		{
			"hex number",
			"char x[0x10]",
			[]string{"char", "x", "[", "0x10", "]"},
			[]Type{Ident, Ident, Punct, Number, Punct},
		},
		{
			"comments",
			"// header\nint /* inline */ a;",
			[]string{"int", "a", ";"},
			[]Type{Ident, Ident, Punct},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := Tokenize(tt.input)
			if len(toks) != len(tt.values) {
				t.Fatalf("got %d tokens %v, want %d", len(toks), toks, len(tt.values))
			}
			for i, tok := range toks {
				if tok.Value != tt.values[i] {
					t.Errorf("token %d value = %q, want %q", i, tok.Value, tt.values[i])
				}
				if tok.Type != tt.types[i] {
					t.Errorf("token %d type = %v, want %v", i, tok.Type, tt.types[i])
				}
			}
		})
	}
}

func TestTokenizeLines(t *testing.T) {
	toks := Tokenize("struct A\n{\n  int x;\n};")
	if toks[len(toks)-1].Line != 4 {
		t.Errorf("last token line = %d, want 4", toks[len(toks)-1].Line)
	}
}
