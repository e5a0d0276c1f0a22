package nest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func defaultSyntax() Syntax {
	return DefaultConfig().Syntax()
}

func TestIndexText(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		syntax   func(*Syntax)
		want     []Token
	}{
		{
			name:     "single token",
			contents: "<p><!--% v %--></p>",
			want:     []Token{{Name: "v", Start: 3, End: 15}},
		},
		{
			name:     "adjacent tokens close on first end delimiter",
			contents: "<!--% a %--><!--% b %-->",
			want: []Token{
				{Name: "a", Start: 0, End: 12},
				{Name: "b", Start: 12, End: 24},
			},
		},
		{
			name:     "name is trimmed",
			contents: "<!--%\tspaced_out   %-->",
			want:     []Token{{Name: "spaced_out", Start: 0, End: 23}},
		},
		{
			name:     "tokens do not span lines",
			contents: "<!--% a\n %-->",
			want:     nil,
		},
		{
			name:     "empty token is not a token",
			contents: "<!--%%-->",
			want:     nil,
		},
		{
			name:     "escaped token shrinks to the prefix",
			contents: `x \<!--% a %--> <!--% b %-->`,
			syntax:   func(s *Syntax) { s.Escape = `\` },
			want: []Token{
				{Start: 2, End: 3, Escaped: true},
				{Name: "b", Start: 16, End: 28},
			},
		},
		{
			name:     "escape prefix at byte zero",
			contents: `\<!--% a %-->`,
			syntax:   func(s *Syntax) { s.Escape = `\` },
			want:     []Token{{Start: 0, End: 1, Escaped: true}},
		},
		{
			name:     "multi byte escape prefix",
			contents: `!!<!--% a %-->`,
			syntax:   func(s *Syntax) { s.Escape = `!!` },
			want:     []Token{{Start: 0, End: 2, Escaped: true}},
		},
		{
			name:     "prefix without escape configured is literal",
			contents: `\<!--% a %-->`,
			want:     []Token{{Name: "a", Start: 1, End: 13}},
		},
		{
			name:     "fixed indent records the column",
			contents: "<!--% a %-->\n  <!--% b %-->\nxy\n    <!--% c %-->",
			syntax:   func(s *Syntax) { s.FixedIndent = true },
			want: []Token{
				{Name: "a", Start: 0, End: 12, Indent: 0},
				{Name: "b", Start: 15, End: 27, Indent: 2},
				{Name: "c", Start: 35, End: 47, Indent: 4},
			},
		},
		{
			name:     "indent is ignored without fixed indent",
			contents: "    <!--% a %-->",
			want:     []Token{{Name: "a", Start: 4, End: 16}},
		},
		{
			name:     "custom delimiters are literal",
			contents: "{{ a }} [[ b ]]",
			syntax: func(s *Syntax) {
				s.Start = "[["
				s.End = "]]"
			},
			want: []Token{{Name: "b", Start: 8, End: 15}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSyntax()
			if tt.syntax != nil {
				tt.syntax(&s)
			}
			ix := IndexText(tt.contents, s)
			if diff := cmp.Diff(tt.want, ix.Tokens); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
			if ix.Contents != tt.contents {
				t.Errorf("contents changed: got %q", ix.Contents)
			}
			for i := 1; i < len(ix.Tokens); i++ {
				if ix.Tokens[i].Start < ix.Tokens[i-1].End {
					t.Errorf("token %d overlaps token %d", i, i-1)
				}
			}
		})
	}
}

func TestIndexText_Names(t *testing.T) {
	s := defaultSyntax()
	s.Escape = `\`
	ix := IndexText(`<!--% a %--><!--% b %--><!--% a %-->\<!--% hidden %-->`, s)

	want := map[string]struct{}{"a": {}, "b": {}}
	if diff := cmp.Diff(want, ix.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if ix.Has("hidden") {
		t.Error("escaped token should not be a known name")
	}
	if len(ix.Tokens) != 4 {
		t.Errorf("expected 4 token occurrences, got %d", len(ix.Tokens))
	}
}

func TestIndexer_Path(t *testing.T) {
	ixr := newIndexer(defaultSyntax())
	if got := ixr.path("templates", "output/page"); got != "templates/output/page.html" {
		t.Errorf("unexpected path %q", got)
	}

	s := defaultSyntax()
	s.Extension = ""
	ixr = newIndexer(s)
	if got := ixr.path("templates", "page"); got != "templates/page" {
		t.Errorf("unexpected path without extension %q", got)
	}
}
