package nest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Syntax describes how tokens are written in template files and how debug
// labels are rendered around them.
type Syntax struct {
	Start        string
	End          string
	Escape       string
	FixedIndent  bool
	Label        string
	Extension    string
	CommentStart string
	CommentEnd   string
}

// Token is a single placeholder occurrence inside a template.
type Token struct {
	// Name is the trimmed text between the delimiters. Empty for escaped tokens.
	Name string

	// Start and End are byte offsets of the full delimited text. For escaped
	// tokens they cover only the escape prefix.
	Start int
	End   int

	// Indent is the column of the opening delimiter. Only set in fixed indent mode.
	Indent int

	// Escaped tokens are emitted literally, minus the escape prefix.
	Escaped bool
}

// Index is a parsed template: its literal text and every token in file order.
type Index struct {
	Contents string
	Tokens   []Token
	Names    map[string]struct{}
	ModTime  time.Time
}

// Has reports whether name appears as a non-escaped token in the template.
func (ix *Index) Has(name string) bool {
	_, ok := ix.Names[name]
	return ok
}

type indexer struct {
	syntax Syntax
	re     *regexp.Regexp
}

func newIndexer(s Syntax) *indexer {
	return &indexer{
		syntax: s,
		re:     regexp.MustCompile(regexp.QuoteMeta(s.Start) + "(.+?)" + regexp.QuoteMeta(s.End)),
	}
}

// IndexText scans contents once and returns the tokens found using syntax s.
func IndexText(contents string, s Syntax) *Index {
	return newIndexer(s).index(contents)
}

func (ixr *indexer) index(contents string) *Index {
	ix := &Index{
		Contents: contents,
		Names:    make(map[string]struct{}),
	}
	esc := ixr.syntax.Escape
	prevEnd := 0

	for _, m := range ixr.re.FindAllStringSubmatchIndex(contents, -1) {
		start, end := m[0], m[1]

		// The prefix must not reach back into the previous token's span.
		if esc != "" && start-len(esc) >= prevEnd && contents[start-len(esc):start] == esc {
			ix.Tokens = append(ix.Tokens, Token{
				Start:   start - len(esc),
				End:     start,
				Escaped: true,
			})
			prevEnd = end
			continue
		}
		prevEnd = end

		indent := 0
		if ixr.syntax.FixedIndent {
			// LastIndex yields -1 without a newline, so the column counts from file start.
			indent = start - (strings.LastIndexByte(contents[:start], '\n') + 1)
		}

		name := strings.TrimSpace(contents[m[2]:m[3]])
		ix.Names[name] = struct{}{}
		ix.Tokens = append(ix.Tokens, Token{
			Name:   name,
			Start:  start,
			End:    end,
			Indent: indent,
		})
	}
	return ix
}

// path maps a template name onto its file below dir.
func (ixr *indexer) path(dir, name string) string {
	file := name
	if ixr.syntax.Extension != "" {
		file = name + "." + ixr.syntax.Extension
	}
	return filepath.Join(dir, filepath.FromSlash(file))
}

// stat resolves the template file for name, failing with
// ErrTemplateFileNotFound for missing files, directories and names that
// climb out of dir.
func (ixr *indexer) stat(dir, name string) (string, fs.FileInfo, error) {
	path := ixr.path(dir, name)
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return path, nil, fmt.Errorf("%w at %q", ErrTemplateFileNotFound, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil, fmt.Errorf("%w at %q", ErrTemplateFileNotFound, path)
		}
		return path, nil, fmt.Errorf("%w %q: %w", ErrTemplateFileRead, path, err)
	}
	if info.IsDir() {
		return path, nil, fmt.Errorf("%w at %q", ErrTemplateFileNotFound, path)
	}
	return path, info, nil
}

// load reads and indexes the template file at path.
func (ixr *indexer) load(path string, modTime time.Time) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrTemplateFileRead, path, err)
	}
	ix := ixr.index(string(data))
	ix.ModTime = modTime
	return ix, nil
}
