package nest

// Config holds all configuration options for the engine.
type Config struct {
	// Directory is the root that template names are resolved against.
	Directory string `json:"directory" toml:"directory"`

	// Delimiters mark a token in a template file, e.g. <!--% name %-->.
	StartDelimiter string `json:"start_delimiter" toml:"start_delimiter"`
	EndDelimiter   string `json:"end_delimiter" toml:"end_delimiter"`

	// Label is the key of a Keyed value that names its template.
	Label string `json:"label" toml:"label"`

	// Extension is appended to template names to find the file. May be empty.
	Extension string `json:"extension" toml:"extension"`

	// ShowLabels wraps every rendered template in BEGIN/END comments.
	ShowLabels bool `json:"show_labels" toml:"show_labels"`

	// CommentStart and CommentEnd delimit the ShowLabels comments.
	CommentStart string `json:"comment_start" toml:"comment_start"`
	CommentEnd   string `json:"comment_end" toml:"comment_end"`

	// FixedIndent re-indents multi-line substitutions to the token's column.
	FixedIndent bool `json:"fixed_indent" toml:"fixed_indent"`

	// DieOnBadParams rejects keys that don't name a token in the template.
	DieOnBadParams bool `json:"die_on_bad_params" toml:"die_on_bad_params"`

	// TokenEscape, when set, suppresses a token written right after it:
	// \<!--% token %--> renders as <!--% token %-->.
	TokenEscape string `json:"token_escape" toml:"token_escape"`

	// Defaults are substituted when a Keyed value omits a token.
	Defaults Defaults `json:"defaults" toml:"defaults"`

	// EscapeHTML escapes Text leaves before substitution.
	EscapeHTML bool `json:"escape_html" toml:"escape_html"`

	// SanitizeHTML runs Text leaves through a UGC sanitizer policy instead of
	// escaping them. Takes precedence over EscapeHTML.
	SanitizeHTML bool `json:"sanitize_html" toml:"sanitize_html"`

	// CacheTemplates keeps indexed templates in memory, re-indexing only when
	// the file modification time advances. New preloads the whole directory.
	CacheTemplates bool `json:"cache_templates" toml:"cache_templates"`
}

// DefaultConfig returns a Config with the stock <!--% %--> syntax, HTML
// escaping and caching enabled, rooted at ./templates.
func DefaultConfig() *Config {
	return &Config{
		Directory:      "templates",
		StartDelimiter: "<!--%",
		EndDelimiter:   "%-->",
		Label:          "TEMPLATE",
		Extension:      "html",
		ShowLabels:     false,
		CommentStart:   "<!--",
		CommentEnd:     "-->",
		FixedIndent:    false,
		DieOnBadParams: false,
		TokenEscape:    "",
		Defaults:       Defaults{},
		EscapeHTML:     true,
		SanitizeHTML:   false,
		CacheTemplates: true,
	}
}

// Syntax returns the token syntax described by the config.
func (c *Config) Syntax() Syntax {
	return Syntax{
		Start:        c.StartDelimiter,
		End:          c.EndDelimiter,
		Escape:       c.TokenEscape,
		FixedIndent:  c.FixedIndent,
		Label:        c.Label,
		Extension:    c.Extension,
		CommentStart: c.CommentStart,
		CommentEnd:   c.CommentEnd,
	}
}
