package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/CTAG07/nest/pkg/nest"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

type RenderOptions struct {
	ConfigPath  string
	Dir         string
	Input       string
	Output      string
	Extension   string
	Labels      bool
	FixedIndent bool
	Strict      bool
	EscapeChar  string
	NoEscape    bool
	Sanitize    bool
	Debug       bool
}

func NewRenderOptions() *RenderOptions {
	return &RenderOptions{}
}

func NewRenderCmd(o *RenderOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an input tree against a template directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&o.ConfigPath, "config", "", "Engine config file (.json or .toml); flags below override it")
	cmd.Flags().StringVarP(&o.Dir, "dir", "d", "", "Template directory")
	cmd.Flags().StringVarP(&o.Input, "input", "i", "-", "Input tree file (.json, .yaml, .toml) or - for JSON on stdin")
	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "Write the result to this file instead of stdout")
	cmd.Flags().StringVar(&o.Extension, "ext", "", "Template file extension")
	cmd.Flags().BoolVar(&o.Labels, "labels", false, "Wrap each rendered template in BEGIN/END comments")
	cmd.Flags().BoolVar(&o.FixedIndent, "fixed-indent", false, "Indent multi-line substitutions to the token column")
	cmd.Flags().BoolVar(&o.Strict, "strict", false, "Fail on keys that name no token in the template")
	cmd.Flags().StringVar(&o.EscapeChar, "escape-char", "", "Prefix that suppresses a token")
	cmd.Flags().BoolVar(&o.NoEscape, "no-escape", false, "Disable HTML escaping of text values")
	cmd.Flags().BoolVar(&o.Sanitize, "sanitize", false, "Sanitize text values instead of escaping them")
	cmd.Flags().BoolVar(&o.Debug, "debug", false, "Log engine activity to stderr")
	return cmd
}

// engineConfig layers the command line flags over the config file, or over
// the defaults when no file was given. The file may hold a bare engine
// config or a serve config with the engine config under nest_config.
func (o *RenderOptions) engineConfig() (*nest.Config, error) {
	config := nest.DefaultConfig()
	if o.ConfigPath != "" {
		data, err := os.ReadFile(o.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if isTOML(o.ConfigPath) {
			err = decodeEngineTOML(data, config)
		} else {
			err = decodeEngineJSON(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if o.Dir != "" {
		config.Directory = o.Dir
	}
	if o.Extension != "" {
		config.Extension = o.Extension
	}
	if o.EscapeChar != "" {
		config.TokenEscape = o.EscapeChar
	}
	config.ShowLabels = config.ShowLabels || o.Labels
	config.FixedIndent = config.FixedIndent || o.FixedIndent
	config.DieOnBadParams = config.DieOnBadParams || o.Strict
	config.SanitizeHTML = config.SanitizeHTML || o.Sanitize
	if o.NoEscape {
		config.EscapeHTML = false
		config.SanitizeHTML = false
	}
	// One-shot renders gain nothing from preloading the whole directory.
	config.CacheTemplates = false
	return config, nil
}

func (o *RenderOptions) readInput(stdin io.Reader) (nest.Value, error) {
	if o.Input == "" || o.Input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return nest.ParseJSON(data)
	}
	return nest.ParseFile(o.Input)
}

func (o *RenderOptions) Run(stdin io.Reader, stdout, stderr io.Writer) error {
	config, err := o.engineConfig()
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if o.Debug {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	engine, err := nest.New(logger, config)
	if err != nil {
		return err
	}

	tree, err := o.readInput(stdin)
	if err != nil {
		return err
	}

	if o.Output == "" {
		return engine.RenderTo(stdout, tree)
	}
	var buf bytes.Buffer
	if err = engine.RenderTo(&buf, tree); err != nil {
		return err
	}
	if err = atomic.WriteFile(o.Output, &buf); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// decodeEngineJSON rejects unknown keys so a misplaced file fails loudly
// instead of rendering with defaults.
func decodeEngineJSON(data []byte, config *nest.Config) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	if wrapped, ok := top["nest_config"]; ok {
		data = wrapped
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(config)
}

func decodeEngineTOML(data []byte, config *nest.Config) error {
	var top map[string]toml.Primitive
	md, err := toml.Decode(string(data), &top)
	if err != nil {
		return err
	}
	root := ""
	if wrapped, ok := top["nest_config"]; ok {
		root = "nest_config"
		err = md.PrimitiveDecode(wrapped, config)
	} else {
		md, err = toml.Decode(string(data), config)
	}
	if err != nil {
		return err
	}

	for _, key := range md.Undecoded() {
		if root != "" {
			if key[0] != root {
				continue
			}
			key = key[1:]
		}
		// Defaults decodes its own table.
		if len(key) == 0 || key[0] == "defaults" {
			continue
		}
		return fmt.Errorf("unknown config key %q", key.String())
	}
	return nil
}
