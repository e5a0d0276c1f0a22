package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/nest/pkg/nest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRenderFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"templates/list.html": "<ul>\n  <!--% items %-->\n</ul>\n",
		"templates/item.html": "<li><!--% text %--></li>",
		"templates/raw.html":  "\\<!--% text %--> <!--% text %-->",
		"input.yaml":          "TEMPLATE: list\nitems:\n  - {TEMPLATE: item, text: one}\n  - \"\\n  \"\n  - {TEMPLATE: item, text: two}\n",
		"input.toml":          "TEMPLATE = \"item\"\ntext = \"<b>\"\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func runRender(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"render"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRenderCmd(t *testing.T) {
	dir := writeRenderFixtures(t)
	templates := filepath.Join(dir, "templates")

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name: "yaml file",
			args: []string{"-d", templates, "-i", filepath.Join(dir, "input.yaml")},
			want: "<ul>\n  <li>one</li>\n  <li>two</li>\n</ul>",
		},
		{
			name: "fixed indent",
			args: []string{"-d", templates, "-i", filepath.Join(dir, "input.yaml"), "--fixed-indent"},
			want: "<ul>\n  <li>one</li>\n    <li>two</li>\n</ul>",
		},
		{
			name: "toml file escapes",
			args: []string{"-d", templates, "-i", filepath.Join(dir, "input.toml")},
			want: "<li>&lt;b&gt;</li>",
		},
		{
			name: "no escape",
			args: []string{"-d", templates, "-i", filepath.Join(dir, "input.toml"), "--no-escape"},
			want: "<li><b></li>",
		},
		{
			name:  "stdin json",
			stdin: `{"TEMPLATE": "item", "text": "x"}`,
			args:  []string{"-d", templates},
			want:  "<li>x</li>",
		},
		{
			name:  "labels",
			stdin: `{"TEMPLATE": "item", "text": "x"}`,
			args:  []string{"-d", templates, "--labels"},
			want:  "<!-- BEGIN item -->\n<li>x</li><!-- END item -->",
		},
		{
			name:  "escape char",
			stdin: `{"TEMPLATE": "raw", "text": "x"}`,
			args:  []string{"-d", templates, "--escape-char", `\`},
			want:  "<!--% text %--> x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runRender(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderCmd_Errors(t *testing.T) {
	dir := writeRenderFixtures(t)
	templates := filepath.Join(dir, "templates")

	_, err := runRender(t, `{"TEMPLATE": "item", "bogus": "x"}`, "-d", templates, "--strict")
	assert.ErrorIs(t, err, nest.ErrBadParams)

	_, err = runRender(t, `{"TEMPLATE": "missing"}`, "-d", templates)
	assert.ErrorIs(t, err, nest.ErrTemplateFileNotFound)

	_, err = runRender(t, `{}`, "-d", filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, nest.ErrTemplateDirNotFound)

	_, err = runRender(t, `{"TEMPLATE": true}`, "-d", templates)
	assert.ErrorIs(t, err, nest.ErrUnsupportedValue)
}

func TestRenderCmd_OutputFile(t *testing.T) {
	dir := writeRenderFixtures(t)
	out := filepath.Join(dir, "out.html")

	stdout, err := runRender(t, `{"TEMPLATE": "item", "text": "x"}`, "-d", filepath.Join(dir, "templates"), "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "<li>x</li>", string(content))
}

func TestRenderCmd_ConfigFile(t *testing.T) {
	dir := writeRenderFixtures(t)
	configPath := filepath.Join(dir, "engine.toml")
	config := `
directory = "` + filepath.ToSlash(filepath.Join(dir, "templates")) + `"
start_delimiter = "<!--%"
end_delimiter = "%-->"
label = "TEMPLATE"
extension = "html"
escape_html = false

[defaults]
text = "fallback"
`
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	got, err := runRender(t, `{"TEMPLATE": "item"}`, "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "<li>fallback</li>", got)
}

func TestVersionCmd(t *testing.T) {
	cmd := NewRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "nest version dev (commit none, built unknown)\n", stdout.String())
}

func TestRenderCmd_ServeConfigFile(t *testing.T) {
	dir := writeRenderFixtures(t)
	templates := filepath.ToSlash(filepath.Join(dir, "templates"))

	serveJSON := DefaultConfig()
	serveJSON.Nest.Directory = templates
	serveJSON.Nest.EscapeHTML = false
	jsonPath := filepath.Join(dir, "config.json")
	data, err := encodeConfig(jsonPath, serveJSON)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, data, 0644))

	got, err := runRender(t, `{"TEMPLATE": "item", "text": "<i>"}`, "--config", jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "<li><i></li>", got, "nest_config settings must apply")

	tomlPath := filepath.Join(dir, "config.toml")
	tomlConfig := `
[server_config]
site_addr = ":9000"

[nest_config]
directory = "` + templates + `"

[nest_config.defaults]
text = "from serve config"
`
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlConfig), 0644))
	got, err = runRender(t, `{"TEMPLATE": "item"}`, "--config", tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "<li>from serve config</li>", got)
}

func TestRenderCmd_ConfigUnknownKeys(t *testing.T) {
	dir := writeRenderFixtures(t)
	templates := filepath.ToSlash(filepath.Join(dir, "templates"))

	files := map[string]string{
		"typo.json":    `{"directory": "` + templates + `", "escape_htlm": false}`,
		"nested.json":  `{"nest_config": {"directory": "` + templates + `", "bogus": 1}}`,
		"typo.toml":    "directory = \"" + templates + "\"\nescape_htlm = false\n",
		"nested.toml":  "[nest_config]\ndirectory = \"" + templates + "\"\nbogus = 1\n",
		"server.json":  `{"server_config": {"site_addr": ":1"}}`,
		"unknown.toml": "[something_else]\ndirectory = \"x\"\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := runRender(t, `{"TEMPLATE": "item", "text": "x"}`, "--config", path)
			assert.ErrorContains(t, err, "failed to parse config file")
		})
	}
}
