package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/velto"
	"github.com/conneroisu/velto/internal/config"
	"github.com/conneroisu/velto/internal/logging"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	versionFormat, versionShort, versionDetailed = "text", false, false
	configFormat = "yaml"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetErr(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "velto ")

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	t.Setenv("VELTO_SERVER_PORT", "9999")

	out, err := execute(t, "config", "show", "--format", "json")
	require.NoError(t, err)

	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 9999, shown.Server.Port)
	assert.Equal(t, "reject", shown.Server.UnknownMethod)

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "server:")
	assert.Contains(t, out, "port: 9999")

	_, err = execute(t, "config", "show", "--format", "toml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	t.Setenv("VELTO_SERVER_UNKNOWN_METHOD", "teapot")
	_, err = execute(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_method")
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"8080", false},
		{"0", false},
		{"65535", false},
		{"65536", true},
		{"-1", true},
		{"http", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidatePort(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, ValidateDirExists(dir))
	assert.NoError(t, ValidateDirExists(filepath.Join(dir, "missing")))
	assert.Error(t, ValidateDirExists(file))
}

func TestServeRejectsFileAsDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, ValidateDirList(dir+", "+filepath.Join(dir, "missing")))
	assert.Error(t, ValidateDirList(dir+","+file))

	for _, name := range []string{"static", "watch"} {
		flag := serveCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		_, wrapped := flag.Value.(*validatingValue)
		assert.True(t, wrapped, name)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringSlice("static", nil, "")
	addFlagValidation(flags, "static", ValidateDirList)

	require.Error(t, flags.Parse([]string{"--static", file}))
	require.NoError(t, flags.Parse([]string{"--static", dir, "--static", "public"}))
	dirs, err := flags.GetStringSlice("static")
	require.NoError(t, err)
	assert.Equal(t, []string{dir, "public"}, dirs)
}

func TestFlagValidation(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.Int("port", 8080, "")
	addFlagValidation(flags, "port", ValidatePort)

	require.Error(t, flags.Parse([]string{"--port", "70000"}))
	require.NoError(t, flags.Parse([]string{"--port", "3000"}))
	port, err := flags.GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 3000, port)

	addFlagValidation(flags, "missing", ValidatePort)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("bind-test", "", "")
	bindFlags(flags, map[string]string{"bind-test": "test.bind_key"})

	require.NoError(t, flags.Parse([]string{"--bind-test", "value"}))
	assert.Equal(t, "value", viper.GetString("test.bind_key"))
}

func TestNewApp(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<p>hi</p>"), 0o644))

	v := viper.New()
	v.Set("static.dirs", []string{staticDir})
	v.Set("development.enabled", true)
	v.Set("development.watch_dirs", []string{"content"})
	v.Set("development.templates_dir", "views")
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	app := newApp(cfg, logging.NewNop(), nil, io.Discard)

	assert.True(t, app.IsDevMode())
	assert.Equal(t, []string{staticDir, "content"}, app.StaticDirs())
	assert.Equal(t, []string{staticDir, "content", "views"}, app.WatchDirs())

	res := velto.NewTestRequest("GET", "/healthz").Send(app)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ok", res.BodyString())
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
	assert.Contains(t, res.Header.Get("Content-Security-Policy"), "ws://localhost:")

	res = velto.NewTestRequest("GET", "/index.html").Send(app)
	assert.Equal(t, "<p>hi</p>", res.BodyString())
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
}
