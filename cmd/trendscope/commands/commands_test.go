package commands_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/cmd/trendscope/commands"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
)

const dataJSON = `{
  "commits": [
    {"commit": "aaa", "time": 0, "message": "first"},
    {"commit": "bbb", "time": 86400, "message": "second"},
    {"commit": "ccc", "time": 172800, "message": "third"}
  ],
  "tests": [
    {"id": "size", "name": "Build - Size", "unit": "bytes"},
    {"id": "time", "name": "Build - Time", "unit": "nanoseconds"}
  ],
  "results": [
    {"commit": "aaa", "testID": "size", "value": 100},
    {"commit": "bbb", "testID": "size", "value": 120},
    {"commit": "ccc", "testID": "size", "value": 90},
    {"commit": "aaa", "testID": "time", "value": 5000},
    {"commit": "ccc", "testID": "time", "value": 7000}
  ]
}`

type env struct {
	dir     string
	dataset string
	config  string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := t.TempDir()
	e := &env{
		dir:     dir,
		dataset: filepath.Join(dir, "data.json"),
		config:  filepath.Join(dir, "trendscope.yaml"),
	}

	require.NoError(t, os.WriteFile(e.dataset, []byte(dataJSON), 0o600))
	require.NoError(t, os.WriteFile(e.config, []byte("logging:\n  level: error\ncache:\n  backend: none\n"), 0o600))

	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var opts commands.GlobalOptions

	root := &cobra.Command{Use: "trendscope", SilenceUsage: true, SilenceErrors: true}
	opts.Register(root)
	root.AddCommand(
		commands.NewRenderCommand(&opts),
		commands.NewCondenseCommand(&opts),
		commands.NewInspectCommand(&opts),
		commands.NewValidateCommand(&opts),
		commands.NewVersionCommand(),
	)

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config}, args...))

	err := root.Execute()

	return out.String(), err
}

func TestCondense_JSON(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.run(t, "condense", e.dataset, "--metric", "time", "--max-points", "0", "--format", "json")
	require.NoError(t, err)

	var doc struct {
		Series []struct {
			Metric string `json:"metric"`
			Points []struct {
				Value *float64 `json:"value"`
				Rev   string   `json:"rev"`
			} `json:"points"`
		} `json:"series"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	require.Len(t, doc.Series, 1)
	assert.Equal(t, "time", doc.Series[0].Metric)

	points := doc.Series[0].Points
	require.Len(t, points, 3)
	assert.Equal(t, "aaa", points[0].Rev)
	assert.Nil(t, points[1].Value)
	assert.Equal(t, "ccc", points[2].Rev)
}

func TestCondense_TableAndYAML(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.run(t, "condense", e.dataset, "--max-points", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 3 points")
	assert.Contains(t, out, "1970-01-02")

	out, err = e.run(t, "condense", e.dataset, "--format", "yaml", "--start", "0", "--stop", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "metric: size")
	assert.Contains(t, out, "stop: 0")
}

func TestCondense_Errors(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.run(t, "condense", e.dataset, "--format", "xml")
	require.ErrorIs(t, err, commands.ErrUnknownFormat)

	_, err = e.run(t, "condense", e.dataset, "--metric", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")

	_, err = e.run(t, "condense", filepath.Join(e.dir, "missing.json"))
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.run(t, "inspect", "ccc", e.dataset, "--metric", "time")
	require.NoError(t, err)
	assert.Contains(t, out, "Build - Time")
	assert.Contains(t, out, "third")
	assert.Contains(t, out, "1 untested commit")

	out, err = e.run(t, "inspect", "bbb", e.dataset, "--json")
	require.NoError(t, err)

	var views []tooltip.View
	require.NoError(t, json.Unmarshal([]byte(out), &views), out)
	require.Len(t, views, 1, "time is not measured at bbb")
	assert.Equal(t, "size", views[0].MetricID)

	_, err = e.run(t, "inspect", "bbb", e.dataset, "--metric", "time")
	require.ErrorIs(t, err, tooltip.ErrNullPoint)

	_, err = e.run(t, "inspect", "zzz", e.dataset)
	require.ErrorIs(t, err, tooltip.ErrUnknownCommit)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	bad := filepath.Join(e.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("commits: []\ntests: []\n"), 0o600))

	out, err := e.run(t, "validate", e.dataset)
	require.NoError(t, err)
	assert.Contains(t, out, "3 commits, 2 tests, 5 results")

	out, err = e.run(t, "validate", e.dataset, bad)
	require.ErrorIs(t, err, commands.ErrInvalidFiles)
	assert.Contains(t, out, "FAIL "+bad)
	assert.Contains(t, out, "results")
}

func TestRender(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := filepath.Join(e.dir, "page.html")

	out, err := e.run(t, "render", e.dataset, "--fragment", "time;;;", "--theme", "dark", "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	page, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(page), "echart-box")
	assert.Contains(t, string(page), `data-metric="time"`)
	assert.NotContains(t, string(page), "/api/sessions")
}

func TestRender_DatasetFailureWritesErrorPage(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.run(t, "render", filepath.Join(e.dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, out, "An error occurred while loading the graph data")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.run(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}

func TestServeAndMCPCommands_Flags(t *testing.T) {
	t.Parallel()

	var opts commands.GlobalOptions

	serve := commands.NewServeCommand(&opts)
	assert.Equal(t, "serve", serve.Use)
	require.NotNil(t, serve.Flags().Lookup("dataset"))
	require.NotNil(t, serve.Flags().Lookup("port"))

	mcpCmd := commands.NewMCPCommand(&opts)
	assert.Equal(t, "mcp", mcpCmd.Use)
	assert.NotEmpty(t, mcpCmd.Long)

	flag := mcpCmd.Flags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
