package mcp_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/mcp"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
)

const dataJSON = `{
  "commits": [
    {"commit": "aaa", "time": 0, "message": "first"},
    {"commit": "bbb", "time": 86400, "message": "second"}
  ],
  "tests": [{"id": "size", "name": "Build - Size", "unit": "bytes"}],
  "results": [
    {"commit": "aaa", "testID": "size", "value": 100},
    {"commit": "bbb", "testID": "size", "value": 120}
  ]
}`

func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func loader(t *testing.T) *dataset.Loader {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(dataJSON), 0o600))

	return dataset.NewLoader(dataset.FileSource{Dir: dir}, "data.json")
}

func TestMCPServer_ListToolNames(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})

	assert.Equal(t, []string{
		mcp.ToolNameSeries,
		mcp.ToolNameTooltip,
		mcp.ToolNameViewState,
	}, srv.ListToolNames())
}

func TestMCPServer_InMemoryTransport_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, toolsResult)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	assert.ElementsMatch(t, []string{"trendscope_series", "trendscope_tooltip", "trendscope_viewstate"}, toolNames)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestMCPServer_InMemoryTransport_CallSeries(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Loader: loader(t)}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameSeries,
		Arguments: map[string]any{"metrics": []string{"size"}},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"metric": "size"`)
}

func TestMCPServer_InMemoryTransport_InvalidInputIsToolError(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Loader: loader(t)}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameTooltip,
		Arguments: map[string]any{"commit": "zzz"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestMCPServer_MetricsAndTracing(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	session := connect(t, mcp.NewServer(mcp.ServerDeps{
		Metrics: red,
		Tracer:  tp.Tracer("test"),
	}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameViewState,
		Arguments: map[string]any{"fragment": "#size;;1;2", "default_metric": "size"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	last, ok := result.Content[len(result.Content)-1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, last.Text, "trace_id=")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.trendscope_viewstate", spans[0].Name)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make([]string, 0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}

	assert.Contains(t, names, "trendscope.requests.total")
}
