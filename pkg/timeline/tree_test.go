package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

func TestMetricTree(t *testing.T) {
	t.Parallel()

	tree := timeline.MetricTree([]timeline.Metric{
		{ID: "size", Name: "Build - Binary - Size"},
		{ID: "time", Name: "Build - Time"},
		{ID: "mem", Name: "Runtime - Memory"},
		{ID: "plain"},
	})

	require.Len(t, tree, 3)

	build := tree[0]
	assert.Equal(t, "Build", build.Label)
	assert.Empty(t, build.MetricID)
	require.Len(t, build.Children, 2)
	assert.Equal(t, "Binary", build.Children[0].Label)
	assert.Equal(t, "size", build.Children[0].Children[0].MetricID)
	assert.Equal(t, "time", build.Children[1].MetricID)

	assert.Equal(t, "Runtime", tree[1].Label)
	assert.Equal(t, "plain", tree[2].MetricID)
}
