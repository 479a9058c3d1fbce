package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/trendscope/pkg/version"
)

func TestGet(t *testing.T) {
	t.Parallel()

	info := version.Get()

	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GitHash)
	assert.NotEmpty(t, info.GoVersion)
}
