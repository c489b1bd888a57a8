package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	render := NewRenderer()

	out, err := render("**Hello** there")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "there")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")

	assert.Contains(t, buf.String(), "v1.2.3")
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "\n"), 7)
}
