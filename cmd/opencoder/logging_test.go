// ABOUTME: Tests for the CLI's colorized log handler
// ABOUTME: Disables ANSI colors so output can be compared as plain text

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/shekohex/opencoder-sub000/internal/config"
)

func TestColorHandler_Format(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)
	logger.With("component", "connection").WithGroup("req").Info("connected", "workspace_id", "ws-1")
	logger.Debug("hidden")

	line := buf.String()
	assert.Contains(t, line, "INF connected component=connection req.workspace_id=ws-1\n")
	assert.NotContains(t, line, "hidden")
	assert.Equal(t, 1, strings.Count(line, "\n"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("probe", "attempt", 2)

	assert.Contains(t, buf.String(), `"msg":"probe"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARN").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
