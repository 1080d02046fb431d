package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZap_AddsEventField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("feed fetch failed", "feed_fetch_error", map[string]any{"url": "https://a.example/rss"})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "feed fetch failed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "feed_fetch_error", ctx["event"])
	assert.Equal(t, "https://a.example/rss", ctx["url"])
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, _, err := New(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "verbose"})
	assert.Error(t, err)
}

func TestEnsure(t *testing.T) {
	assert.IsType(t, NopLogger{}, Ensure(nil))
}
