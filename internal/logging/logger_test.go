package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Same(t, Default(), FromContext(nil))
}

func TestWithStageAndRunID(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	ctx := WithLogger(context.Background(), &l)
	ctx = WithRunID(ctx, "run-1")
	ctx = WithStage(ctx, "DIFFING")

	FromContext(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "DIFFING", entry["stage"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewFromConfig(t *testing.T) {
	t.Run("level parsed", func(t *testing.T) {
		l := NewFromConfig(Config{Level: "warn", Output: "discard"})
		assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		l := NewFromConfig(Config{Level: "loud", Output: "discard"})
		assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	})

	t.Run("file output is created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sync.log")
		l := NewFromConfig(Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
		l.Info().Msg("written")
		assert.FileExists(t, path)
	})
}

func TestEnableVTIgnoresNonConsole(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	assert.NotPanics(t, func() {
		EnableVTInput(f)
		EnableVT(f)
	})
	_, err = f.WriteString("plain")
	assert.NoError(t, err)
}
