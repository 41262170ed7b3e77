package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextIR(t *testing.T) {
	doc := TextIR("n1", "hello")
	require.NoError(t, doc.Validate())
	assert.Equal(t, []string{"n1"}, doc.Roots)
	assert.Equal(t, "hello", doc.Nodes["n1"].Props["text"].Str)
}

func TestWriteProject(t *testing.T) {
	root := WriteProject(t, map[string]string{
		"src/app.tsx": "function App(){}",
		"logo.png":    "bytes",
	})
	data, err := os.ReadFile(filepath.Join(root, "src", "app.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "function App(){}", string(data))
}

func TestLoggerDoesNotPanic(t *testing.T) {
	logger := NewLogger(t)
	logger.Debug("debug_event", "k", 1)
	logger.Info("info_event")
	logger.Warn("warn_event", "reason", "none")
	logger.Error("error_event", "err", "nope")
}
