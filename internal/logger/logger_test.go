package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })
	root := t.TempDir()

	log, err := New(root, false, "debug")
	require.NoError(t, err)
	log.Debugw("metadata.create", "project_id", "p1")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"logger online"`)
	assert.Contains(t, string(b), `"project_id":"p1"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(t.TempDir(), false, "loud")
	assert.Error(t, err)
}
