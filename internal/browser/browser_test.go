package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
)

func TestCall_EncodesArguments(t *testing.T) {
	got := Call("function(a,b){}", `[name="your-name"]`, "O'Brien")
	assert.Equal(t, `(function(a,b){})("[name=\"your-name\"]","O'Brien")`, got)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{Headless: true, ProfileRoot: "/tmp/x", SettleMs: 1500}, "UA")
	assert.True(t, opts.Headless)
	assert.Equal(t, "/tmp/x", opts.ProfileRoot)
	assert.Equal(t, 1500*time.Millisecond, opts.Settle)
	assert.Equal(t, "UA", opts.UserAgent)
}

func TestNewLauncher_Defaults(t *testing.T) {
	l := NewLauncher(Options{})
	assert.Equal(t, os.TempDir(), l.opts.ProfileRoot)
	assert.Equal(t, 2*time.Second, l.Settle())
}

func TestSession_ReleaseRemovesProfileDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outreach-test")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Default"), 0o700))

	var cancelled int
	s := &Session{ctx: context.Background(), cancel: func() { cancelled++ }, profileDir: dir}
	s.Release()
	s.Release()

	assert.Equal(t, 1, cancelled)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
