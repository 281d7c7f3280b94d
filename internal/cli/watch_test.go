package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeWatcher_Matches(t *testing.T) {
	w := &treeWatcher{patterns: []string{"trees/**/*.yaml", "./extra/one.yml"}}

	tests := []struct {
		name string
		want bool
	}{
		{"trees/a.yaml", true},
		{"trees/deep/b/c.yaml", true},
		{"trees/a.yml", false},
		{"extra/one.yml", true},
		{"extra/two.yml", false},
		{"other/a.yaml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.matches(tt.name))
		})
	}
}

func TestTreeWatcher_Bases(t *testing.T) {
	w := &treeWatcher{patterns: []string{"trees/**/*.yaml", "trees/*.yml", "extra/one.yml", "*.yaml"}}
	assert.Equal(t, []string{".", "extra", "trees"}, w.bases())
}

func TestTreeWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := &treeWatcher{
		patterns: []string{filepath.Join(dir, "**", "*.yaml")},
		apply: func(context.Context) error {
			calls.Add(1)
			return nil
		},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounce: 20 * time.Millisecond,
		ready:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.ready:
	case err := <-done:
		t.Fatalf("watcher stopped early: %v", err)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree.yaml"), []byte("tree: []\n"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	// A directory created while watching is picked up.
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(200 * time.Millisecond)
	before := calls.Load()
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "more.yaml"), []byte("tree: []\n"), 0o644)
		return calls.Load() > before
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestTreeWatcher_MissingBase(t *testing.T) {
	w := &treeWatcher{
		patterns: []string{filepath.Join(t.TempDir(), "absent", "*.yaml")},
		apply:    func(context.Context) error { return nil },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	err := w.Run(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
