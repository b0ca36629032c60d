package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write("database:\n  path: a.db\nprovider:\n  base_url: https://one.test\n")

	var (
		mu      sync.Mutex
		reloads []*Config
		errs    []error
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			mu.Lock()
			reloads = append(reloads, c)
			mu.Unlock()
		}, func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	write("database:\n  path: a.db\nprovider:\n  base_url: https://two.test\n  rate_limit_rps: 5\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := reloads[len(reloads)-1]
	mu.Unlock()
	assert.Equal(t, "https://two.test", last.Provider.BaseURL)
	assert.Equal(t, 5.0, last.Provider.RateLimitRPS)

	// invalid edits are reported and skipped
	write("database:\n  driver: oracle\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	}, 3*time.Second, 20*time.Millisecond)

	// unrelated files in the directory are ignored
	mu.Lock()
	count := len(reloads)
	mu.Unlock()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o644))
	time.Sleep(2 * reloadDebounce)
	mu.Lock()
	assert.Equal(t, count, len(reloads))
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}
