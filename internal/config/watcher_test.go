package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialRules = "redirects:\n  - source: /old\n    destination: /v1\n"
const updatedRules = "redirects:\n  - source: /old\n    destination: /v2\n"
const brokenRules = "redirects:\n  - source: /old/[unclosed\n    destination: /v3\n"

func writeRuleFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRuleFile(t, path, initialRules)

	watcher, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	last := watcher.LastRuleSet()
	require.NotNil(t, last)
	assert.Equal(t, "/v1", last.Redirects[0].Destination)
}

func TestWatcherInitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRuleFile(t, path, brokenRules)

	watcher, err := NewWatcher(path, nil)
	require.NoError(t, err)

	assert.Error(t, watcher.Start(context.Background()))
}

func TestWatcherReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRuleFile(t, path, initialRules)

	reloaded := make(chan *RuleSet, 1)
	watcher, err := NewWatcher(path, func(rs *RuleSet) {
		reloaded <- rs
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	writeRuleFile(t, path, updatedRules)

	select {
	case rs := <-reloaded:
		assert.Equal(t, "/v2", rs.Redirects[0].Destination)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	assert.Equal(t, "/v2", watcher.LastRuleSet().Redirects[0].Destination)
}

func TestWatcherKeepsPreviousRulesOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRuleFile(t, path, initialRules)

	failed := make(chan error, 1)
	watcher, err := NewWatcher(path, func(*RuleSet) {
		t.Error("callback fired for an invalid rule file")
	},
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(reloadErr error) {
			select {
			case failed <- reloadErr:
			default:
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	writeRuleFile(t, path, brokenRules)

	select {
	case reloadErr := <-failed:
		assert.Error(t, reloadErr)
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired")
	}

	assert.Equal(t, "/v1", watcher.LastRuleSet().Redirects[0].Destination)
}

func TestWatcherStopIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRuleFile(t, path, initialRules)

	watcher, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))

	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop())
}
