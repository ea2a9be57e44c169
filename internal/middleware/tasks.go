package middleware

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TaskGroup tracks background work launched by an interception handler so
// the server can wait for it after the response is written instead of
// losing it at request teardown.
type TaskGroup struct {
	group *errgroup.Group
	mu    sync.Mutex
	names []string
}

// NewTaskGroup creates an empty task group.
func NewTaskGroup() *TaskGroup {
	return &TaskGroup{group: &errgroup.Group{}}
}

// Go launches fn in the background under the given name. The name is
// recorded for draining diagnostics only.
func (t *TaskGroup) Go(name string, fn func() error) {
	t.mu.Lock()
	t.names = append(t.names, name)
	t.mu.Unlock()

	t.group.Go(fn)
}

// Names returns the names of all launched tasks, in launch order.
func (t *TaskGroup) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

// Len returns the number of launched tasks.
func (t *TaskGroup) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}

// Drain waits for every launched task to finish, or for ctx to expire,
// whichever comes first. The first task error is returned.
func (t *TaskGroup) Drain(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- t.group.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
