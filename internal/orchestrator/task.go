package orchestrator

import (
	"context"
	"sync"
)

type taskKey struct {
	threadID  string
	backendID string
}

// task is one in-flight backend answer. The pointer itself is the
// ownership token checked before every store write.
type task struct {
	key    taskKey
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// taskTable holds at most one task per (thread, backend).
type taskTable struct {
	mu    sync.Mutex
	tasks map[taskKey]*task
}

func newTaskTable() *taskTable {
	return &taskTable{tasks: make(map[taskKey]*task)}
}

// install registers a new task for (threadID, backendID). A task already
// registered under that key is cancelled and waited for first; it loses
// ownership before it is cancelled so it cannot write again.
func (t *taskTable) install(parent context.Context, threadID, backendID string) *task {
	ctx, cancel := context.WithCancel(parent)
	nt := &task{
		key:    taskKey{threadID: threadID, backendID: backendID},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	old := t.tasks[nt.key]
	t.tasks[nt.key] = nt
	t.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}
	return nt
}

// owns reports whether tk is still the registered task for its key.
func (t *taskTable) owns(tk *task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tasks[tk.key] == tk
}

// release unregisters tk if it still owns its key and marks it exited.
func (t *taskTable) release(tk *task) {
	t.mu.Lock()
	if t.tasks[tk.key] == tk {
		delete(t.tasks, tk.key)
	}
	t.mu.Unlock()

	tk.cancel()
	close(tk.done)
}

// cancelThread unregisters and cancels every task of threadID, then waits
// for all of them to exit.
func (t *taskTable) cancelThread(threadID string) {
	t.mu.Lock()
	var victims []*task
	for k, tk := range t.tasks {
		if k.threadID == threadID {
			victims = append(victims, tk)
			delete(t.tasks, k)
		}
	}
	t.mu.Unlock()

	for _, tk := range victims {
		tk.cancel()
	}
	for _, tk := range victims {
		<-tk.done
	}
}

func (t *taskTable) count(threadID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.tasks {
		if k.threadID == threadID {
			n++
		}
	}
	return n
}
