package shutdown

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
)

// FuncTask runs a function in a goroutine. Both RequestStop and Kill
// cancel its context; a goroutine cannot be killed from outside, so fn
// must return once the context ends.
type FuncTask struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// GoFunc starts fn and returns its task.
func GoFunc(ctx context.Context, id string, fn func(ctx context.Context) error) *FuncTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &FuncTask{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		err := fn(ctx)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()
	return t
}

// ID implements Task.
func (t *FuncTask) ID() string { return t.id }

// RequestStop implements Task.
func (t *FuncTask) RequestStop() error {
	t.cancel()
	return nil
}

// Kill implements Task.
func (t *FuncTask) Kill() error {
	t.cancel()
	return nil
}

// Done implements Task.
func (t *FuncTask) Done() <-chan struct{} { return t.done }

// Err returns fn's result once Done is closed.
func (t *FuncTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// ProcessTask wraps a child process. RequestStop sends SIGTERM and Kill
// sends SIGKILL.
type ProcessTask struct {
	id   string
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// NewProcessTask wraps cmd. Call Start to launch it.
func NewProcessTask(id string, cmd *exec.Cmd) *ProcessTask {
	return &ProcessTask{
		id:   id,
		cmd:  cmd,
		done: make(chan struct{}),
	}
}

// Start launches the process and reaps it in the background.
func (t *ProcessTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.cmd.Start(); err != nil {
		return err
	}
	t.started = true
	go func() {
		err := t.cmd.Wait()
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	}()
	return nil
}

// ID implements Task.
func (t *ProcessTask) ID() string { return t.id }

// RequestStop implements Task.
func (t *ProcessTask) RequestStop() error {
	return t.send(syscall.SIGTERM)
}

// Kill implements Task.
func (t *ProcessTask) Kill() error {
	return t.send(syscall.SIGKILL)
}

func (t *ProcessTask) send(sig syscall.Signal) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	select {
	case <-t.done:
		return nil
	default:
	}
	return t.cmd.Process.Signal(sig)
}

// Done implements Task.
func (t *ProcessTask) Done() <-chan struct{} { return t.done }

// Err returns the process's exit error once Done is closed.
func (t *ProcessTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
