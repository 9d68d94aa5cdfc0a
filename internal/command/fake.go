package command

import (
	"context"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeExecutor records calls instead of executing them. RunFn, when set,
// decides each call's output; otherwise Output is returned.
type FakeExecutor struct {
	mu     sync.Mutex
	Calls  []Call
	Output string
	RunFn  func(ctx context.Context, call Call) (string, error)
}

// NewFakeExecutor creates a new fake executor
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// Run implements Executor.Run
func (f *FakeExecutor) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	fn := f.RunFn
	out := f.Output
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return out, nil
}

// Commands returns the recorded calls as command lines.
func (f *FakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}
