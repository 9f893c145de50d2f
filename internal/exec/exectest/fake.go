// Package exectest provides a scripted CommandRunner for tests.
package exectest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ShayCichocki/hollon/internal/exec"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as "name arg1 arg2".
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Handler produces the result of a matched call.
type Handler func(Call) ([]byte, error)

type rule struct {
	prefix  string
	handler Handler
}

// Runner is a fake CommandRunner. Calls are matched against registered
// command prefixes, most recently registered first. Unmatched calls succeed
// with empty output.
type Runner struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
	files map[string]bool
}

// New creates an empty fake.
func New() *Runner {
	return &Runner{files: make(map[string]bool)}
}

// Respond makes calls starting with prefix return output and err.
func (r *Runner) Respond(prefix, output string, err error) *Runner {
	return r.Handle(prefix, func(Call) ([]byte, error) { return []byte(output), err })
}

// Handle makes calls starting with prefix run h.
func (r *Runner) Handle(prefix string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{prefix: prefix, handler: h})
	return r
}

// AddFile marks path as existing for Exists.
func (r *Runner) AddFile(path string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[filepath.Clean(path)] = true
	return r
}

// Run records the call and returns the matching rule's result.
func (r *Runner) Run(_ context.Context, workDir string, name string, args ...string) ([]byte, error) {
	call := Call{Dir: workDir, Name: name, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	var h Handler
	line := call.String()
	for i := len(r.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, r.rules[i].prefix) {
			h = r.rules[i].handler
			break
		}
	}
	r.mu.Unlock()

	if h == nil {
		return nil, nil
	}
	return h(call)
}

// RunShell records the call as "sh -c command".
func (r *Runner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// Exists reports whether the path was registered with AddFile.
func (r *Runner) Exists(_ context.Context, workDir string, path string) bool {
	if !filepath.IsAbs(path) && workDir != "" {
		path = filepath.Join(workDir, path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[filepath.Clean(path)]
}

// Calls returns a copy of every recorded call.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Commands returns every recorded call rendered with Call.String.
func (r *Runner) Commands() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, c.String())
	}
	return out
}

// Ran reports whether any recorded call starts with prefix.
func (r *Runner) Ran(prefix string) bool {
	for _, c := range r.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

var _ exec.CommandRunner = (*Runner)(nil)
