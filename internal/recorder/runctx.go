package recorder

import (
	"context"
	"slices"
	"sync"
)

// RunContext groups the steps of one workflow execution. It carries the
// workflow-level run id, invocation-time metadata, and the stack of steps
// currently running, which later nested invocations record as their
// enclosing steps.
//
// The context is an explicit object threaded through the instrumentation
// call chain rather than process-global state, so concurrent workflow
// branches within one process each keep a correct nesting stack.
type RunContext struct {
	// RunID identifies the workflow this step belongs to.
	RunID string

	// Metadata is attached to every step of the run as
	// metadata_from_cmd_line. Keys of the form "file.<arg>.<name>" are
	// per-file metadata for that argument's files.
	Metadata map[string]string

	mu      sync.Mutex
	running []string
}

// NewRunContext creates a run context for a workflow with the given id.
func NewRunContext(runID string) *RunContext {
	return &RunContext{RunID: runID}
}

// Enclosing returns a snapshot of the currently running step ids,
// outermost first.
func (rc *RunContext) Enclosing() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slices.Clone(rc.running)
}

func (rc *RunContext) push(stepID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.running = append(rc.running, stepID)
}

// pop removes the most recent occurrence of stepID. Removal by value, not
// position: parallel branches sharing one RunContext may interleave pushes.
func (rc *RunContext) pop(stepID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := len(rc.running) - 1; i >= 0; i-- {
		if rc.running[i] == stepID {
			rc.running = append(rc.running[:i], rc.running[i+1:]...)
			return
		}
	}
}

type runCtxKey struct{}

// WithRun attaches a RunContext to a context.Context.
func WithRun(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runCtxKey{}, rc)
}

// RunFrom extracts the ambient RunContext, or nil if the caller is not
// inside an instrumented workflow.
func RunFrom(ctx context.Context) *RunContext {
	rc, _ := ctx.Value(runCtxKey{}).(*RunContext)
	return rc
}
