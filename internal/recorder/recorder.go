// Package recorder wraps command executions and emits one immutable,
// content-identified step record per invocation. Recording is best-effort:
// failures in the recording path are logged and never change the outcome
// the wrapped command reports to its caller.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/reuse"
	"github.com/roach88/lineage/internal/store"
)

// CommandFunc is the unit of work being instrumented. It receives its
// arguments with file-valued entries collapsed to plain paths; the original
// FileRef tagging stays with the recorder.
type CommandFunc func(ctx context.Context, args map[string]record.Value) (*Result, error)

// Result is what an instrumented command returns. Metrics are recorded as
// metadata_from_cmd_return.
type Result struct {
	Metrics map[string]string
}

// stepState tracks one invocation through its lifecycle. Only the outcome
// of running (succeeded/failed) is ever surfaced to the caller; recording
// outcomes are logged only.
type stepState int

const (
	stateCreated stepState = iota
	stateRunning
	stateSucceeded
	stateFailed
	stateRecording
	stateRecorded
	stateRecordingFailed
)

func (s stepState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateRunning:
		return "running"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	case stateRecording:
		return "recording"
	case stateRecorded:
		return "recorded"
	case stateRecordingFailed:
		return "recording_failed"
	default:
		return "unknown"
	}
}

// Recorder instruments commands against one record store.
type Recorder struct {
	store  store.Store
	cache  *store.ArtifactCache
	index  *reuse.Index
	hasher record.Hasher
	tagger VersionTagger
	tokens TokenGenerator
	now    func() time.Time
	log    *slog.Logger

	trackFiles bool
	envDetail  bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCache enables saving hashed outputs of successful steps into an
// artifact cache.
func WithCache(c *store.ArtifactCache) Option {
	return func(r *Recorder) { r.cache = c }
}

// WithReuseIndex enables the advisory prior-run check before execution.
func WithReuseIndex(ix *reuse.Index) Option {
	return func(r *Recorder) { r.index = ix }
}

// WithVersionTagger sets the code-version identity source.
func WithVersionTagger(t VersionTagger) Option {
	return func(r *Recorder) { r.tagger = t }
}

// WithTokens sets the id token source. Tests use NewFixedGenerator.
func WithTokens(gen TokenGenerator) Option {
	return func(r *Recorder) { r.tokens = gen }
}

// WithClock sets the time source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// WithFileTracking toggles hashing and stat capture of file arguments.
// Default on.
func WithFileTracking(on bool) Option {
	return func(r *Recorder) { r.trackFiles = on }
}

// WithEnvDetail toggles host/user/cwd capture in the run environment
// snapshot. Default on.
func WithEnvDetail(on bool) Option {
	return func(r *Recorder) { r.envDetail = on }
}

// New creates a Recorder writing to the given store.
func New(s store.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:      s,
		tagger:     StaticTagger{Info: UnknownVersion},
		tokens:     UUIDv7Generator{},
		now:        time.Now,
		trackFiles: true,
		envDetail:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.hasher = record.Hasher{Log: r.log}
	return r
}

// Instrument wraps a command so that every invocation produces a step
// record. The wrapped function:
//
//  1. inherits the ambient RunContext or mints a one-step run,
//  2. pushes its step id onto the running-steps stack (popped on every
//     exit path),
//  3. consults the reuse index (advisory only),
//  4. invokes fn with plain argument values,
//  5. records the step, and
//  6. returns fn's own result and error unchanged.
//
// A cancellation (user interrupt) skips recording entirely; any other
// failure still produces a record with the exception text set. Panics in
// fn are recorded and then re-raised.
func (r *Recorder) Instrument(cmdModule, cmdName string, fn CommandFunc) CommandFunc {
	return func(ctx context.Context, args map[string]record.Value) (res *Result, cmdErr error) {
		beg := r.now()

		rc := RunFrom(ctx)
		if rc == nil {
			rc = NewRunContext(MintRunID(beg, r.tokens))
			ctx = WithRun(ctx, rc)
		}
		stepID := MintStepID(beg, r.tokens, cmdModule, cmdName)
		enclosing := rc.Enclosing()

		rc.push(stepID)
		defer rc.pop(stepID)

		state := stateCreated
		r.log.Debug("step created",
			"cmd", describe(cmdModule, cmdName), "step_id", stepID,
			"run_id", rc.RunID, "state", state.String())

		r.checkReuse(ctx, cmdModule, cmdName, args)

		state = stateRunning
		panicked := false
		var panicVal any
		func() {
			defer func() {
				if p := recover(); p != nil {
					panicked = true
					panicVal = p
					cmdErr = fmt.Errorf("panic: %v", p)
				}
			}()
			res, cmdErr = fn(ctx, plainArgs(args))
		}()
		end := r.now()

		if cmdErr == nil {
			state = stateSucceeded
		} else {
			state = stateFailed
		}

		if interrupted(ctx, cmdErr) && !panicked {
			r.log.Warn("step interrupted, skipping recording",
				"cmd", describe(cmdModule, cmdName), "step_id", stepID)
			return res, cmdErr
		}

		state = stateRecording
		if err := r.writeRecord(ctx, rc, stepID, cmdModule, cmdName, args, res, cmdErr, enclosing, beg, end); err != nil {
			state = stateRecordingFailed
			r.log.Warn("error recording step metadata",
				"cmd", describe(cmdModule, cmdName), "step_id", stepID,
				"state", state.String(), "err", err)
		} else {
			state = stateRecorded
			r.log.Info("step recorded",
				"cmd", describe(cmdModule, cmdName), "step_id", stepID,
				"duration", end.Sub(beg), "failed", cmdErr != nil)
		}

		if panicked {
			panic(panicVal)
		}
		return res, cmdErr
	}
}

// checkReuse runs the advisory prior-run scan. Diagnostic only: errors are
// logged and the result does not alter control flow.
func (r *Recorder) checkReuse(ctx context.Context, cmdModule, cmdName string, args map[string]record.Value) {
	if r.index == nil {
		return
	}
	if _, err := r.index.Check(ctx, cmdModule, cmdName, args); err != nil {
		r.log.Warn("reuse check failed", "cmd", describe(cmdModule, cmdName), "err", err)
	}
}

// writeRecord builds, serializes and stores the step record. Every failure
// inside is returned for the caller to log; nothing here reaches the
// wrapped command's caller.
func (r *Recorder) writeRecord(
	ctx context.Context,
	rc *RunContext,
	stepID, cmdModule, cmdName string,
	args map[string]record.Value,
	res *Result,
	cmdErr error,
	enclosing []string,
	beg, end time.Time,
) error {
	// Recording must finish even when the step's own context expired.
	ctx = context.WithoutCancel(ctx)

	rec := &record.Record{
		StepID:          stepID,
		RunID:           rc.RunID,
		CmdModule:       cmdModule,
		CmdName:         cmdName,
		Args:            r.captureArgs(args, cmdErr == nil),
		MetadataCmdLine: rc.Metadata,
		EnclosingSteps:  enclosing,
		RunEnv:          snapshotEnv(r.envDetail, r.store.Location()),
		RunInfo: record.RunInfo{
			BegTimeMillis:  beg.UnixMilli(),
			EndTimeMillis:  end.UnixMilli(),
			DurationMillis: end.Sub(beg).Milliseconds(),
			Argv:           os.Args,
		},
		VersionInfo: r.tagger.Tag(stepID),
	}
	if cmdErr != nil {
		rec.RunInfo.Exception = cmdErr.Error()
	}
	if res != nil {
		rec.MetadataCmdReturn = res.Metrics
	}

	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	name := record.Filename(stepID, data)
	if err := r.store.Write(ctx, name, data); err != nil {
		return err
	}

	r.cacheOutputs(rec.Args, cmdErr == nil)
	return nil
}

// captureArgs resolves file-valued arguments into hashed per-file metadata.
// Inputs are always captured; outputs only when the step succeeded.
func (r *Recorder) captureArgs(args map[string]record.Value, succeeded bool) map[string]record.Value {
	out := make(map[string]record.Value, len(args))
	for name, v := range args {
		out[name] = r.captureValue(v, succeeded)
	}
	return out
}

func (r *Recorder) captureValue(v record.Value, succeeded bool) record.Value {
	switch val := v.(type) {
	case record.FileRef:
		if !r.trackFiles {
			return record.FileRef{Val: val.Val, Mode: val.Mode, Expand: val.Expand}
		}
		return val.Captured(r.hasher, succeeded, r.log)
	case record.List:
		out := make(record.List, len(val))
		for i, elem := range val {
			out[i] = r.captureValue(elem, succeeded)
		}
		return out
	default:
		return v
	}
}

// cacheOutputs saves hashed output files of a successful step into the
// artifact cache.
func (r *Recorder) cacheOutputs(args map[string]record.Value, succeeded bool) {
	if r.cache == nil || !succeeded {
		return
	}
	for _, v := range args {
		for _, ref := range record.GatherFileRefs(v) {
			if ref.Mode != record.Write {
				continue
			}
			for _, fi := range ref.Files {
				if !fi.HasHash || fi.Hash == "" {
					continue
				}
				if err := r.cache.SaveFile(fi.AbsPath, fi.Hash); err != nil {
					r.log.Warn("cannot cache output", "path", fi.AbsPath, "err", err)
				}
			}
		}
	}
}

// plainArgs collapses FileRefs to the raw values the command expects.
func plainArgs(args map[string]record.Value) map[string]record.Value {
	out := make(map[string]record.Value, len(args))
	for name, v := range args {
		out[name] = record.Plain(v)
	}
	return out
}

// interrupted reports whether the step ended due to user cancellation.
func interrupted(ctx context.Context, cmdErr error) bool {
	if errors.Is(cmdErr, context.Canceled) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled)
}
