// Package pipeline sequences the processing stages that turn one raw radar
// burst into analysis-ready raster products. It owns the branching policy,
// the lifecycle of intermediate artifacts between stages, and the guarantee
// that a failed run leaves no partial outputs behind.
package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/sar-ard/internal/artifact"
	"github.com/banshee-data/sar-ard/internal/config"
	"github.com/banshee-data/sar-ard/internal/engine"
	"github.com/banshee-data/sar-ard/internal/journal"
	"github.com/banshee-data/sar-ard/internal/monitoring"
)

// Status is the run-level outcome.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// MarkerName is the completion sentinel written to the output directory only
// after every required stage has succeeded. Its presence tells outer
// schedulers this burst is done.
const MarkerName = ".processed"

// Burst identifies one acquisition fragment of a scene.
type Burst struct {
	SceneFile  string
	Subswath   string
	BurstIndex int    // engine-relative burst number within the subswath
	BurstID    string // stable external key, names all artifacts of this burst
}

// Options configures a single pipeline run.
type Options struct {
	Config *config.ARD
	Master Burst
	Slave  *Burst

	TempDir string
	OutDir  string
	LogDir  string

	// Coherence enables the interferometric branch; requires Slave.
	Coherence bool

	// KeepSlaveImport retains the slave's imported burst in the temp
	// directory after coregistration, so time-series runs reuse it.
	KeepSlaveImport bool

	Engine  engine.Engine
	Recipes engine.Recipes
	Store   *artifact.Store

	// Journal is optional; a nil journal disables run recording.
	Journal *journal.Journal
}

// Run is the per-burst execution context. A Run owns every artifact created
// in its temp directory until it terminates: on success final products are
// moved out and the temp directory drained, on failure everything is purged.
// Runs are single-threaded; concurrent runs need disjoint temp and out
// directories.
type Run struct {
	opts   Options
	cfg    *config.ARD
	status Status

	// Artifact state threaded from stage to stage.
	masterImport artifact.Handle
	slaveImport  artifact.Handle
	current      artifact.Handle // head of the backscatter chain
	haa          artifact.Handle
	coreg        artifact.Handle
	coh          artifact.Handle
}

// NewRun validates options and prepares a run in the Running state.
func NewRun(opts Options) (*Run, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	if opts.Master.SceneFile == "" || opts.Master.BurstID == "" {
		return nil, fmt.Errorf("pipeline: master scene file and burst id are required")
	}
	if opts.TempDir == "" || opts.OutDir == "" || opts.LogDir == "" {
		return nil, fmt.Errorf("pipeline: temp, out and log directories are required")
	}
	if opts.Engine == nil || opts.Store == nil {
		return nil, fmt.Errorf("pipeline: engine and artifact store are required")
	}
	if opts.Coherence {
		if opts.Slave == nil || opts.Slave.SceneFile == "" || opts.Slave.BurstID == "" {
			return nil, fmt.Errorf("pipeline: coherence requires a slave burst")
		}
		if err := opts.Config.ValidateCoherenceBands(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	return &Run{opts: opts, cfg: opts.Config, status: StatusRunning}, nil
}

// Status returns the run's current state.
func (r *Run) Status() Status { return r.status }

// Execute drives the stage sequence to completion. It returns nil only when
// every applicable stage succeeded and the completion marker is on disk; the
// final status is the fold over all executed stage results, so a skipped
// optional branch can never leak a stale success.
func (r *Run) Execute() error {
	for _, dir := range []string{r.opts.TempDir, r.opts.OutDir, r.opts.LogDir} {
		if err := r.opts.Store.FS.MkdirAll(dir, 0755); err != nil {
			return r.fail("", fmt.Errorf("prepare %s: %w", dir, err))
		}
	}

	runID := r.beginJournal()

	for _, st := range r.steps() {
		if st.when != nil && !st.when(r) {
			continue
		}

		started := time.Now()
		outcome, exitCode, err := r.runStep(st)
		r.recordJournal(runID, st.tag, exitCode, time.Since(started), outcome)

		if err != nil {
			return r.failRun(runID, st.tag, err)
		}
	}

	if err := r.opts.Store.FS.WriteFile(r.markerPath(), []byte("passed all stages\n"), 0644); err != nil {
		return r.failRun(runID, "marker", fmt.Errorf("write completion marker: %w", err))
	}

	r.status = StatusSucceeded
	r.finishJournal(runID)
	monitoring.Stagef(r.opts.Master.BurstID, "run", "succeeded")
	return nil
}

func (r *Run) markerPath() string {
	return filepath.Join(r.opts.OutDir, MarkerName)
}

// runStep executes one step of the table: engine invocation (unless the
// output is resumable and already on disk), integrity verification, move to
// the final directory, and deletion of artifacts no later stage needs.
func (r *Run) runStep(st step) (outcome string, exitCode int, err error) {
	var out artifact.Handle
	if st.output != nil {
		out = st.output(r)
	}

	skipped := st.resumable && !out.IsZero() && r.opts.Store.Exists(out)

	if skipped {
		monitoring.Stagef(r.opts.Master.BurstID, st.tag, "output %s already present, skipping", out)
	} else if st.invoke != nil {
		inv := st.invoke(r, out)
		monitoring.Stagef(r.opts.Master.BurstID, st.tag, "starting")

		code, invErr := r.opts.Engine.Invoke(inv)
		if invErr != nil {
			return journal.OutcomeFailed, -1, invErr
		}
		if code != 0 {
			return journal.OutcomeFailed, code, &StageError{Stage: st.tag, ExitCode: code, LogPath: inv.LogPath}
		}
	}

	switch st.verify {
	case verifyStats:
		err = r.opts.Store.Verify(out, true)
	case verifyNoStats:
		err = r.opts.Store.Verify(out, false)
	}
	if err != nil {
		return journal.OutcomeFailed, 0, err
	}

	if st.finalize {
		if _, err := r.opts.Store.MoveToFinal(out, r.opts.OutDir); err != nil {
			return journal.OutcomeFailed, 0, err
		}
	}

	if st.cleanup != nil {
		for _, h := range st.cleanup(r) {
			if h.IsZero() {
				continue
			}
			if err := r.opts.Store.Delete(h); err != nil {
				return journal.OutcomeFailed, 0, err
			}
		}
	}

	if st.after != nil {
		st.after(r, out)
	}

	if skipped {
		return journal.OutcomeSkipped, 0, nil
	}
	return journal.OutcomeOK, 0, nil
}

// failRun purges both working directories so no partial products survive,
// then surfaces the originating error. Stage logs live in their own
// directory and are kept for post-mortem diagnosis.
func (r *Run) failRun(runID, stage string, cause error) error {
	if err := r.opts.Store.Purge(r.opts.TempDir); err != nil {
		monitoring.Logf("purge temp after failure: %v", err)
	}
	if err := r.opts.Store.Purge(r.opts.OutDir); err != nil {
		monitoring.Logf("purge out after failure: %v", err)
	}

	r.status = StatusFailed
	if r.opts.Journal != nil && runID != "" {
		if err := r.opts.Journal.FinishRun(runID, string(StatusFailed)); err != nil {
			monitoring.Logf("journal: %v", err)
		}
	}
	monitoring.Stagef(r.opts.Master.BurstID, stage, "failed: %v", cause)
	return cause
}

func (r *Run) fail(stage string, cause error) error {
	r.status = StatusFailed
	monitoring.Stagef(r.opts.Master.BurstID, stage, "failed: %v", cause)
	return cause
}

// Journal helpers: recording is best-effort, a journal write failure never
// fails the run.

func (r *Run) beginJournal() string {
	if r.opts.Journal == nil {
		return ""
	}
	runID, err := r.opts.Journal.BeginRun(r.opts.Master.BurstID)
	if err != nil {
		monitoring.Logf("journal: %v", err)
		return ""
	}
	return runID
}

func (r *Run) recordJournal(runID, stage string, exitCode int, d time.Duration, outcome string) {
	if r.opts.Journal == nil || runID == "" {
		return
	}
	if err := r.opts.Journal.RecordStage(runID, stage, exitCode, d, outcome); err != nil {
		monitoring.Logf("journal: %v", err)
	}
}

func (r *Run) finishJournal(runID string) {
	if r.opts.Journal == nil || runID == "" {
		return
	}
	if err := r.opts.Journal.FinishRun(runID, string(StatusSucceeded)); err != nil {
		monitoring.Logf("journal: %v", err)
	}
}
