package pipeline

import (
	"path/filepath"

	"github.com/banshee-data/sar-ard/internal/artifact"
	"github.com/banshee-data/sar-ard/internal/config"
	"github.com/banshee-data/sar-ard/internal/engine"
)

// verifyPolicy selects the integrity check applied to a step's output.
type verifyPolicy int

const (
	verifyNone verifyPolicy = iota
	verifyStats
	verifyNoStats // masks can be legitimately sparse
)

// step is one entry of the declarative stage table: an optional condition, an
// invocation builder, a verification policy, and the artifacts that become
// disposable once the step succeeds. A step with no invocation is pure
// lifecycle bookkeeping.
type step struct {
	tag       string
	when      func(*Run) bool
	output    func(*Run) artifact.Handle
	resumable bool
	invoke    func(*Run, artifact.Handle) engine.Invocation
	verify    verifyPolicy
	finalize  bool
	cleanup   func(*Run) []artifact.Handle
	after     func(*Run, artifact.Handle)
}

// logPath names the diagnostic log for one stage of one burst.
func (r *Run) logPath(burstID, logTag string) string {
	return filepath.Join(r.opts.LogDir, burstID+"_"+logTag+".err_log")
}

func (r *Run) tempHandle(burstID, stageTag string) artifact.Handle {
	return artifact.HandleFor(r.opts.TempDir, burstID, stageTag)
}

// steps returns the full stage table for this run. Conditions come from the
// processing configuration and the run's coherence request; the executor loop
// in Execute handles the entries uniformly.
func (r *Run) steps() []step {
	cfg := r.cfg
	masterID := r.opts.Master.BurstID

	wantCoherence := func(*Run) bool { return r.opts.Coherence }

	return []step{
		{
			// Import the master burst. Resumable: an import left by an
			// earlier run is reused rather than recomputed.
			tag:       "import",
			output:    func(r *Run) artifact.Handle { return r.tempHandle(masterID, "import") },
			resumable: true,
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.Import(
					r.opts.Master.SceneFile, out.Prefix(), r.logPath(masterID, "import"),
					r.opts.Master.Subswath, r.opts.Master.BurstIndex, cfg.PolarisationArg())
			},
			after: func(r *Run, out artifact.Handle) { r.masterImport = out },
		},
		{
			// Polarimetric decomposition.
			tag:    "haa",
			when:   func(*Run) bool { return cfg.HAAlpha },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "h") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.HAAlpha(
					r.masterImport.Metadata(), out.Prefix(), r.logPath(masterID, "haa"),
					cfg.RemovePolSpeckle)
			},
			after: func(r *Run, out artifact.Handle) { r.haa = out },
		},
		{
			// Geocode the decomposition and ship it; the radar-geometry
			// decomposition is disposable afterwards.
			tag:    "haa-tc",
			when:   func(*Run) bool { return cfg.HAAlpha },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "pol") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.TerrainCorrection(
					r.haa.Metadata(), out.Prefix(), r.logPath(masterID, "haa_tc"),
					cfg.Resolution, cfg.DEM)
			},
			verify:   verifyStats,
			finalize: true,
			cleanup:  func(r *Run) []artifact.Handle { return []artifact.Handle{r.haa} },
		},
		{
			// Calibration always runs; the recipe depends on the product
			// type. The master import stays around when the coherence branch
			// still needs it for coregistration.
			tag:    "cal",
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "cal") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.Calibration(
					r.masterImport.Metadata(), out.Prefix(), r.logPath(masterID, "cal"),
					cfg.ProductType)
			},
			cleanup: func(r *Run) []artifact.Handle {
				if r.opts.Coherence {
					return nil
				}
				return []artifact.Handle{r.masterImport}
			},
			after: func(r *Run, out artifact.Handle) { r.current = out },
		},
		{
			tag:    "speckle",
			when:   func(*Run) bool { return cfg.RemoveSpeckle },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "speckle_import") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.SpeckleFilter(
					r.current.Metadata(), out.Prefix(), r.logPath(masterID, "speckle"))
			},
			cleanup: func(r *Run) []artifact.Handle { return []artifact.Handle{r.current} },
			after:   func(r *Run, out artifact.Handle) { r.current = out },
		},
		{
			// RTC products calibrate to beta nought, so slope-induced
			// radiometric distortion still has to be flattened out here.
			tag:    "rtc",
			when:   func(*Run) bool { return cfg.ProductType == config.ProductRTC },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "rtc") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.TerrainFlattening(
					r.current.Metadata(), out.Prefix(), r.logPath(masterID, "rtc"), cfg.DEM)
			},
			cleanup: func(r *Run) []artifact.Handle { return []artifact.Handle{r.current} },
			after:   func(r *Run, out artifact.Handle) { r.current = out },
		},
		{
			tag:    "db",
			when:   func(*Run) bool { return cfg.ToDB },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "cal_db") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.LinearToDB(
					r.current.Metadata(), out.Prefix(), r.logPath(masterID, "cal_db"))
			},
			cleanup: func(r *Run) []artifact.Handle { return []artifact.Handle{r.current} },
			after:   func(r *Run, out artifact.Handle) { r.current = out },
		},
		{
			// Geocode the backscatter chain and ship it. The pre-geocoding
			// artifact is kept: the layover/shadow mask wants it as input.
			tag:    "bs-tc",
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "bs") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.TerrainCorrection(
					r.current.Metadata(), out.Prefix(), r.logPath(masterID, "bs_tc"),
					cfg.Resolution, cfg.DEM)
			},
			verify:   verifyStats,
			finalize: true,
		},
		{
			tag:    "ls",
			when:   func(*Run) bool { return cfg.CreateLSMask },
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "LS") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.LayoverShadowMask(
					r.current.Metadata(), out.Prefix(), r.logPath(masterID, "LS"),
					cfg.Resolution, cfg.DEM)
			},
			verify:   verifyNoStats,
			finalize: true,
		},
		{
			// The calibrated chain artifact has no further consumers.
			tag:     "cal-cleanup",
			cleanup: func(r *Run) []artifact.Handle { return []artifact.Handle{r.current} },
			after:   func(r *Run, _ artifact.Handle) { r.current = artifact.Handle{} },
		},

		// Interferometric branch.
		{
			tag:       "slave-import",
			when:      wantCoherence,
			output:    func(r *Run) artifact.Handle { return r.tempHandle(r.opts.Slave.BurstID, "import") },
			resumable: true,
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.Import(
					r.opts.Slave.SceneFile, out.Prefix(), r.logPath(r.opts.Slave.BurstID, "import"),
					r.opts.Slave.Subswath, r.opts.Slave.BurstIndex, cfg.PolarisationArg())
			},
			after: func(r *Run, out artifact.Handle) { r.slaveImport = out },
		},
		{
			// Coregistration consumes both imports. The master import is
			// done after this; the slave import is kept when the run is part
			// of a time series.
			tag:    "coreg",
			when:   wantCoherence,
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "coreg") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.Coregister(
					r.masterImport.Metadata(), r.slaveImport.Metadata(),
					out.Prefix(), r.logPath(masterID, "coreg"), cfg.DEM)
			},
			cleanup: func(r *Run) []artifact.Handle {
				handles := []artifact.Handle{r.masterImport}
				if !r.opts.KeepSlaveImport {
					handles = append(handles, r.slaveImport)
				}
				return handles
			},
			after: func(r *Run, out artifact.Handle) { r.coreg = out },
		},
		{
			tag:    "coh",
			when:   wantCoherence,
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "c") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.Coherence(
					r.coreg.Metadata(), out.Prefix(), r.logPath(masterID, "coh"),
					cfg.CoherenceBandsArg())
			},
			cleanup: func(r *Run) []artifact.Handle { return []artifact.Handle{r.coreg} },
			after:   func(r *Run, out artifact.Handle) { r.coh = out },
		},
		{
			tag:    "coh-tc",
			when:   wantCoherence,
			output: func(r *Run) artifact.Handle { return r.tempHandle(masterID, "coh") },
			invoke: func(r *Run, out artifact.Handle) engine.Invocation {
				return r.opts.Recipes.TerrainCorrection(
					r.coh.Metadata(), out.Prefix(), r.logPath(masterID, "coh_tc"),
					cfg.Resolution, cfg.DEM)
			},
			verify:   verifyStats,
			finalize: true,
			cleanup:  func(r *Run) []artifact.Handle { return []artifact.Handle{r.coh} },
		},
	}
}
