package pipeline

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sar-ard/internal/artifact"
	"github.com/banshee-data/sar-ard/internal/config"
	"github.com/banshee-data/sar-ard/internal/engine"
	"github.com/banshee-data/sar-ard/internal/fsutil"
	"github.com/banshee-data/sar-ard/internal/journal"
	"github.com/banshee-data/sar-ard/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// fakeEngine stands in for the external processing engine: it records every
// invocation, writes the stage log, and materialises a plausible output pair
// at the invocation's target, the way a successful engine run would.
type fakeEngine struct {
	fs      *fsutil.MemoryFileSystem
	calls   []string
	failOn  map[string]int // stage -> exit code
	corrupt map[string]bool
}

func (e *fakeEngine) Invoke(inv engine.Invocation) (int, error) {
	e.calls = append(e.calls, inv.Stage)
	_ = e.fs.WriteFile(inv.LogPath, []byte("engine diagnostics\n"), 0644)

	if code, ok := e.failOn[inv.Stage]; ok {
		return code, nil
	}

	out := inv.Target
	if out == "" {
		for _, p := range inv.Params {
			if p.Key == "output" {
				out = p.Value
			}
		}
	}
	if out != "" {
		values := []float32{0.25, 0.5, 0.75, 1.0}
		if e.corrupt[inv.Stage] {
			values = []float32{0, 0, 0, 0}
		}
		writeBand(e.fs, out, values)
	}
	return 0, nil
}

func writeBand(fs *fsutil.MemoryFileSystem, prefix string, values []float32) {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_ = fs.WriteFile(prefix+".dim", []byte("<Dimap_Document/>"), 0644)
	_ = fs.MkdirAll(prefix+".data", 0755)
	_ = fs.WriteFile(filepath.Join(prefix+".data", "band.img"), buf, 0644)
}

type harness struct {
	fs    *fsutil.MemoryFileSystem
	eng   *fakeEngine
	store *artifact.Store
}

func newHarness() *harness {
	fs := fsutil.NewMemoryFileSystem()
	return &harness{
		fs:    fs,
		eng:   &fakeEngine{fs: fs, failOn: map[string]int{}, corrupt: map[string]bool{}},
		store: &artifact.Store{FS: fs},
	}
}

func (h *harness) options(cfg *config.ARD) Options {
	return Options{
		Config:  cfg,
		Master:  Burst{SceneFile: "/scenes/master.zip", Subswath: "IW1", BurstIndex: 3, BurstID: "m1"},
		TempDir: "/temp",
		OutDir:  "/out",
		LogDir:  "/logs",
		Engine:  h.eng,
		Recipes: engine.Recipes{GraphDir: "/graphs"},
		Store:   h.store,
	}
}

func testConfig() *config.ARD {
	return &config.ARD{
		Polarisation: "VV, VH",
		ProductType:  config.ProductGTCGamma,
		Resolution:   20,
		DEM: &config.DEM{
			Name:                  "SRTM 1sec HGT",
			ResamplingMethod:      "BILINEAR_INTERPOLATION",
			ImageResamplingMethod: "BICUBIC_INTERPOLATION",
		},
		CoherenceBands: "VV",
	}
}

func (h *harness) dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := h.fs.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMinimalRun_BranchCorrectness(t *testing.T) {
	h := newHarness()
	run, err := NewRun(h.options(testConfig()))
	require.NoError(t, err)

	require.NoError(t, run.Execute())
	assert.Equal(t, StatusSucceeded, run.Status())

	// All optional flags off: only import, calibration and the backscatter
	// geocoding touch the engine.
	assert.Equal(t, []string{"import", "cal", "tc"}, h.eng.calls)

	// One final artifact pair plus the marker, nothing else.
	assert.ElementsMatch(t, []string{"m1_bs.dim", "m1_bs.data", MarkerName}, h.dirEntries(t, "/out"))

	// Every intermediate is gone from temp.
	assert.Empty(t, h.dirEntries(t, "/temp"))
}

func TestScenarioA_ToDB(t *testing.T) {
	cfg := testConfig()
	cfg.ProductType = config.ProductGTCSigma
	cfg.ToDB = true

	h := newHarness()
	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Equal(t, []string{"import", "cal", "db", "tc"}, h.eng.calls)
	assert.ElementsMatch(t, []string{"m1_bs.dim", "m1_bs.data", MarkerName}, h.dirEntries(t, "/out"))
}

func TestScenarioB_LayoverShadowMask(t *testing.T) {
	cfg := testConfig()
	cfg.ProductType = config.ProductGTCSigma
	cfg.ToDB = true
	cfg.CreateLSMask = true

	h := newHarness()
	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Equal(t, []string{"import", "cal", "db", "tc", "ls"}, h.eng.calls)
	assert.ElementsMatch(t,
		[]string{"m1_bs.dim", "m1_bs.data", "m1_LS.dim", "m1_LS.data", MarkerName},
		h.dirEntries(t, "/out"))
}

func TestRTCTriggersFlattening(t *testing.T) {
	cfg := testConfig()
	cfg.ProductType = config.ProductRTC
	cfg.RemoveSpeckle = true

	h := newHarness()
	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Equal(t, []string{"import", "cal", "speckle", "rtc", "tc"}, h.eng.calls)
}

func TestNonRTCNeverFlattens(t *testing.T) {
	for _, pt := range []config.ProductType{config.ProductGTCGamma, config.ProductGTCSigma} {
		t.Run(string(pt), func(t *testing.T) {
			cfg := testConfig()
			cfg.ProductType = pt

			h := newHarness()
			run, err := NewRun(h.options(cfg))
			require.NoError(t, err)
			require.NoError(t, run.Execute())

			assert.NotContains(t, h.eng.calls, "rtc")
		})
	}
}

func TestDecompositionBranch(t *testing.T) {
	cfg := testConfig()
	cfg.HAAlpha = true

	h := newHarness()
	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	// Decomposition runs right after import and is geocoded immediately.
	assert.Equal(t, []string{"import", "haa", "tc", "cal", "tc"}, h.eng.calls)
	assert.ElementsMatch(t,
		[]string{"m1_pol.dim", "m1_pol.data", "m1_bs.dim", "m1_bs.data", MarkerName},
		h.dirEntries(t, "/out"))
	assert.Empty(t, h.dirEntries(t, "/temp"))
}

func TestResumability_ImportSkipped(t *testing.T) {
	h := newHarness()

	// An import pair from an earlier run is already in temp.
	existing := artifact.HandleFor("/temp", "m1", "import")
	writeBand(h.fs, existing.Prefix(), []float32{0.5, 0.75})

	run, err := NewRun(h.options(testConfig()))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Equal(t, []string{"cal", "tc"}, h.eng.calls, "import must not be re-invoked")
	assert.Equal(t, StatusSucceeded, run.Status())
}

func TestCoherenceIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.CreateLSMask = true

	h := newHarness()
	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	for _, call := range h.eng.calls {
		assert.NotContains(t, []string{"coreg", "coh"}, call)
	}
	for _, name := range h.dirEntries(t, "/out") {
		assert.False(t, strings.Contains(name, "coh"), "unexpected coherence artifact %s", name)
	}
}

func TestScenarioC_CoherenceKeepsSlaveImport(t *testing.T) {
	h := newHarness()
	opts := h.options(testConfig())
	opts.Coherence = true
	opts.KeepSlaveImport = true
	opts.Slave = &Burst{SceneFile: "/scenes/slave.zip", Subswath: "IW1", BurstIndex: 3, BurstID: "s1"}

	run, err := NewRun(opts)
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Equal(t,
		[]string{"import", "cal", "tc", "import", "coreg", "coh", "tc"},
		h.eng.calls)

	assert.ElementsMatch(t,
		[]string{"m1_bs.dim", "m1_bs.data", "m1_coh.dim", "m1_coh.data", MarkerName},
		h.dirEntries(t, "/out"))

	// The slave import is retained for time-series reuse; the master import
	// and the coregistration stack are gone.
	assert.ElementsMatch(t, []string{"s1_import.dim", "s1_import.data"}, h.dirEntries(t, "/temp"))
}

func TestCoherence_RemovesSlaveImportWhenAllowed(t *testing.T) {
	h := newHarness()
	opts := h.options(testConfig())
	opts.Coherence = true
	opts.Slave = &Burst{SceneFile: "/scenes/slave.zip", Subswath: "IW1", BurstIndex: 3, BurstID: "s1"}

	run, err := NewRun(opts)
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	assert.Empty(t, h.dirEntries(t, "/temp"))
}

func TestScenarioD_ImportFailure(t *testing.T) {
	h := newHarness()
	h.eng.failOn["import"] = 119

	run, err := NewRun(h.options(testConfig()))
	require.NoError(t, err)

	err = run.Execute()
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "import", stageErr.Stage)
	assert.Equal(t, 119, stageErr.ExitCode)

	assert.Equal(t, StatusFailed, run.Status())
	assert.Empty(t, h.dirEntries(t, "/temp"))
	assert.Empty(t, h.dirEntries(t, "/out"), "no partial products, no marker")

	// Exactly one log documents the failure.
	assert.Equal(t, []string{"m1_import.err_log"}, h.dirEntries(t, "/logs"))
}

func TestMidPipelineFailure_PurgesEverything(t *testing.T) {
	cfg := testConfig()
	cfg.CreateLSMask = true

	h := newHarness()
	h.eng.failOn["ls"] = 1

	run, err := NewRun(h.options(cfg))
	require.NoError(t, err)

	err = run.Execute()
	require.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status())

	// The backscatter product had already been moved to out; a failed run
	// still leaves both directories empty.
	assert.Empty(t, h.dirEntries(t, "/temp"))
	assert.Empty(t, h.dirEntries(t, "/out"))
	assert.False(t, h.fs.Exists(filepath.Join("/out", MarkerName)))
}

func TestVerifyFailure_TreatedAsStageFailure(t *testing.T) {
	h := newHarness()
	h.eng.corrupt["tc"] = true // engine exits 0 but writes an all-zero band

	run, err := NewRun(h.options(testConfig()))
	require.NoError(t, err)

	err = run.Execute()
	require.Error(t, err)

	var intErr *artifact.IntegrityError
	assert.ErrorAs(t, err, &intErr)
	assert.Equal(t, StatusFailed, run.Status())
	assert.Empty(t, h.dirEntries(t, "/out"))
}

func TestExactlyOnceMarker(t *testing.T) {
	h := newHarness()
	run, err := NewRun(h.options(testConfig()))
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	marker := filepath.Join("/out", MarkerName)
	require.True(t, h.fs.Exists(marker))

	data, err := h.fs.ReadFile(marker)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRun_RecordsJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	h := newHarness()
	opts := h.options(testConfig())
	opts.Journal = j

	run, err := NewRun(opts)
	require.NoError(t, err)
	require.NoError(t, run.Execute())

	runs, err := j.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "m1", runs[0].BurstID)
	assert.Equal(t, string(StatusSucceeded), runs[0].Status)

	stages, err := j.Stages(runs[0].RunID)
	require.NoError(t, err)
	require.Len(t, stages, 4) // import, cal, bs-tc, cal-cleanup
	assert.Equal(t, "import", stages[0].Stage)
	for _, s := range stages {
		assert.Equal(t, journal.OutcomeOK, s.Outcome)
	}
}

func TestNewRun_Validation(t *testing.T) {
	h := newHarness()

	t.Run("missing config", func(t *testing.T) {
		opts := h.options(testConfig())
		opts.Config = nil
		_, err := NewRun(opts)
		assert.Error(t, err)
	})

	t.Run("missing dirs", func(t *testing.T) {
		opts := h.options(testConfig())
		opts.LogDir = ""
		_, err := NewRun(opts)
		assert.Error(t, err)
	})

	t.Run("coherence without slave", func(t *testing.T) {
		opts := h.options(testConfig())
		opts.Coherence = true
		_, err := NewRun(opts)
		assert.Error(t, err)
	})

	t.Run("coherence without bands", func(t *testing.T) {
		cfg := testConfig()
		cfg.CoherenceBands = ""
		opts := h.options(cfg)
		opts.Coherence = true
		opts.Slave = &Burst{SceneFile: "/scenes/slave.zip", Subswath: "IW1", BurstIndex: 3, BurstID: "s1"}
		_, err := NewRun(opts)
		assert.Error(t, err)
	})
}
