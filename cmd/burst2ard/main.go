// Command burst2ard turns a single Sentinel-1 SLC burst into analysis-ready
// raster products by driving the SNAP engine through the processing pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/banshee-data/sar-ard/internal/artifact"
	"github.com/banshee-data/sar-ard/internal/config"
	"github.com/banshee-data/sar-ard/internal/engine"
	"github.com/banshee-data/sar-ard/internal/journal"
	"github.com/banshee-data/sar-ard/internal/pipeline"
	"github.com/banshee-data/sar-ard/internal/version"
)

var (
	masterFile    = flag.String("master", "", "Path to the master SLC scene (zip or SAFE)")
	subswath      = flag.String("swath", "", "Subswath of the burst (e.g. IW1)")
	masterBurstNr = flag.Int("burst-nr", 0, "Index number of the master burst within the subswath")
	masterBurstID = flag.String("burst-id", "", "Stable burst id used to name all artifacts")

	slaveFile    = flag.String("slave", "", "Path to the slave SLC scene (coherence only)")
	slaveBurstNr = flag.Int("slave-burst-nr", 0, "Index number of the slave burst")
	slaveBurstID = flag.String("slave-burst-id", "", "Stable burst id of the slave burst")

	coherence       = flag.Bool("coherence", false, "Also compute interferometric coherence (requires slave)")
	keepSlaveImport = flag.Bool("keep-slave-import", true, "Retain the imported slave burst for time-series reuse")

	procFile = flag.String("proc", "", "Path to the ARD processing-parameters file (JSON)")
	tempDir  = flag.String("temp", "", "Directory for transient artifacts")
	outDir   = flag.String("out", "", "Directory receiving final products and the completion marker")
	logDir   = flag.String("logs", "logs", "Directory receiving per-stage engine logs")

	gptBin      = flag.String("gpt", "gpt", "Path to the engine's gpt executable")
	graphDir    = flag.String("graphs", "graphs/S1_SLC2ARD", "Directory holding the processing-graph XML files")
	quantity    = flag.Int("q", runtime.NumCPU(), "Engine thread count passed as -q")
	journalDB   = flag.String("journal", "", "Optional sqlite run-journal database path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *masterFile == "" || *subswath == "" || *masterBurstID == "" || *procFile == "" ||
		*tempDir == "" || *outDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*procFile)
	if err != nil {
		log.Fatalf("burst2ard: %v", err)
	}

	opts := pipeline.Options{
		Config: cfg,
		Master: pipeline.Burst{
			SceneFile:  *masterFile,
			Subswath:   *subswath,
			BurstIndex: *masterBurstNr,
			BurstID:    *masterBurstID,
		},
		TempDir:         *tempDir,
		OutDir:          *outDir,
		LogDir:          *logDir,
		Coherence:       *coherence,
		KeepSlaveImport: *keepSlaveImport,
		Engine:          engine.NewGPT(*gptBin, *quantity),
		Recipes:         engine.Recipes{GraphDir: *graphDir},
		Store:           artifact.NewStore(),
	}

	if *coherence {
		opts.Slave = &pipeline.Burst{
			SceneFile:  *slaveFile,
			Subswath:   *subswath,
			BurstIndex: *slaveBurstNr,
			BurstID:    *slaveBurstID,
		}
	}

	if *journalDB != "" {
		j, err := journal.Open(*journalDB)
		if err != nil {
			log.Fatalf("burst2ard: %v", err)
		}
		defer j.Close()
		opts.Journal = j
	}

	run, err := pipeline.NewRun(opts)
	if err != nil {
		log.Fatalf("burst2ard: %v", err)
	}

	if err := run.Execute(); err != nil {
		log.Fatalf("burst2ard: run failed: %v", err)
	}

	log.Printf("burst2ard: burst %s processed to %s", *masterBurstID, *outDir)
}
