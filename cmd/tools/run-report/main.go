// Command run-report renders an HTML stage-duration report for a recorded
// pipeline run from the run journal.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sar-ard/internal/journal"
)

var (
	journalDB = flag.String("journal", "journal.db", "Path to the run-journal database")
	runID     = flag.String("run", "", "Run id to report on (default: most recent run)")
	outFile   = flag.String("out", "run-report.html", "Output HTML file")
)

func main() {
	flag.Parse()

	j, err := journal.Open(*journalDB)
	if err != nil {
		log.Fatalf("run-report: %v", err)
	}
	defer j.Close()

	target := *runID
	var burstID, status string
	if target == "" {
		runs, err := j.Runs()
		if err != nil {
			log.Fatalf("run-report: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("run-report: journal holds no runs")
		}
		target = runs[0].RunID
		burstID = runs[0].BurstID
		status = runs[0].Status
	}

	stages, err := j.Stages(target)
	if err != nil {
		log.Fatalf("run-report: %v", err)
	}
	if len(stages) == 0 {
		log.Fatalf("run-report: run %s has no recorded stages", target)
	}

	var (
		names     []string
		durations []opts.BarData
	)
	for _, s := range stages {
		label := s.Stage
		if s.Outcome != journal.OutcomeOK {
			label = fmt.Sprintf("%s (%s)", s.Stage, s.Outcome)
		}
		names = append(names, label)
		durations = append(durations, opts.BarData{Value: s.Duration.Seconds()})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Stage durations",
			Subtitle: fmt.Sprintf("run %s  burst %s  %s", target, burstID, status),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	bar.SetXAxis(names).AddSeries("duration", durations)

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("run-report: %v", err)
	}
	defer f.Close()

	if err := bar.Render(f); err != nil {
		log.Fatalf("run-report: %v", err)
	}

	log.Printf("run-report: wrote %s", *outFile)
}
