// trace-plot renders a recorded telemetry run as PNG plots: the driven
// path coloured by behaviour, and the control outputs over time.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

func main() {
	dbPath := flag.String("db", "lanepilot.db", "path to telemetry sqlite DB")
	runID := flag.String("run", "", "run id to plot (default: latest run)")
	outDir := flag.String("out-dir", ".", "directory to write PNG files into")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("DB path %s not accessible: %v", *dbPath, err)
	}

	files, err := plotRun(context.Background(), *dbPath, *runID, *outDir)
	if err != nil {
		log.Fatalf("trace-plot failed: %v", err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}

func plotRun(ctx context.Context, dbPath, runID, outDir string) ([]string, error) {
	store, err := telemetry.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if runID == "" {
		latest, err := store.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		runID = latest.ID
	}
	rows, err := store.Ticks(ctx, runID)
	if err != nil {
		return nil, err
	}
	return writePlots(rows, runID, outDir)
}
