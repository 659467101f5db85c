package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"

	"pipeline-integrity/catalog"
	"pipeline-integrity/csvio"
	"pipeline-integrity/defect"
	"pipeline-integrity/pipeline"
)

func main() {
	surveyFile := flag.String("file", "", "Path to the survey CSV export")
	modelPath := flag.String("model", filepath.Join("model", "prototypes.json"), "Path to the classifier model artifact")
	neighbours := flag.Int("k", 0, "Neighbour count override (0 = artifact default)")
	outFile := flag.String("out", "", "Optional path to dump the classified catalog as JSON")
	flag.Parse()

	_ = godotenv.Load()

	if *surveyFile == "" {
		log.Fatal("Usage: ingest_csv -file <survey.csv> [-model <prototypes.json>] [-out <catalog.json>]")
	}

	rows, err := csvio.ReadSurveyFile(*surveyFile)
	if err != nil {
		log.Fatalf("failed to read survey file: %v", err)
	}
	log.Printf("Read %d data rows from %s\n", len(rows), *surveyFile)

	classifier, err := defect.NewClassifierFromFile(*modelPath, *neighbours)
	if err != nil {
		log.Fatalf("failed to load classifier: %v", err)
	}
	modelStats := classifier.Stats()
	log.Printf("Model %s loaded (%d prototypes)", modelStats.Version, modelStats.PrototypeCount)
	if modelStats.UsingExample {
		log.Println("WARNING: using the bundled example model")
	}

	service := pipeline.New(classifier)

	result, err := service.IngestBatch(rows)
	if err != nil {
		log.Fatalf("batch ingestion failed: %v", err)
	}

	fmt.Printf("\nBatch %s\n", result.BatchID)
	fmt.Printf("  inserted: %d\n", result.InsertedCount)
	fmt.Printf("  rejected: %d\n", len(result.Rejected))
	for _, rejected := range result.Rejected {
		fmt.Printf("    row %d: %s (%s)\n", rejected.Index, rejected.Reason, rejected.Field)
	}

	stats := service.Statistics()
	fmt.Printf("\nSeverity distribution (%d defects):\n", stats.Total)
	for _, severity := range defect.Severities {
		fmt.Printf("  %-8s %5d  (%.1f%%)\n", severity, stats.BySeverity[severity], stats.SeverityShare[severity])
	}

	segments := make([]int, 0, len(stats.BySegment))
	for segment := range stats.BySegment {
		segments = append(segments, segment)
	}
	sort.Ints(segments)
	fmt.Println("\nDefects per segment:")
	for _, segment := range segments {
		fmt.Printf("  segment %2d: %d\n", segment, stats.BySegment[segment])
	}

	if *outFile != "" {
		defects, err := service.Query(catalog.Filter{})
		if err != nil {
			log.Fatalf("failed to read back catalog: %v", err)
		}
		data, err := json.MarshalIndent(defects, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal catalog: %v", err)
		}
		if err := os.WriteFile(*outFile, data, 0644); err != nil {
			log.Fatalf("failed to write %s: %v", *outFile, err)
		}
		log.Printf("Wrote %d classified defects to %s", len(defects), *outFile)
	}
}
