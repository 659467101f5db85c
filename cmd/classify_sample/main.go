package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"pipeline-integrity/defect"
	"pipeline-integrity/pipeline"
)

func main() {
	rowFile := flag.String("row", "", "Path to a JSON file holding one raw defect row")
	modelPath := flag.String("model", filepath.Join("model", "prototypes.json"), "Path to the classifier model artifact")
	neighbours := flag.Int("k", 0, "Neighbour count override (0 = artifact default)")
	flag.Parse()

	if *rowFile == "" {
		log.Fatal("Usage: classify_sample -row <row.json> [-model <prototypes.json>]")
	}

	data, err := os.ReadFile(*rowFile)
	if err != nil {
		log.Fatalf("failed to read row file: %v", err)
	}

	var row defect.RawRow
	if err := json.Unmarshal(data, &row); err != nil {
		log.Fatalf("failed to parse row JSON: %v", err)
	}

	classifier, err := defect.NewClassifierFromFile(*modelPath, *neighbours)
	if err != nil {
		log.Fatalf("failed to load classifier: %v", err)
	}

	service := pipeline.New(classifier)

	prediction, rejected, err := service.ClassifySingle(row)
	if err != nil {
		log.Fatalf("classification failed: %v", err)
	}
	if rejected != nil {
		fmt.Printf("Row rejected: %s (field: %s)\n", rejected.Reason, rejected.Field)
		os.Exit(1)
	}

	fmt.Printf("Severity:    %s\n", prediction.Severity)
	fmt.Printf("Probability: %.4f\n", prediction.Probability)
	fmt.Printf("Model:       %s\n", prediction.ModelVersion)
	fmt.Println("Class probabilities:")
	for _, severity := range defect.Severities {
		fmt.Printf("  %-8s %.4f\n", severity, prediction.Probabilities[severity])
	}
}
