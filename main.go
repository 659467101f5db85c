package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"pipeline-integrity/defect"
	"pipeline-integrity/utils"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveCmd.String("p", "5000", "Port to use")
		modelPath := serveCmd.String("model", "", "Path to the classifier model artifact (overrides MODEL_PATH)")
		serveCmd.Parse(os.Args[2:])

		path := *modelPath
		if path == "" {
			path = utils.GetEnv("MODEL_PATH", filepath.Join("model", "prototypes.json"))
		}

		kStr := utils.GetEnv("MODEL_K", strconv.Itoa(defect.DefaultNeighbourCount))
		k, err := strconv.Atoi(kStr)
		if err != nil {
			log.Fatalf("invalid MODEL_K value '%s': %v", kStr, err)
		}

		serve(*port, path, k)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
