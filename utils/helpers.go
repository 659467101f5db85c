package utils

import (
	"fmt"
	"os"
)

// CreateFolder creates the directory (and any parents) if it doesn't exist.
func CreateFolder(folderPath string) error {
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folderPath, err)
	}
	return nil
}

// GetEnv reads an environment variable with a fallback default.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
