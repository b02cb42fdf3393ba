package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFiles lists the .env files read by LoadEnv in load order: the working
// directory first, then the one beside the executable, which wins.
func EnvFiles() []string {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), ".env"))
	}
	return paths
}

// LoadEnv loads every existing file from EnvFiles, overriding variables that
// are already set. Later files override earlier ones.
func LoadEnv() error {
	return loadEnvFiles(EnvFiles()...)
}

func loadEnvFiles(paths ...string) error {
	seen := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Overload(abs); err != nil {
			return fmt.Errorf("loading %s: %w", abs, err)
		}
	}
	return nil
}
