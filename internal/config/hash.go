package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the BLAKE3 hash of the loaded config file so a
// running instance can be matched to the file on disk. Defaults-only
// configs have no fingerprint.
func (c *Config) Fingerprint() (string, error) {
	if c.SourceFile == "" {
		return "", nil
	}
	return ComputeBlake3Hash(c.SourceFile)
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
