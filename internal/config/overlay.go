package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teslashibe/go-facetrack/pkg/pipeline"
)

const maxFileSize = 1 << 20 // 1 MiB

// ErrNoOverlay is returned when the overlay file does not exist
var ErrNoOverlay = errors.New("config overlay not found")

// LoadOverlay reads a JSON file over cfg. Only keys present in the file
// change cfg; everything else keeps its current value. The file must have a
// .json extension and be under 1 MiB. The merged config is validated.
func LoadOverlay(path string, cfg *pipeline.Config) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoOverlay, cleanPath)
	}
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	merged := *cfg
	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("invalid config file %s: %w", cleanPath, err)
	}

	*cfg = merged
	return nil
}
