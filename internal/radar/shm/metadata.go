package shm

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultMetadataPath is where the acquisition process publishes the region
// parameters for consumers to attach with.
const DefaultMetadataPath = "sharedmem_meta.json"

// Metadata is the small on-disk record describing the shared region. The
// acquisition process writes it before any consumer attaches; the field names
// are part of the on-disk contract.
type Metadata struct {
	// Size is the total mapped size of the region in bytes, header included.
	Size int `json:"size"`
	// MemName is the shared-memory object name (leading slash, POSIX style).
	MemName string `json:"memname"`
	// SemName is the name of the lock object guarding the region.
	SemName string `json:"semname"`
}

// WriteMetadata publishes the region parameters to path.
func WriteMetadata(path string, m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal shared memory metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write shared memory metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the region parameters from path.
func ReadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read shared memory metadata: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse shared memory metadata: %w", err)
	}
	if m.Size <= HeaderBytes || m.MemName == "" || m.SemName == "" {
		return m, fmt.Errorf("incomplete shared memory metadata: %+v", m)
	}
	return m, nil
}
