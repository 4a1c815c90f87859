package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"gopkg.in/yaml.v3"
)

// Encode renders s as indented JSON. Window indices become decimal string keys.
func Encode(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeYAML renders s as YAML.
func EncodeYAML(s Snapshot) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a JSON snapshot. Failures wrap errors.ErrSnapshotCorrupted.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.ErrSnapshotCorrupted, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: not a JSON object", verrors.ErrSnapshotCorrupted)
	}
	for idx, w := range s {
		if w == nil {
			return nil, fmt.Errorf("%w: window %d is null", verrors.ErrSnapshotCorrupted, idx)
		}
		if w.App == "" {
			return nil, fmt.Errorf("%w: window %d has no app", verrors.ErrSnapshotCorrupted, idx)
		}
		if w.Buffers == nil {
			w.Buffers = map[string][]WorkspaceItem{}
		}
	}
	return s, nil
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verrors.NewNotFoundError("snapshot", path).WithCause(err)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, verrors.Wrapf(err, "snapshot %s", path)
	}
	return s, nil
}

// WriteFile stores s at path, replacing any previous file atomically.
func WriteFile(path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return atomicWriteFile(path, data, 0644)
}

// atomicWriteFile writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".vimsaver-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
