package modelstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MaxPayloadBytes is the threshold above which activity results are staged
// to disk instead of returned inline.
const MaxPayloadBytes = 500_000

// StageJSON writes a JSON-serializable value to a uuid-named temp file and
// returns its path.
func StageJSON(value any, prefix string) (string, error) {
	if value == nil {
		return "", nil
	}
	blob, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal staged value: %w", err)
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.json", prefix, uuid.New().String()))
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("write staging file: %w", err)
	}
	return path, nil
}

// LoadStaged reads a staged JSON file into out.
func LoadStaged(path string, out any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read staging file: %w", err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode staging file: %w", err)
	}
	return nil
}

// CleanupStaged removes a staging file, ignoring missing paths.
func CleanupStaged(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
