package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spigell/ats-screener/internal/screening"
)

// submissionsFile is the on-disk layout used for import and export.
type submissionsFile struct {
	Items      []*screening.Submission `json:"items"`
	ExportedAt time.Time               `json:"exportedAt,omitempty"`
}

// LoadFile reads submissions from a JSON file. The file may hold either
// {"items": [...]} or a bare array. Missing ordinals follow file order and a
// missing decision starts as PENDING.
func LoadFile(path string) ([]*screening.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var items []*screening.Submission
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &items)
	} else {
		var f submissionsFile
		err = json.Unmarshal(data, &f)
		items = f.Items
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for i, s := range items {
		if s == nil || strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("decode %s: item %d has no id", path, i)
		}
		if s.Ordinal == 0 {
			s.Ordinal = i + 1
		}
		if s.Decision.Status == "" {
			s.Decision = screening.PendingDecision()
		}
	}

	return items, nil
}

// SaveFile writes submissions to path, replacing it atomically.
func SaveFile(path string, subs []*screening.Submission) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".submissions_*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(submissionsFile{Items: subs, ExportedAt: time.Now().UTC()}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
