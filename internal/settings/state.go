package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"StageSentinel/internal/model"
)

// LoadOverlay applies the JSON file at filePath onto base. Fields absent from
// the file keep their base value. A missing file returns base unchanged.
func LoadOverlay(filePath string, base model.Settings) (model.Settings, time.Time, error) {
	out := base.Clone()
	if filePath == "" {
		return out, time.Time{}, nil
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, time.Time{}, nil
		}
		return base, time.Time{}, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return base, time.Time{}, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return base, time.Time{}, fmt.Errorf("parse settings file %s: %w", filePath, err)
	}
	return out, info.ModTime(), nil
}
