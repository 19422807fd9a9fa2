package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
)

// DefaultFields returns the reference field table.
func DefaultFields() []model.FieldRecord {
	return []model.FieldRecord{
		{FieldID: 1, CropType: entities.CropWheat, MinMoisture: 25, MaxMoisture: 45, OptimalMoisture: 35, SoilType: "loamy"},
		{FieldID: 2, CropType: entities.CropCorn, MinMoisture: 30, MaxMoisture: 50, OptimalMoisture: 40, SoilType: "clay"},
		{FieldID: 12, CropType: entities.CropTomato, MinMoisture: 35, MaxMoisture: 60, OptimalMoisture: 47.5, SoilType: "sandy-loam"},
		{FieldID: 15, CropType: entities.CropCotton, MinMoisture: 20, MaxMoisture: 40, OptimalMoisture: 30, SoilType: "sandy"},
		{FieldID: 20, CropType: entities.CropPotato, MinMoisture: 40, MaxMoisture: 65, OptimalMoisture: 52.5, SoilType: "loamy"},
	}
}

// Static is an in-memory catalog safe for concurrent reads and replacement.
type Static struct {
	mu     sync.RWMutex
	fields map[int]model.FieldRecord
}

// NewStatic indexes records by id. Records are validated and duplicate ids
// are rejected.
func NewStatic(records []model.FieldRecord) (*Static, error) {
	idx, err := index(records)
	if err != nil {
		return nil, err
	}
	return &Static{fields: idx}, nil
}

// Default returns a Static holding DefaultFields.
func Default() *Static {
	s, err := NewStatic(DefaultFields())
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Static) Lookup(ctx context.Context, fieldID int) (model.FieldRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.FieldRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[fieldID]
	if !ok {
		return model.FieldRecord{}, fmt.Errorf("field %d: %w", fieldID, decision.ErrFieldNotFound)
	}
	return f, nil
}

// Replace swaps the whole table atomically.
func (s *Static) Replace(records []model.FieldRecord) error {
	idx, err := index(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fields = idx
	s.mu.Unlock()
	return nil
}

// IDs lists the known field ids in ascending order.
func (s *Static) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type fileFormat struct {
	Fields []model.FieldRecord `yaml:"fields"`
}

// LoadFile reads a YAML document of the form `fields: [...]`.
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field catalog: %w", err)
	}
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse field catalog %s: %w", path, err)
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("field catalog %s: no fields defined", path)
	}
	return NewStatic(doc.Fields)
}

var errDuplicateField = errors.New("duplicate field id")

func index(records []model.FieldRecord) (map[int]model.FieldRecord, error) {
	idx := make(map[int]model.FieldRecord, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := idx[r.FieldID]; dup {
			return nil, fmt.Errorf("field %d: %w", r.FieldID, errDuplicateField)
		}
		idx[r.FieldID] = r
	}
	return idx, nil
}
