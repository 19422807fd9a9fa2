package entities

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// CropType is the crop grown on a field.
type CropType string

const (
	CropWheat  CropType = "wheat"
	CropCorn   CropType = "corn"
	CropTomato CropType = "tomato"
	CropCotton CropType = "cotton"
	CropPotato CropType = "potato"
)

// FieldRecord describes a field and the moisture band its crop tolerates.
// Records are read-only once returned by a catalog.
type FieldRecord struct {
	FieldID         int      `json:"field_id" yaml:"field_id"`
	CropType        CropType `json:"crop_type" yaml:"crop_type" validate:"required,oneof=wheat corn tomato cotton potato"`
	MinMoisture     float64  `json:"min_moisture" yaml:"min_moisture" validate:"gte=0,lte=100"`
	MaxMoisture     float64  `json:"max_moisture" yaml:"max_moisture" validate:"gte=0,lte=100,gtefield=MinMoisture"`
	OptimalMoisture float64  `json:"optimal_moisture" yaml:"optimal_moisture" validate:"gtefield=MinMoisture,ltefield=MaxMoisture"`
	SoilType        string   `json:"soil_type" yaml:"soil_type" validate:"max=64"`
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

// Validator returns the shared validator used for records and configuration.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}

// Validate checks min <= optimal <= max, the [0,100] band and the crop enumeration.
func (f FieldRecord) Validate() error {
	if err := Validator().Struct(f); err != nil {
		return fmt.Errorf("field %d: %w", f.FieldID, err)
	}
	return nil
}

// OptimalRange returns the acceptable (min, max) band.
func (f FieldRecord) OptimalRange() [2]float64 {
	return [2]float64{f.MinMoisture, f.MaxMoisture}
}
