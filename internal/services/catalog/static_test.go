package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := Default()
	require.Equal(t, []int{1, 2, 12, 15, 20}, c.IDs())

	rec, err := c.Lookup(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, entities.CropTomato, rec.CropType)
	require.Equal(t, 47.5, rec.OptimalMoisture)
	require.Equal(t, "sandy-loam", rec.SoilType)

	_, err = c.Lookup(context.Background(), 99)
	require.ErrorIs(t, err, decision.ErrFieldNotFound)
}

func TestStaticRejectsBadRecords(t *testing.T) {
	t.Parallel()

	good := DefaultFields()[0]

	_, err := NewStatic([]model.FieldRecord{good, good})
	require.ErrorIs(t, err, errDuplicateField)

	bad := good
	bad.OptimalMoisture = bad.MaxMoisture + 1
	_, err = NewStatic([]model.FieldRecord{bad})
	require.Error(t, err)
}

func TestStaticLookupHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Default().Lookup(ctx, 12)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStaticReplaceIsConcurrentSafe(t *testing.T) {
	t.Parallel()

	c := Default()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.Lookup(context.Background(), 12)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Replace(DefaultFields()))
		}()
	}
	wg.Wait()

	require.NoError(t, c.Replace(DefaultFields()[:1]))
	require.Equal(t, []int{1}, c.IDs())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	doc := `fields:
  - field_id: 7
    crop_type: corn
    min_moisture: 30
    max_moisture: 50
    optimal_moisture: 40
    soil_type: clay
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	rec, err := c.Lookup(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, entities.CropCorn, rec.CropType)
	require.Equal(t, [2]float64{30, 50}, rec.OptimalRange())
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("fields: []\n"), 0o600))
	_, err = LoadFile(empty)
	require.ErrorContains(t, err, "no fields")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("fields: [\n"), 0o600))
	_, err = LoadFile(broken)
	require.ErrorContains(t, err, "parse field catalog")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("fields:\n  - field_id: 3\n    crop_type: rice\n"), 0o600))
	_, err = LoadFile(invalid)
	require.ErrorContains(t, err, "field 3")
}
