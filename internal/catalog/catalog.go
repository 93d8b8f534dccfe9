package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"wordmoment/internal/models"
)

//go:embed default.json
var defaultFS embed.FS

var (
	// ErrUnitNotFound is returned when a (level, unit) pair is not in the catalog
	ErrUnitNotFound = errors.New("unit not found")
	// ErrUnsupportedFormat is returned for catalog files that are neither JSON nor YAML
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
)

// Format identifies a catalog encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Catalog is an immutable, ordered set of units grouped by level
type Catalog struct {
	units  []models.Unit
	levels []string
	index  map[string]map[string]int
}

// Load reads a catalog file, choosing the decoder by file extension
func Load(path string) (*Catalog, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data, format)
}

// Default returns the starter catalog compiled into the binary
func Default() (*Catalog, error) {
	data, err := defaultFS.ReadFile("default.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded catalog: %w", err)
	}
	return Parse(data, FormatJSON)
}

// Parse decodes and validates a catalog
func Parse(data []byte, format Format) (*Catalog, error) {
	var units []models.Unit
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &units); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &units); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return New(units)
}

// New builds a catalog from units, validating them. Unit order is kept.
func New(units []models.Unit) (*Catalog, error) {
	c := &Catalog{
		units: make([]models.Unit, 0, len(units)),
		index: make(map[string]map[string]int),
	}

	for i, unit := range units {
		unit.LevelID = strings.TrimSpace(unit.LevelID)
		unit.UnitID = strings.TrimSpace(unit.UnitID)

		words := make([]models.WordEntry, len(unit.Words))
		for j, w := range unit.Words {
			w.Text = strings.TrimSpace(w.Text)
			w.Meaning = strings.TrimSpace(w.Meaning)
			w.PronunciationHint = strings.TrimSpace(w.PronunciationHint)
			if len(w.DisplayBlocks) == 0 {
				w.DisplayBlocks = nil
			}
			words[j] = w
		}
		unit.Words = words

		if err := validate.Struct(unit); err != nil {
			return nil, fmt.Errorf("invalid unit %d (%s/%s): %w", i, unit.LevelID, unit.UnitID, err)
		}

		units, ok := c.index[unit.LevelID]
		if !ok {
			units = make(map[string]int)
			c.index[unit.LevelID] = units
			c.levels = append(c.levels, unit.LevelID)
		}
		if _, dup := units[unit.UnitID]; dup {
			return nil, fmt.Errorf("duplicate unit %s/%s", unit.LevelID, unit.UnitID)
		}

		units[unit.UnitID] = len(c.units)
		c.units = append(c.units, unit)
	}

	return c, nil
}

// Levels returns level ids in first-seen order
func (c *Catalog) Levels() []string {
	return append([]string(nil), c.levels...)
}

// Units returns the units of a level in catalog order. Unknown levels yield nil.
func (c *Catalog) Units(levelID string) []models.Unit {
	positions, ok := c.index[levelID]
	if !ok {
		return nil
	}

	idx := make([]int, 0, len(positions))
	for _, i := range positions {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	units := make([]models.Unit, len(idx))
	for n, i := range idx {
		units[n] = c.units[i]
	}
	return units
}

// Unit returns a single unit
func (c *Catalog) Unit(levelID, unitID string) (models.Unit, error) {
	i, ok := c.index[levelID][unitID]
	if !ok {
		return models.Unit{}, fmt.Errorf("%w: %s/%s", ErrUnitNotFound, levelID, unitID)
	}
	return c.units[i], nil
}

// Len returns the number of units
func (c *Catalog) Len() int {
	return len(c.units)
}
