// Package stager implements the Stage phase: declarative column renaming,
// type coercion, encoding repair, null handling, and deduplication. It never
// joins entities and never computes business metrics.
package stager

import (
	"fmt"
	"os"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"

	"gopkg.in/yaml.v3"
)

// ColumnSpec maps one raw source column to its business name and type.
type ColumnSpec struct {
	Raw        string           `yaml:"raw"`
	Name       string           `yaml:"name"`
	Type       model.ColumnType `yaml:"type"`
	RepairText bool             `yaml:"repair_text"`
}

// ColumnMap is the declarative staging recipe for one entity. The mapping
// must be injective: no two raw columns may map to the same business name.
type ColumnMap struct {
	Entity       string       `yaml:"entity"`
	DateColumn   string       `yaml:"date_column"`
	NaturalKey   []string     `yaml:"natural_key"`
	Columns      []ColumnSpec `yaml:"columns"`
	DropUnmapped bool         `yaml:"drop_unmapped"`
}

// LoadColumnMap reads and validates a column map from a YAML file.
func LoadColumnMap(path string) (*ColumnMap, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read column map %s: %w", path, err)
	}

	var m ColumnMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse column map %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("column map %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the map for contradictions.
func (m *ColumnMap) Validate() error {
	if m.Entity == "" {
		return fmt.Errorf("%w: entity is required", common.ErrInvalidConfig)
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("%w: at least one column mapping is required", common.ErrInvalidConfig)
	}

	rawSeen := make(map[string]bool, len(m.Columns))
	nameSeen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if c.Raw == "" || c.Name == "" {
			return fmt.Errorf("%w: column mapping needs both raw and name", common.ErrInvalidConfig)
		}
		if rawSeen[c.Raw] {
			return fmt.Errorf("%w: raw column %q mapped twice", common.ErrInvalidConfig, c.Raw)
		}
		if nameSeen[c.Name] {
			return fmt.Errorf("%w: business name %q used twice", common.ErrInvalidConfig, c.Name)
		}
		rawSeen[c.Raw] = true
		nameSeen[c.Name] = true

		switch c.Type {
		case "", model.TypeText, model.TypeReal, model.TypeInteger, model.TypeTimestamp, model.TypeBool:
		default:
			return fmt.Errorf("%w: column %q has unknown type %q", common.ErrInvalidConfig, c.Name, c.Type)
		}
	}

	for _, k := range m.NaturalKey {
		if !nameSeen[k] {
			return fmt.Errorf("%w: natural key column %q is not a mapped name", common.ErrInvalidConfig, k)
		}
	}
	if m.DateColumn != "" && !nameSeen[m.DateColumn] {
		return fmt.Errorf("%w: date column %q is not a mapped name", common.ErrInvalidConfig, m.DateColumn)
	}
	return nil
}
