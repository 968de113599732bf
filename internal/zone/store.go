// Package zone implements the named storage zones backing the pipeline.
// Each zone is an independently addressable namespace of uniquely-named
// tables; writes are atomic at single-table granularity.
package zone

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/marketflow/marketflow/internal/common"
)

// The fixed zone names. Each phase writes only to its own zone and reads
// only from the zone immediately upstream.
const (
	Raw         = "raw"
	Staged      = "staged"
	Transformed = "transformed"
	Processed   = "processed"
	App         = "app"
)

// Names lists every zone in pipeline order.
func Names() []string {
	return []string{Raw, Staged, Transformed, Processed, App}
}

var identRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

func validateZone(zone string) error {
	switch zone {
	case Raw, Staged, Transformed, Processed, App:
		return nil
	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownZone, zone)
	}
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("table name %q exceeds 128 characters", name)
	}
	if !identRe.MatchString(name) {
		return fmt.Errorf("table name %q contains invalid characters", name)
	}
	return nil
}

// validateColumnName is deliberately looser than validateTableName: raw
// tables must carry upstream column names verbatim, and flat-file and API
// exports routinely ship headers with spaces, dashes, or leading digits.
// Only names that cannot survive quoted-identifier DDL are rejected.
func validateColumnName(name string) error {
	if name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("column name %q exceeds 128 characters", name)
	}
	for _, r := range name {
		if r == '"' || r == '\\' || !unicode.IsPrint(r) {
			return fmt.Errorf("column name %q contains invalid characters", name)
		}
	}
	return nil
}
