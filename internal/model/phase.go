package model

import "strings"

// Phase identifies which pipeline stage produced a table, and therefore which
// transformations were legal when producing it.
type Phase string

const (
	// PhaseImport covers extraction and raw persistence only: no renames, no
	// type coercion beyond what the source format forces, no joins.
	PhaseImport Phase = "import"
	// PhaseStage covers column renaming, type coercion, encoding repair, null
	// handling, and deduplication. No joins, no business-rule columns.
	PhaseStage Phase = "stage"
	// PhaseTransform may join exactly the staged entities needed to
	// materialize one derived business entity.
	PhaseTransform Phase = "transform"
	// PhaseDerive covers statistical modeling only; its output contains
	// computed statistics, never raw transaction rows.
	PhaseDerive Phase = "derive"
)

// nameSep separates the segments of a table name. Consumers locate tables
// purely by this convention; there is no registry.
const nameSep = "___"

// TableName builds a table name from an entity, a phase-or-zone qualifier,
// and an optional source qualifier: <entity>___<qualifier>[___<source>].
func TableName(entity, qualifier string, source ...string) string {
	parts := []string{entity, qualifier}
	for _, s := range source {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, nameSep)
}

// RawTableName names an imported raw table: <platform>_<entity>_raw.
func RawTableName(platform, entity string) string {
	return platform + "_" + entity + "_raw"
}
