package derive

import (
	"github.com/marketflow/marketflow/internal/config"
	"github.com/marketflow/marketflow/internal/model"
)

// designMatrix is the resolved modeling input for one segment: the outcome
// vector, the retained predictors in column-major order, and the observed
// range of each predictor.
type designMatrix struct {
	ranges  map[string][2]float64
	y       []float64
	columns [][]float64
	names   []string
}

// buildDesign resolves the available-predictor set once per segment: numeric
// columns minus the outcome, the date column, and pipeline metadata. Columns
// that are constant or entirely null are structurally non-identifiable and
// are dropped here rather than left to fail inside the solver. Rows with
// nulls in any retained predictor or the outcome are dropped (explicit
// listwise deletion).
func buildDesign(t *model.Table, seg config.SegmentConfig) designMatrix {
	outcomeIdx := t.ColumnIndex(seg.OutcomeColumn)

	var candidateIdx []int
	for i, c := range t.Columns {
		if i == outcomeIdx || c.Name == seg.DateColumn || excludedColumns[c.Name] {
			continue
		}
		switch c.Type {
		case model.TypeReal, model.TypeInteger, model.TypeBool:
			candidateIdx = append(candidateIdx, i)
		}
	}

	candidateIdx = dropDegenerate(t, candidateIdx, t.Rows)

	// Listwise deletion over the retained predictors and the outcome.
	var kept [][]any
	for _, row := range t.Rows {
		if _, ok := model.AsFloat(row[outcomeIdx]); !ok {
			continue
		}
		complete := true
		for _, idx := range candidateIdx {
			if _, ok := model.AsFloat(row[idx]); !ok {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		}
	}

	// Deletion can leave a predictor constant; check once more against the
	// surviving rows.
	candidateIdx = dropDegenerate(t, candidateIdx, kept)

	mat := designMatrix{ranges: make(map[string][2]float64, len(candidateIdx))}
	for _, row := range kept {
		v, _ := model.AsFloat(row[outcomeIdx])
		mat.y = append(mat.y, v)
	}
	for _, idx := range candidateIdx {
		name := t.Columns[idx].Name
		col := make([]float64, len(kept))
		min, max := 0.0, 0.0
		for i, row := range kept {
			v, _ := model.AsFloat(row[idx])
			col[i] = v
			if i == 0 || v < min {
				min = v
			}
			if i == 0 || v > max {
				max = v
			}
		}
		mat.columns = append(mat.columns, col)
		mat.names = append(mat.names, name)
		mat.ranges[name] = [2]float64{min, max}
	}
	return mat
}

// dropDegenerate filters out columns that are entirely null or constant over
// the given rows.
func dropDegenerate(t *model.Table, candidateIdx []int, rows [][]any) []int {
	var retained []int
	for _, idx := range candidateIdx {
		var (
			first    float64
			seen     bool
			variable bool
		)
		for _, row := range rows {
			v, ok := model.AsFloat(row[idx])
			if !ok {
				continue
			}
			if !seen {
				first, seen = v, true
				continue
			}
			if v != first {
				variable = true
				break
			}
		}
		if seen && variable {
			retained = append(retained, idx)
		}
	}
	return retained
}
