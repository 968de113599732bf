package model

import "time"

// PredictorType is the semantic family of a model predictor, inferred from
// its column name.
type PredictorType string

const (
	// PredictorTime marks temporal features (month, weekday, trend terms).
	PredictorTime PredictorType = "time_feature"
	// PredictorProduct marks product attributes (price, brand dummies).
	PredictorProduct PredictorType = "product_attribute"
	// PredictorComment marks review/sentiment features.
	PredictorComment PredictorType = "comment_attribute"
	// PredictorStructural marks identifier-like columns excluded from
	// downstream display.
	PredictorStructural PredictorType = "structural"
)

// DataType is the measurement class of a predictor.
type DataType string

const (
	// DataBinary marks predictors whose observed range is exactly [0, 1].
	DataBinary DataType = "binary"
	// DataNumerical marks continuous or count-valued predictors.
	DataNumerical DataType = "numerical"
	// DataDummy marks one-hot columns expanded from a categorical variable.
	DataDummy DataType = "dummy"
)

// PredictorRecord is one row of derivation output: the fitted effect of one
// predictor on the outcome count for one segment. The full record set for a
// segment is replaced wholesale on every derivation run.
type PredictorRecord struct {
	ComputedAt         time.Time
	DataVersion        time.Time
	SegmentID          string
	PredictorName      string
	PredictorType      PredictorType
	DataType           DataType
	SourceVariable     string
	Coefficient        float64
	IncidenceRateRatio float64
	StdError           float64
	ZValue             float64
	PValue             float64
	ConfLow            float64
	ConfHigh           float64
	IRRConfLow         float64
	IRRConfHigh        float64
	PredictorMin       float64
	PredictorMax       float64
	PredictorRange     float64
	TrackMultiplier    float64
	SampleSize         int
	PredictorIsBinary  bool
	Convergence        bool
}

// PredictorColumns is the canonical predictor table schema. Every derivation
// output table, including the empty-schema sentinel, carries exactly these
// columns in this order.
func PredictorColumns() []Column {
	return []Column{
		{Name: "segment_id", Type: TypeText},
		{Name: "predictor_name", Type: TypeText},
		{Name: "predictor_type", Type: TypeText},
		{Name: "data_type", Type: TypeText},
		{Name: "source_variable", Type: TypeText},
		{Name: "coefficient", Type: TypeReal},
		{Name: "incidence_rate_ratio", Type: TypeReal},
		{Name: "std_error", Type: TypeReal},
		{Name: "z_value", Type: TypeReal},
		{Name: "p_value", Type: TypeReal},
		{Name: "conf_low", Type: TypeReal},
		{Name: "conf_high", Type: TypeReal},
		{Name: "irr_conf_low", Type: TypeReal},
		{Name: "irr_conf_high", Type: TypeReal},
		{Name: "predictor_min", Type: TypeReal},
		{Name: "predictor_max", Type: TypeReal},
		{Name: "predictor_range", Type: TypeReal},
		{Name: "track_multiplier", Type: TypeReal},
		{Name: "predictor_is_binary", Type: TypeBool},
		{Name: "sample_size", Type: TypeInteger},
		{Name: "convergence", Type: TypeBool},
		{Name: "computed_at", Type: TypeTimestamp},
		{Name: "data_version", Type: TypeTimestamp},
	}
}

// EmptyPredictorTable returns the zero-row sentinel with the canonical
// schema. Absence of a table is never a valid derivation outcome; this is
// what a segment writes when its input is missing, empty, or degenerate.
func EmptyPredictorTable(name string) *Table {
	return NewTable(name, PredictorColumns())
}

// Row flattens the record into canonical column order.
func (r PredictorRecord) Row() []any {
	var source any
	if r.SourceVariable != "" {
		source = r.SourceVariable
	}
	return []any{
		r.SegmentID,
		r.PredictorName,
		string(r.PredictorType),
		string(r.DataType),
		source,
		r.Coefficient,
		r.IncidenceRateRatio,
		r.StdError,
		r.ZValue,
		r.PValue,
		r.ConfLow,
		r.ConfHigh,
		r.IRRConfLow,
		r.IRRConfHigh,
		r.PredictorMin,
		r.PredictorMax,
		r.PredictorRange,
		r.TrackMultiplier,
		r.PredictorIsBinary,
		int64(r.SampleSize),
		r.Convergence,
		r.ComputedAt,
		r.DataVersion,
	}
}

// PredictorTable builds a table from records under the canonical schema.
func PredictorTable(name string, records []PredictorRecord) *Table {
	t := EmptyPredictorTable(name)
	for _, r := range records {
		t.Rows = append(t.Rows, r.Row())
	}
	return t
}
