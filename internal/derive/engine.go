// Package derive implements the Derivation Engine: per-segment count
// regressions over transformed data, classified and enriched into versioned
// predictor tables in the app zone.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/marketflow/marketflow/internal/classify"
	"github.com/marketflow/marketflow/internal/config"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
	"github.com/marketflow/marketflow/internal/zone"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// state names the stations of the per-segment derivation state machine.
// Any gate failure exits early to stateEmptySchema.
type state string

const (
	stateLoaded       state = "loaded"
	stateDateResolved state = "date_resolved"
	stateIdentified   state = "predictors_identified"
	stateFitted       state = "fitted"
	stateClassified   state = "classified"
	stateEnriched     state = "enriched"
	stateWritten      state = "written"
	stateEmptySchema  state = "empty_schema_written"
)

// predictorEntity names the derivation output family in the app zone.
const predictorEntity = "predictors"

// combinedQualifier names the all-segments merge table.
const combinedQualifier = "combined"

// metadata columns never enter the design matrix.
var excludedColumns = map[string]bool{
	"staged_timestamp": true,
	"staging_version":  true,
	"import_source":    true,
	"import_timestamp": true,
	"platform_code":    true,
	"transaction_id":   true,
}

// Outcome reports what one segment's derivation produced.
type Outcome struct {
	SegmentID  string
	Table      string
	FinalState state
	Result     model.Result
	Records    []model.PredictorRecord
	Fallback   bool
	Elapsed    time.Duration
}

// Engine runs the derivation loop over independent segments.
type Engine struct {
	zones      service.ZoneStore
	policy     *classify.Policy
	logger     *slog.Logger
	thresholds config.Thresholds
	workers    int
}

// New creates an engine. workers bounds the per-segment worker pool; zero
// or negative means one worker per CPU.
func New(zones service.ZoneStore, policy *classify.Policy, thresholds config.Thresholds, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		zones:      zones,
		policy:     policy,
		thresholds: thresholds,
		workers:    workers,
		logger:     slog.Default().With("component", "derive"),
	}
}

// Run derives every segment, then merges all segment outputs into the
// combined table. Segments are independent and run concurrently; a modeling
// failure in one degrades only that segment to the empty-schema sentinel.
// The merge blocks until every segment write, including fallbacks, is done.
func (e *Engine) Run(ctx context.Context, segments []config.SegmentConfig) ([]Outcome, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments configured")
	}

	bar := progressbar.Default(int64(len(segments)), "deriving segments")
	outcomes := make([]Outcome, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	var mu sync.Mutex

	for i, seg := range segments {
		g.Go(func() error {
			out := e.deriveSegment(gctx, seg)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			_ = bar.Add(1)
			if out.Result.Status == model.StatusFailed {
				// Even the sentinel could not be written; this is a zone
				// failure, not a modeling failure, and it aborts the run.
				return fmt.Errorf("segment %s: %s", seg.ID, out.Result.Reason)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	if err := e.writeCombined(ctx, outcomes); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (e *Engine) writeCombined(ctx context.Context, outcomes []Outcome) error {
	var all []model.PredictorRecord
	for _, out := range outcomes {
		all = append(all, out.Records...)
	}
	combined := model.PredictorTable(model.TableName(predictorEntity, combinedQualifier), all)
	if err := e.zones.Write(ctx, zone.App, combined, service.Overwrite); err != nil {
		return fmt.Errorf("failed to write combined predictor table: %w", err)
	}
	e.logger.Info("Wrote combined predictor table",
		"table", combined.Name,
		"rows", combined.NumRows())
	return nil
}

// deriveSegment walks one segment through the state machine. All modeling
// errors degrade to the sentinel; only a failed zone write yields a failed
// result.
func (e *Engine) deriveSegment(ctx context.Context, seg config.SegmentConfig) (out Outcome) {
	start := time.Now()
	tableName := model.TableName(predictorEntity, seg.ID)
	out = Outcome{SegmentID: seg.ID, Table: tableName}
	defer func() { out.Elapsed = time.Since(start) }()

	// A solver panic on pathological input must not take down siblings.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Derivation panicked, degrading segment",
				"segment", seg.ID, "panic", r)
			out = e.sentinel(ctx, seg, tableName, fmt.Sprintf("modeling panic: %v", r))
			out.Elapsed = time.Since(start)
		}
	}()

	// Loaded
	input, reason := e.loadInput(ctx, seg)
	if reason != "" {
		return e.sentinel(ctx, seg, tableName, reason)
	}

	// DateResolved. Segments configured dateless are permanently degraded:
	// steady-state versioning has no meaning without a date column.
	if seg.Dateless {
		return e.sentinel(ctx, seg, tableName, "segment configured without a date column")
	}
	dataVersion, ok := maxDate(input, seg.DateColumn)
	if !ok {
		return e.sentinel(ctx, seg, tableName, fmt.Sprintf("date column %q missing or empty", seg.DateColumn))
	}

	// PredictorsIdentified
	outcomeCol := seg.OutcomeColumn
	if !input.HasColumn(outcomeCol) {
		return e.sentinel(ctx, seg, tableName, fmt.Sprintf("outcome column %q missing", outcomeCol))
	}
	mat := buildDesign(input, seg)
	if len(mat.names) == 0 {
		return e.sentinel(ctx, seg, tableName, "no usable predictors after exclusions")
	}

	// Sparsity gates.
	positives := 0
	for _, v := range mat.y {
		if v > 0 {
			positives++
		}
	}
	if positives < e.thresholds.MinPositives {
		return e.sentinel(ctx, seg, tableName,
			fmt.Sprintf("only %d positive observations, floor is %d", positives, e.thresholds.MinPositives))
	}
	zeroRate := 1 - float64(positives)/float64(len(mat.y))
	if zeroRate > e.thresholds.MaxZeroRate {
		return e.sentinel(ctx, seg, tableName,
			fmt.Sprintf("zero rate %.3f exceeds ceiling %.3f", zeroRate, e.thresholds.MaxZeroRate))
	}

	// Fitted
	fit, err := fitPoisson(mat.y, mat.columns, mat.names)
	if err != nil {
		return e.sentinel(ctx, seg, tableName, err.Error())
	}

	// Classified + Enriched
	now := time.Now().UTC()
	records := make([]model.PredictorRecord, 0, len(fit.Terms))
	for _, term := range fit.Terms {
		records = append(records, e.enrich(term, mat, seg.ID, fit, now, dataVersion))
	}

	// Written
	table := model.PredictorTable(tableName, records)
	if err := e.zones.Write(ctx, zone.App, table, service.Overwrite); err != nil {
		return Outcome{
			SegmentID:  seg.ID,
			Table:      tableName,
			FinalState: stateEnriched,
			Result:     model.Failed(seg.ID, err.Error()),
		}
	}

	e.logger.Info("Derived segment",
		"segment", seg.ID,
		"predictors", len(records),
		"sample_size", len(mat.y),
		"data_version", dataVersion)

	return Outcome{
		SegmentID:  seg.ID,
		Table:      tableName,
		FinalState: stateWritten,
		Result:     model.Success(seg.ID, tableName, input.NumRows(), len(records)),
		Records:    records,
	}
}

// enrich builds the full predictor record for one fitted term: IRR and its
// interval by exponentiating the coefficient interval, the observed range,
// and the normalized track multiplier.
func (e *Engine) enrich(term Term, mat designMatrix, segmentID string, fit *FitResult, now, dataVersion time.Time) model.PredictorRecord {
	z := 0.0
	if term.StdErr > 0 {
		z = term.Coef / term.StdErr
	}
	confLow := term.Coef - z975*term.StdErr
	confHigh := term.Coef + z975*term.StdErr

	min, max := mat.ranges[term.Name][0], mat.ranges[term.Name][1]
	rng := max - min
	multiplier := 100.0
	if rng != 0 {
		multiplier = 100.0 / rng
	}

	c := e.policy.Classify(term.Name, min, max)

	return model.PredictorRecord{
		SegmentID:          segmentID,
		PredictorName:      term.Name,
		PredictorType:      c.PredictorType,
		DataType:           c.DataType,
		SourceVariable:     c.SourceVariable,
		Coefficient:        term.Coef,
		IncidenceRateRatio: math.Exp(term.Coef),
		StdError:           term.StdErr,
		ZValue:             z,
		PValue:             twoSidedP(z),
		ConfLow:            confLow,
		ConfHigh:           confHigh,
		IRRConfLow:         math.Exp(confLow),
		IRRConfHigh:        math.Exp(confHigh),
		PredictorMin:       min,
		PredictorMax:       max,
		PredictorRange:     rng,
		TrackMultiplier:    multiplier,
		PredictorIsBinary:  min == 0 && max == 1,
		SampleSize:         len(mat.y),
		Convergence:        fit.Converged,
		ComputedAt:         now,
		DataVersion:        dataVersion,
	}
}

// loadInput reads the segment's input table from the transformed zone,
// falling back to the processed zone. An empty reason string means success.
func (e *Engine) loadInput(ctx context.Context, seg config.SegmentConfig) (*model.Table, string) {
	for _, z := range []string{zone.Transformed, zone.Processed} {
		exists, err := e.zones.Exists(ctx, z, seg.InputTable)
		if err != nil {
			return nil, err.Error()
		}
		if !exists {
			continue
		}
		t, err := e.zones.Read(ctx, z, seg.InputTable)
		if err != nil {
			return nil, err.Error()
		}
		if t.NumRows() == 0 {
			return nil, "input table is empty"
		}
		return t, ""
	}
	return nil, fmt.Sprintf("input table %q not found", seg.InputTable)
}

// sentinel writes the zero-row canonical-schema table for a degraded
// segment. Absence of a table is never a valid outcome.
func (e *Engine) sentinel(ctx context.Context, seg config.SegmentConfig, tableName, reason string) Outcome {
	e.logger.Warn("Segment degraded to empty schema",
		"segment", seg.ID,
		"reason", reason)

	table := model.EmptyPredictorTable(tableName)
	if err := e.zones.Write(ctx, zone.App, table, service.Overwrite); err != nil {
		return Outcome{
			SegmentID:  seg.ID,
			Table:      tableName,
			FinalState: stateEmptySchema,
			Result:     model.Failed(seg.ID, fmt.Sprintf("failed to write sentinel: %v", err)),
			Fallback:   true,
		}
	}
	return Outcome{
		SegmentID:  seg.ID,
		Table:      tableName,
		FinalState: stateEmptySchema,
		Result:     model.Degraded(seg.ID, tableName, reason, 0, 0),
		Fallback:   true,
	}
}

// maxDate resolves data_version: the latest timestamp present in the input
// data, not the wall-clock run time.
func maxDate(t *model.Table, column string) (time.Time, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return time.Time{}, false
	}
	var max time.Time
	found := false
	for _, row := range t.Rows {
		if ts, ok := row[idx].(time.Time); ok {
			if !found || ts.After(max) {
				max = ts
				found = true
			}
		}
	}
	return max, found
}
