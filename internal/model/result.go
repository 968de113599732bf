package model

// Status is the outcome class of one phase applied to one entity.
type Status string

const (
	// StatusSuccess means the phase completed with no data-quality caveats.
	StatusSuccess Status = "success"
	// StatusDegraded means the phase completed but observed a data-quality
	// problem the caller should know about (schema drift, low match rate).
	StatusDegraded Status = "degraded"
	// StatusFailed means the phase produced no output for this entity.
	StatusFailed Status = "failed"
)

// Result is the explicit outcome of one phase for one entity. Failures are
// local: a failed Result for one entity never aborts sibling entities.
type Result struct {
	Status   Status
	Entity   string
	Table    string
	Reason   string
	Warnings []string
	RowsIn   int
	RowsOut  int
}

// Success builds a clean result.
func Success(entity, table string, rowsIn, rowsOut int) Result {
	return Result{Status: StatusSuccess, Entity: entity, Table: table, RowsIn: rowsIn, RowsOut: rowsOut}
}

// Degraded builds a completed-with-caveats result.
func Degraded(entity, table, reason string, rowsIn, rowsOut int) Result {
	return Result{Status: StatusDegraded, Entity: entity, Table: table, Reason: reason, RowsIn: rowsIn, RowsOut: rowsOut}
}

// Failed builds a no-output result.
func Failed(entity, reason string) Result {
	return Result{Status: StatusFailed, Entity: entity, Reason: reason}
}

// Warn appends a warning to the result, downgrading success to degraded.
func (r Result) Warn(msg string) Result {
	r.Warnings = append(r.Warnings, msg)
	if r.Status == StatusSuccess {
		r.Status = StatusDegraded
		if r.Reason == "" {
			r.Reason = msg
		}
	}
	return r
}

// OK reports whether the phase produced output.
func (r Result) OK() bool {
	return r.Status != StatusFailed
}
