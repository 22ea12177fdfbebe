package gate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fabbondanza/cytogate/internal/monitoring"
)

// Diagnostics collects the non-fatal observations made during a single
// gating operation. Every operation returns a fresh value; warnings are
// never accumulated on the gate itself, so a gate can be reused across
// calls without stale state leaking between runs.
type Diagnostics struct {
	// RunID uniquely identifies the operation that produced these
	// diagnostics, tying log lines back to the returned value.
	RunID string

	// Warnings holds human-readable descriptions of soft anomalies in
	// the order they were observed.
	Warnings []string
}

// NewDiagnostics returns an empty diagnostics value with a fresh run
// identifier.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{RunID: uuid.New().String()}
}

// warnf records a warning and mirrors it to the package logger.
func (d *Diagnostics) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.Warnings = append(d.Warnings, msg)
	monitoring.Logf("gate %s: %s", d.RunID, msg)
}
