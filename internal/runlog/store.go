// Package runlog keeps a ledger of finished projection runs.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record summarizes one projection run.
type Record struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Target    string        `json:"target"`
	OutDir    string        `json:"outdir"`
	Steps     int           `json:"steps"`
	Seed      int64         `json:"seed"`
	FinalDist float64       `json:"final_dist"`
	FinalLoss float64       `json:"final_loss"`
	Outputs   []string      `json:"outputs,omitempty"`
}

// NewID returns a fresh run id.
func NewID() string {
	return uuid.New().String()
}

// ShortID returns the first eight characters of the run id, or the whole
// id when it is shorter.
func (r Record) ShortID() string {
	return r.ID[:min(8, len(r.ID))]
}

// Store persists run records.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, rec Record) error
	GetRun(ctx context.Context, id string) (Record, bool, error)
	// ListRuns returns records ordered by start time, oldest first.
	ListRuns(ctx context.Context) ([]Record, error)
}
