package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Result is the structured outcome of a save. Validation failures are results,
// not errors: the tool layer turns them into spoken apologies.
type Result struct {
	Success bool
	ID      string
	Missing []string
	Err     error
}

// ErrorMessage renders a failed result for logs and tool responses.
func (r Result) ErrorMessage() string {
	if len(r.Missing) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(r.Missing, ", "))
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// Store persists append-only records for one domain. Records are never
// updated or deleted; corrections are new records.
type Store interface {
	Save(ctx context.Context, fields map[string]string) Result
	Get(ctx context.Context, id string) (map[string]string, error)
	Close() error
}

// Spec describes one record domain: column layout, required fields, optional
// field defaults and the fixed initial status.
type Spec struct {
	Domain         string
	Prefix         string
	IDField        string
	TimestampField string
	Columns        []string
	Required       []string
	Defaults       map[string]string
	InitialStatus  string
}

// row builds the full record for a save: generated id, supplied fields with
// defaults applied, creation timestamp and initial status.
func (s Spec) row(id string, fields map[string]string, now time.Time) map[string]string {
	rec := make(map[string]string, len(s.Columns))
	for _, col := range s.Columns {
		switch col {
		case s.IDField:
			rec[col] = id
		case s.TimestampField:
			rec[col] = now.Format(time.RFC3339)
		case "status":
			rec[col] = s.InitialStatus
		default:
			v := strings.TrimSpace(fields[col])
			if v == "" {
				v = s.Defaults[col]
			}
			rec[col] = v
		}
	}
	return rec
}

// missingRequired returns the required fields absent or empty in fields.
func (s Spec) missingRequired(fields map[string]string) []string {
	var missing []string
	for _, f := range s.Required {
		if strings.TrimSpace(fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

const idStampFormat = "20060102150405"

// idGenerator produces <PREFIX><UTC second stamp> identifiers. The second
// granularity of the stamp is not enough on its own: rapid sequential saves
// would collide, so the generator never hands out the same stamp twice,
// advancing into the next second when needed.
type idGenerator struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newIDGenerator() *idGenerator {
	return &idGenerator{now: time.Now}
}

func (g *idGenerator) next(prefix string) (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().UTC().Truncate(time.Second)
	if !now.After(g.last) {
		now = g.last.Add(time.Second)
	}
	g.last = now
	return prefix + now.Format(idStampFormat), now
}
