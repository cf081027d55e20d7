// Package ingest receives policy changes from the upstream announcement
// pipeline, quarantines low-confidence extractions, and drives the
// match-and-alert flow for the rest.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/hscode"
	"github.com/sells-group/tariffwatch/internal/model"
)

// Matcher projects a policy change onto affected subscribers.
type Matcher interface {
	FindAffectedUsers(ctx context.Context, pc model.PolicyChange) ([]model.AffectedUser, error)
}

// Pusher persists alerts for affected users.
type Pusher interface {
	Push(ctx context.Context, pc model.PolicyChange, users []model.AffectedUser) (model.PushSummary, error)
}

// LogStore records ingestion outcomes.
type LogStore interface {
	RecordIngest(ctx context.Context, entry model.IngestLog) error
}

// Result is the outcome of processing one policy change.
type Result struct {
	Quarantined bool              `json:"quarantined"`
	Summary     model.PushSummary `json:"summary"`
	Users       int               `json:"affected_users"`
}

// Processor validates and processes incoming policy changes.
type Processor struct {
	matcher Matcher
	pusher  Pusher
	logs    LogStore
	now     func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(matcher Matcher, pusher Pusher, logs LogStore) *Processor {
	return &Processor{matcher: matcher, pusher: pusher, logs: logs, now: time.Now}
}

// Decode reads one policy-change JSON document and validates it.
func Decode(r io.Reader) (model.PolicyChange, error) {
	var pc model.PolicyChange
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pc); err != nil {
		return pc, eris.Wrap(err, "ingest: decode policy change")
	}
	return pc, Validate(pc)
}

// Validate checks the structural invariants of a policy change: a known
// policy type, at least one parseable HS code, and non-negative rates.
func Validate(pc model.PolicyChange) error {
	if !pc.PolicyType.Valid() {
		return eris.Errorf("ingest: unknown policy type %q", pc.PolicyType)
	}
	if len(pc.HSCodesAffected) == 0 {
		return eris.New("ingest: no affected HS codes")
	}
	valid := 0
	for _, code := range pc.HSCodesAffected {
		if hscode.IsValid(code) {
			valid++
		}
	}
	if valid == 0 {
		return eris.New("ingest: no valid affected HS codes")
	}
	if pc.OldRate < 0 || pc.NewRate < 0 {
		return eris.New("ingest: negative rate")
	}
	if pc.Confidence < 0 || pc.Confidence > 1 {
		return eris.Errorf("ingest: confidence %.2f out of range", pc.Confidence)
	}
	return nil
}

// Process runs the full flow for one validated policy change. A change
// below the auto-process confidence threshold is recorded as quarantined
// and produces no alerts; a human reviews it out of band.
func (p *Processor) Process(ctx context.Context, pc model.PolicyChange) (Result, error) {
	if err := Validate(pc); err != nil {
		return Result{}, err
	}

	entry := model.IngestLog{
		ID:         uuid.NewString(),
		PolicyType: pc.PolicyType,
		Source:     pc.AnnouncementSource,
		URL:        pc.AnnouncementURL,
		Confidence: pc.Confidence,
		CreatedAt:  p.now().UTC(),
	}

	if !pc.AutoProcessable() {
		zap.L().Warn("ingest: quarantining low-confidence change",
			zap.String("policy_type", string(pc.PolicyType)),
			zap.Float64("confidence", pc.Confidence),
			zap.String("source", pc.AnnouncementSource),
		)
		entry.Quarantined = true
		if err := p.logs.RecordIngest(ctx, entry); err != nil {
			return Result{}, eris.Wrap(err, "ingest: record quarantine")
		}
		return Result{Quarantined: true}, nil
	}

	users, err := p.matcher.FindAffectedUsers(ctx, pc)
	if err != nil {
		return Result{}, eris.Wrap(err, "ingest: find affected users")
	}

	summary, err := p.pusher.Push(ctx, pc, users)
	if err != nil {
		return Result{}, eris.Wrap(err, "ingest: push alerts")
	}

	entry.AlertsCreated = summary.TotalAlertsCreated
	entry.TotalCostIncrease = summary.TotalCostIncrease
	if err := p.logs.RecordIngest(ctx, entry); err != nil {
		// Alerts are already persisted; a failed log write must not make
		// the caller retry and double-process.
		zap.L().Error("ingest: record outcome failed", zap.Error(err))
	}

	zap.L().Info("ingest: processed policy change",
		zap.String("policy_type", string(pc.PolicyType)),
		zap.Int("affected_users", len(users)),
		zap.Int("alerts_created", summary.TotalAlertsCreated),
		zap.Float64("total_cost_increase", summary.TotalCostIncrease),
	)

	return Result{Summary: summary, Users: len(users)}, nil
}
