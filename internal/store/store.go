// Package store persists subscriber trade profiles, the tier registry,
// alerts, and the policy-change ingest log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariffwatch/internal/model"
)

// ErrNotFound is returned when a lookup or update targets a row that does
// not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the alerting pipeline.
type Store interface {
	// Subscribers
	ListTradeProfiles(ctx context.Context) ([]model.TradeProfile, error)
	GetSubscriber(ctx context.Context, userID string) (*model.Subscriber, error)

	// Alerts. InsertAlert returns false when a non-expired alert for the
	// same (user, policy type) already exists within the dedup window; the
	// existence check and the insert execute as one statement so
	// concurrent pushes cannot double-alert.
	InsertAlert(ctx context.Context, a model.Alert) (bool, error)
	ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, alertID string, read bool) error
	SweepExpiredAlerts(ctx context.Context) (int64, error)

	// Ingest log
	RecordIngest(ctx context.Context, entry model.IngestLog) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
