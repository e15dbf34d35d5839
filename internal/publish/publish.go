// Package publish delivers the post-sync summary. Publishing is best effort:
// callers log a failure and carry on.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parcelsync/internal/logging"
	"parcelsync/internal/store"

	"github.com/nats-io/nats.go"
)

// Summary describes one successful run.
type Summary struct {
	Layer       string    `json:"layer"`
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Unchanged   int       `json:"unchanged"`
	Message     string    `json:"message"`
}

// MessageLayout formats the human-readable last-updated line.
const MessageLayout = "January 2, 2006 15:04 MST"

// NewSummary builds a Summary with the "Last updated" message.
func NewSummary(layer, runID string, at time.Time, added, updated, deleted, unchanged int) Summary {
	at = at.UTC()
	return Summary{
		Layer:       layer,
		RunID:       runID,
		CompletedAt: at,
		Added:       added,
		Updated:     updated,
		Deleted:     deleted,
		Unchanged:   unchanged,
		Message: fmt.Sprintf("Last updated %s (%d added, %d updated, %d deleted)",
			at.Format(MessageLayout), added, updated, deleted),
	}
}

// Publisher delivers a summary.
type Publisher interface {
	Publish(ctx context.Context, s Summary) error
}

// Log writes the summary to the context logger.
type Log struct{}

// Publish implements Publisher.
func (Log) Publish(ctx context.Context, s Summary) error {
	logging.FromContext(ctx).Info().
		Str("layer", s.Layer).
		Int("added", s.Added).
		Int("updated", s.Updated).
		Int("deleted", s.Deleted).
		Int("unchanged", s.Unchanged).
		Msg(s.Message)
	return nil
}

// MetadataWriter stores the layer's last-updated row.
type MetadataWriter interface {
	WriteMetadata(ctx context.Context, m store.Metadata) error
}

// Metadata writes the summary message to the target's metadata table.
type Metadata struct {
	w MetadataWriter
}

// NewMetadata creates a Metadata publisher.
func NewMetadata(w MetadataWriter) *Metadata {
	return &Metadata{w: w}
}

// Publish implements Publisher.
func (m *Metadata) Publish(ctx context.Context, s Summary) error {
	return m.w.WriteMetadata(ctx, store.Metadata{LastUpdated: s.CompletedAt, Summary: s.Message})
}

// Conn is the part of *nats.Conn the NATS publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATS publishes the JSON summary on a subject.
type NATS struct {
	conn    Conn
	subject string
}

// NewNATS wraps an existing connection.
func NewNATS(conn Conn, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

// DialNATS connects to url. The caller closes the returned connection.
func DialNATS(url string, timeout time.Duration) (*nats.Conn, error) {
	if timeout <= 0 {
		timeout = nats.DefaultTimeout
	}
	nc, err := nats.Connect(url, nats.Name("parcelsync"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Publish implements Publisher.
func (n *NATS) Publish(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", n.subject, err)
	}
	return nil
}

// Multi publishes to every publisher in turn, even after a failure, and
// joins the errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, s Summary) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
