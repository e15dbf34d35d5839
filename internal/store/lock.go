package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
)

// Bookkeeping tables shared by every layer.
const (
	LocksTable    = "SYNC_LOCKS"
	MetadataTable = "SYNC_METADATA"
)

// LockHolder returns the holder of the layer's lock, or "" when unlocked.
func (s *SQL) LockHolder(ctx context.Context) (string, error) {
	q := fmt.Sprintf("SELECT HOLDER FROM %s WHERE LAYER_NAME = %s", LocksTable, s.dialect.Placeholder(1))
	var holder string
	err := s.db.QueryRowContext(ctx, q, s.table).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", pserrors.NewTransportError("target", "lock status", err)
	}
	return holder, nil
}

// IsLocked reports whether another writer holds the layer's lock. The lock
// this store holds itself does not count.
func (s *SQL) IsLocked(ctx context.Context) (bool, error) {
	holder, err := s.LockHolder(ctx)
	if err != nil {
		return false, err
	}
	return holder != "" && holder != s.holder, nil
}

// Acquire takes the layer's lock. A lock held by another writer is a
// ConcurrencyConflict; acquiring twice is a no-op.
func (s *SQL) Acquire(ctx context.Context) error {
	q := fmt.Sprintf("INSERT INTO %s (LAYER_NAME, HOLDER, ACQUIRED_AT) VALUES (%s)", LocksTable, s.dialect.binds(1, 3))
	_, err := s.db.ExecContext(ctx, q, s.table, s.holder, s.dialect.EncodeTime(s.now()))
	if err == nil {
		logging.FromContext(ctx).Debug().Str("table", s.table).Str("holder", s.holder).Msg("lock acquired")
		return nil
	}
	if !s.dialect.IsUniqueViolation(err) {
		return pserrors.NewTransportError("target", "acquire lock", err)
	}

	holder, herr := s.LockHolder(ctx)
	if herr != nil {
		return herr
	}
	if holder == s.holder {
		return nil
	}
	return pserrors.NewConcurrencyConflict(s.table, holder, nil)
}

// Release drops the layer's lock if this store holds it.
func (s *SQL) Release(ctx context.Context) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE LAYER_NAME = %s AND HOLDER = %s",
		LocksTable, s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	if _, err := s.db.ExecContext(ctx, q, s.table, s.holder); err != nil {
		return pserrors.NewTransportError("target", "release lock", err)
	}
	return nil
}

// WriteMetadata records the layer's last successful update.
func (s *SQL) WriteMetadata(ctx context.Context, m Metadata) error {
	upd := fmt.Sprintf("UPDATE %s SET LAST_UPDATED = %s, SUMMARY = %s WHERE LAYER_NAME = %s",
		MetadataTable, s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3))
	r, err := s.db.ExecContext(ctx, upd, s.dialect.EncodeTime(m.LastUpdated), m.Summary, s.table)
	if err != nil {
		return pserrors.NewTransportError("target", "write metadata", err)
	}
	if n, err := r.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	ins := fmt.Sprintf("INSERT INTO %s (LAYER_NAME, LAST_UPDATED, SUMMARY) VALUES (%s)", MetadataTable, s.dialect.binds(1, 3))
	if _, err := s.db.ExecContext(ctx, ins, s.table, s.dialect.EncodeTime(m.LastUpdated), m.Summary); err != nil {
		return pserrors.NewTransportError("target", "write metadata", err)
	}
	return nil
}

// ReadMetadata returns the layer's metadata row. ok is false when none was
// written yet.
func (s *SQL) ReadMetadata(ctx context.Context) (m Metadata, ok bool, err error) {
	q := fmt.Sprintf("SELECT LAST_UPDATED, SUMMARY FROM %s WHERE LAYER_NAME = %s", MetadataTable, s.dialect.Placeholder(1))
	var last any
	err = s.db.QueryRowContext(ctx, q, s.table).Scan(&last, &m.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, pserrors.NewTransportError("target", "read metadata", err)
	}
	if t, isTime := last.(time.Time); isTime {
		m.LastUpdated = t.UTC()
	} else {
		m.LastUpdated = parseTime(text(last))
	}
	return m, true, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
