// Package store implements the target store over database/sql: a fresh
// PIN/REVISIONDATE/GlobalID snapshot, an all-or-nothing apply of an edit
// batch, a per-layer writer lock and the last-updated metadata row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"parcelsync/internal/diff"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/schema"
	"parcelsync/internal/types"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Fixed columns of the parcel layer.
const (
	ColumnGlobalID = "GLOBALID"
	ColumnPIN      = "PIN"
	ColumnRevision = "REVISIONDATE"
	ColumnShape    = "SHAPE"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Target is the target store as the pipeline sees it.
type Target interface {
	Snapshot(ctx context.Context) ([]types.TargetRecord, error)
	Apply(ctx context.Context, b diff.Batch) (ApplyResult, error)
	IsLocked(ctx context.Context) (bool, error)
}

// Locker is implemented by targets that take a writer lock for a run.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// ApplyResult counts the rows written by Apply.
type ApplyResult struct {
	Added   int
	Updated int
	Deleted int
	// GlobalIDs are the identities assigned to the adds, in batch order.
	GlobalIDs []string
}

// Stored is a full parcel row read back from the target.
type Stored struct {
	GlobalID string
	Record   types.Record
}

// Metadata is the layer's last-updated row.
type Metadata struct {
	LastUpdated time.Time
	Summary     string
}

// SQL is a target store in a SQL table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	table   string
	fields  []schema.Field
	holder  string
	now     func() time.Time
	newID   func() string
}

// Option configures a SQL store.
type Option func(*SQL)

// WithHolder sets the lock holder name of this run.
func WithHolder(holder string) Option {
	return func(s *SQL) { s.holder = holder }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SQL) { s.now = now }
}

// WithIDGenerator replaces the GlobalID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *SQL) { s.newID = fn }
}

// NewGlobalID returns a braced upper-case UUID.
func NewGlobalID() string {
	return "{" + strings.ToUpper(uuid.NewString()) + "}"
}

// New creates a store for table. Attribute columns are the schema's
// Columns.
func New(db *sql.DB, d Dialect, table string, s *schema.Schema, opts ...Option) (*SQL, error) {
	if !identifier.MatchString(table) {
		return nil, pserrors.NewConfigError("target.table", "invalid table name "+table)
	}
	st := &SQL{
		db:      db,
		dialect: d,
		table:   strings.ToUpper(table),
		holder:  uuid.NewString(),
		now:     time.Now,
		newID:   NewGlobalID,
	}
	for _, name := range s.Columns() {
		f, _ := s.Field(name)
		if !identifier.MatchString(f.Name) {
			return nil, pserrors.NewConfigError("schema", "field "+f.Name+" is not a valid column name")
		}
		st.fields = append(st.fields, f)
	}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

// Table returns the parcel layer name.
func (s *SQL) Table() string { return s.table }

// Holder returns this store's lock holder name.
func (s *SQL) Holder() string { return s.holder }

// CreateTable creates the parcel layer. An existing table is left alone.
func (s *SQL) CreateTable(ctx context.Context) error {
	cols := []string{
		ColumnGlobalID + " " + s.dialect.KeyType + " PRIMARY KEY",
		ColumnPIN + " " + s.dialect.ColumnType(schema.TypeText),
		ColumnRevision + " " + s.dialect.ColumnType(schema.TypeTimestamp),
	}
	for _, f := range s.fields {
		cols = append(cols, column(f.Name)+" "+s.dialect.ColumnType(f.Type))
	}
	cols = append(cols, ColumnShape+" "+s.dialect.GeometryType)

	create := "CREATE TABLE "
	if s.dialect.IfNotExists {
		create += "IF NOT EXISTS "
	}
	ddl := create + s.table + " (\n    " + strings.Join(cols, ",\n    ") + "\n)"
	if _, err := s.db.ExecContext(ctx, ddl); err != nil && !s.dialect.IsAlreadyExists(err) {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Snapshot reads PIN, REVISIONDATE and GLOBALID of every row.
func (s *SQL) Snapshot(ctx context.Context) ([]types.TargetRecord, error) {
	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s", ColumnPIN, ColumnRevision, ColumnGlobalID, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, pserrors.NewTransportError("target", "snapshot", err)
	}
	defer rows.Close()

	var out []types.TargetRecord
	for rows.Next() {
		var (
			pin, gid sql.NullString
			rev      any
		)
		if err := rows.Scan(&pin, &rev, &gid); err != nil {
			return nil, pserrors.NewTransportError("target", "snapshot", err)
		}
		out = append(out, types.TargetRecord{
			PIN:      strings.TrimSpace(pin.String),
			Revision: types.ParseRevision(rev),
			GlobalID: gid.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, pserrors.NewTransportError("target", "snapshot", err)
	}
	return out, nil
}

// Apply writes the batch in one transaction: deletes, then updates, then
// adds. Any failure rolls the whole batch back. An update addressing a
// GlobalID that no longer exists is a failure.
func (s *SQL) Apply(ctx context.Context, b diff.Batch) (ApplyResult, error) {
	var res ApplyResult
	if b.IsEmpty() {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, pserrors.NewTransportError("target", "begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", s.table, ColumnGlobalID, s.dialect.Placeholder(1))
	for _, gid := range b.Deletes {
		r, err := tx.ExecContext(ctx, del, gid)
		if err != nil {
			return ApplyResult{}, pserrors.NewTransportError("target", "delete "+gid, err)
		}
		n, _ := r.RowsAffected()
		res.Deleted += int(n)
	}

	upd := s.updateSQL()
	for _, u := range b.Updates {
		args := append(s.values(u.Record), u.GlobalID)
		r, err := tx.ExecContext(ctx, upd, args...)
		if err != nil {
			return ApplyResult{}, pserrors.NewTransportError("target", "update "+u.GlobalID, err)
		}
		if n, err := r.RowsAffected(); err == nil && n == 0 {
			return ApplyResult{}, pserrors.NewTransportError("target", "update "+u.GlobalID, fmt.Errorf("no row with %s %s", ColumnGlobalID, u.GlobalID))
		}
		res.Updated++
	}

	ins := s.insertSQL()
	for _, rec := range b.Adds {
		gid := s.newID()
		args := append([]any{gid}, s.values(rec)...)
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return ApplyResult{}, pserrors.NewTransportError("target", "insert "+rec.PIN, err)
		}
		res.Added++
		res.GlobalIDs = append(res.GlobalIDs, gid)
	}

	if err := tx.Commit(); err != nil {
		return ApplyResult{}, pserrors.NewTransportError("target", "commit", err)
	}

	logging.FromContext(ctx).Info().
		Str("table", s.table).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Msg("edits applied")
	return res, nil
}

// Records reads every parcel row back, ordered by PIN then GLOBALID.
func (s *SQL) Records(ctx context.Context) ([]Stored, error) {
	names := []string{ColumnGlobalID, ColumnPIN, ColumnRevision}
	for _, f := range s.fields {
		names = append(names, column(f.Name))
	}
	names = append(names, ColumnShape)

	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s, %s", strings.Join(names, ", "), s.table, ColumnPIN, ColumnGlobalID)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, pserrors.NewTransportError("target", "records", err)
	}
	defer rows.Close()

	var out []Stored
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, pserrors.NewTransportError("target", "records", err)
		}
		st := Stored{GlobalID: text(values[0])}
		st.Record.PIN = text(values[1])
		st.Record.Revision = types.ParseRevision(values[2])
		st.Record.Attributes = make(types.Attributes, len(s.fields)+2)
		st.Record.Attributes[types.FieldPIN] = nullable(values[1])
		if st.Record.Revision.Valid {
			st.Record.Attributes[types.FieldRevisionDate] = st.Record.Revision.Time
		} else {
			st.Record.Attributes[types.FieldRevisionDate] = nil
		}
		for i, f := range s.fields {
			st.Record.Attributes[f.Name] = decode(f.Type, values[3+i])
		}
		if shape := text(values[len(values)-1]); shape != "" {
			g, err := wkt.Unmarshal(shape)
			if err != nil {
				return nil, pserrors.NewDataShapeError("target", st.Record.PIN, ColumnShape, shape, err)
			}
			st.Record.Geometry = g
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, pserrors.NewTransportError("target", "records", err)
	}
	return out, nil
}

// updateSQL sets PIN, REVISIONDATE, the attribute columns and SHAPE, with
// the GLOBALID bind last.
func (s *SQL) updateSQL() string {
	sets := []string{ColumnPIN, ColumnRevision}
	for _, f := range s.fields {
		sets = append(sets, column(f.Name))
	}
	sets = append(sets, ColumnShape)
	for i := range sets {
		sets[i] += " = " + s.dialect.Placeholder(i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.table, strings.Join(sets, ", "), ColumnGlobalID, s.dialect.Placeholder(len(sets)+1))
}

func (s *SQL) insertSQL() string {
	cols := []string{ColumnGlobalID, ColumnPIN, ColumnRevision}
	for _, f := range s.fields {
		cols = append(cols, column(f.Name))
	}
	cols = append(cols, ColumnShape)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), s.dialect.binds(1, len(cols)))
}

// values returns PIN, REVISIONDATE, attributes and SHAPE bind values.
func (s *SQL) values(rec types.Record) []any {
	out := make([]any, 0, len(s.fields)+3)
	out = append(out, rec.PIN)
	if rec.Revision.Valid {
		out = append(out, s.dialect.EncodeTime(rec.Revision.Time))
	} else {
		out = append(out, nil)
	}
	for _, f := range s.fields {
		out = append(out, s.encode(rec.Attributes[f.Name]))
	}
	out = append(out, shape(rec.Geometry))
	return out
}

func (s *SQL) encode(v any) any {
	switch x := v.(type) {
	case time.Time:
		return s.dialect.EncodeTime(x)
	case nil:
		return nil
	}
	return v
}

func shape(g orb.Geometry) any {
	if g == nil {
		return nil
	}
	return wkt.MarshalString(g)
}

func column(name string) string { return strings.ToUpper(name) }

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func nullable(v any) any {
	if s := text(v); s != "" {
		return s
	}
	return nil
}

// decode converts a scanned column value back to its canonical Go type.
func decode(t schema.Type, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case schema.TypeTimestamp:
		if r := types.ParseRevision(v); r.Valid {
			return r.Time
		}
		return nil
	case schema.TypeNumber:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case string, []byte:
			if f, err := strconv.ParseFloat(text(x), 64); err == nil {
				return f
			}
		}
	case schema.TypeInteger:
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(x)
		case string, []byte:
			if n, err := strconv.ParseInt(text(x), 10, 64); err == nil {
				return n
			}
		}
	case schema.TypeText:
		return text(v)
	}
	return v
}
