package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/wireflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/wireflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, storeError("open libsql", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeError("vacuum", err)
	}
	return nil
}

// --- Items ---

const itemColumns = `id, name, type, authoring_x, authoring_y, lat, lng, actions, depends_on, disappear_on`

// ReplaceItems swaps the whole item set of a game in one transaction.
func (s *LibSQLStore) ReplaceItems(ctx context.Context, gameID string, items []*schema.Item) error {
	if gameID == "" {
		return schema.NewError(schema.ErrCodeValidation, "game id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE game_id = ?`, gameID); err != nil {
		return storeError("clear items", err)
	}
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := upsertItem(ctx, tx, gameID, it); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit items", err)
	}
	return nil
}

// UpsertItem inserts or overwrites one item.
func (s *LibSQLStore) UpsertItem(ctx context.Context, gameID string, item *schema.Item) error {
	if gameID == "" {
		return schema.NewError(schema.ErrCodeValidation, "game id is required")
	}
	if item == nil {
		return schema.NewError(schema.ErrCodeValidation, "item is nil")
	}
	return upsertItem(ctx, s.db, gameID, item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertItem(ctx context.Context, db execer, gameID string, it *schema.Item) error {
	actions, err := json.Marshal(orEmpty(it.Actions))
	if err != nil {
		return storeError("marshal actions", err).WithItem(it.Key())
	}
	dependsOn, err := marshalDependency(it.DependsOn)
	if err != nil {
		return storeError("marshal dependsOn", err).WithItem(it.Key())
	}
	disappearOn, err := marshalDependency(it.DisappearOn)
	if err != nil {
		return storeError("marshal disappearOn", err).WithItem(it.Key())
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO items (game_id, `+itemColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(game_id, id) DO UPDATE SET name=excluded.name, type=excluded.type,
		   authoring_x=excluded.authoring_x, authoring_y=excluded.authoring_y, lat=excluded.lat, lng=excluded.lng,
		   actions=excluded.actions, depends_on=excluded.depends_on, disappear_on=excluded.disappear_on,
		   updated_at=excluded.updated_at`,
		gameID, it.ID, nullStr(it.Name), nullStr(it.Type), it.AuthoringX, it.AuthoringY,
		nullFloat(it.Lat), nullFloat(it.Lng), string(actions), dependsOn, disappearOn, time.Now().UTC(),
	)
	if err != nil {
		return storeError("upsert item", err).WithItem(it.Key())
	}
	return nil
}

// GetItem returns one item or a NOT_FOUND error.
func (s *LibSQLStore) GetItem(ctx context.Context, gameID string, id int64) (*schema.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE game_id = ? AND id = ?`, gameID, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("item", fmt.Sprintf("%s/%d", gameID, id))
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ListItems returns the items of a game ordered by id.
func (s *LibSQLStore) ListItems(ctx context.Context, gameID string) ([]*schema.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE game_id = ? ORDER BY id ASC`, gameID)
	if err != nil {
		return nil, storeError("list items", err)
	}
	defer rows.Close()

	items := []*schema.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list items", err)
	}
	return items, nil
}

// DeleteItem removes one item.
func (s *LibSQLStore) DeleteItem(ctx context.Context, gameID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE game_id = ? AND id = ?`, gameID, id)
	if err != nil {
		return storeError("delete item", err)
	}
	return checkRowsAffected(res, "item", fmt.Sprintf("%s/%d", gameID, id))
}

// ListGames summarizes every game with at least one item.
func (s *LibSQLStore) ListGames(ctx context.Context) ([]*GameSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, COUNT(*), MAX(updated_at) FROM items GROUP BY game_id ORDER BY game_id ASC`)
	if err != nil {
		return nil, storeError("list games", err)
	}
	defer rows.Close()

	var games []*GameSummary
	for rows.Next() {
		g := &GameSummary{}
		var updated sql.NullString
		if err := rows.Scan(&g.GameID, &g.Items, &updated); err != nil {
			return nil, storeError("scan game", err)
		}
		// MAX() loses the column type, so the timestamp comes back as text.
		g.UpdatedAt = parseTime(updated.String)
		games = append(games, g)
	}
	return games, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*schema.Item, error) {
	it := &schema.Item{}
	var (
		name, typ              sql.NullString
		lat, lng               sql.NullFloat64
		actions                string
		dependsOn, disappearOn sql.NullString
	)
	err := row.Scan(&it.ID, &name, &typ, &it.AuthoringX, &it.AuthoringY, &lat, &lng, &actions, &dependsOn, &disappearOn)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storeError("scan item", err)
	}
	it.Name = name.String
	it.Type = typ.String
	if lat.Valid {
		v := lat.Float64
		it.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		it.Lng = &v
	}
	if err := json.Unmarshal([]byte(actions), &it.Actions); err != nil {
		return nil, storeError("decode actions", err).WithItem(it.Key())
	}
	if len(it.Actions) == 0 {
		it.Actions = nil
	}
	if it.DependsOn, err = unmarshalDependency(dependsOn); err != nil {
		return nil, storeError("decode dependsOn", err).WithItem(it.Key())
	}
	if it.DisappearOn, err = unmarshalDependency(disappearOn); err != nil {
		return nil, storeError("decode disappearOn", err).WithItem(it.Key())
	}
	return it, nil
}

// --- Events ---

// AppendEvent stores event with the next sequence number of its game.
// Sequence and Timestamp are filled in on success.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.GameID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event game id is required")
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return storeError("marshal event payload", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE game_id = ?`, event.GameID,
	).Scan(&seq); err != nil {
		return storeError("get next sequence", err)
	}
	ts := timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (game_id, item_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?, ?)`,
		event.GameID, nullStr(event.ItemID), event.Type, string(payload), ts, seq,
	)
	if err != nil {
		return storeError("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit event", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	event.Sequence = seq
	event.Timestamp = ts
	return nil
}

// GetEvents returns the events of filter.GameID with sequence > filter.Since,
// ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	where := []string{"game_id = ?", "sequence > ?"}
	args := []any{filter.GameID, filter.Since}

	if len(filter.Types) > 0 {
		where = append(where, "event_type IN (?"+strings.Repeat(", ?", len(filter.Types)-1)+")")
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}

	query := `SELECT id, game_id, item_id, event_type, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY sequence ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("get events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var itemID sql.NullString
		var payload string
		if err := rows.Scan(&e.ID, &e.GameID, &itemID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, storeError("scan event", err)
		}
		e.ItemID = itemID.String
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, storeError("decode event payload", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalDependency(dep *schema.Dependency) (any, error) {
	if dep == nil {
		return nil, nil
	}
	b, err := json.Marshal(dep)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalDependency(ns sql.NullString) (*schema.Dependency, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	dep := &schema.Dependency{}
	if err := json.Unmarshal([]byte(ns.String), dep); err != nil {
		return nil, err
	}
	return dep, nil
}
