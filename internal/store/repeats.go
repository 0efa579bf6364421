package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/landmark"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// CorpusRepository implements corpus.Repository over the action_repeats table.
type CorpusRepository struct {
	s *Store
}

var _ corpus.Repository = (*CorpusRepository)(nil)

// Corpus returns the corpus repository for this store.
func (s *Store) Corpus() *CorpusRepository {
	return &CorpusRepository{s: s}
}

// Save inserts frames as the next repeat of action. The index is computed
// and inserted in one transaction under the action's lock; on PostgreSQL a
// transaction-scoped advisory lock extends that to other processes. If
// another writer still wins, the UNIQUE(action_name, repeat_index)
// constraint turns the insert into a *corpus.RepeatIndexRaceError.
func (r *CorpusRepository) Save(ctx context.Context, action string, frames []landmark.FrameRecord) (corpus.Key, error) {
	if err := corpus.CheckSave(action, frames); err != nil {
		return corpus.Key{}, err
	}

	unlock := r.s.locks.Lock(action)
	defer unlock()

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return corpus.Key{}, err
	}
	defer tx.Rollback()

	if r.s.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, action); err != nil {
			return corpus.Key{}, fmt.Errorf("lock action: %w", err)
		}
	}

	var last int
	err = tx.QueryRowContext(ctx,
		r.s.rebind(`SELECT COALESCE(MAX(repeat_index), -1) FROM action_repeats WHERE action_name = ?`),
		action,
	).Scan(&last)
	if err != nil {
		return corpus.Key{}, err
	}
	next := last + 1

	data, err := corpus.EncodeRecord(action, next, frames)
	if err != nil {
		return corpus.Key{}, fmt.Errorf("encode record: %w", err)
	}

	id := uuid.New()
	_, err = tx.ExecContext(ctx,
		r.s.rebind(`INSERT INTO action_repeats (id, action_name, repeat_index, schema_version, frame_count, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id.String(), action, next, landmark.SchemaVersion, len(frames), string(data), time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return corpus.Key{}, &corpus.RepeatIndexRaceError{Action: action, Repeat: next}
		}
		return corpus.Key{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return corpus.Key{}, &corpus.RepeatIndexRaceError{Action: action, Repeat: next}
		}
		return corpus.Key{}, err
	}

	r.s.logger.Debug("saved repeat", "action", action, "repeat", next, "frames", len(frames), "id", id)
	return corpus.Key{Action: action, Repeat: next, Location: "action_repeats/" + id.String()}, nil
}

// LastRepeat returns the highest repeat index of action, or -1.
func (r *CorpusRepository) LastRepeat(ctx context.Context, action string) (int, error) {
	var last int
	err := r.s.db.QueryRowContext(ctx,
		r.s.rebind(`SELECT COALESCE(MAX(repeat_index), -1) FROM action_repeats WHERE action_name = ?`),
		action,
	).Scan(&last)
	if err != nil {
		return 0, err
	}
	return last, nil
}

// Repeats returns the repeat indices of action in ascending order.
func (r *CorpusRepository) Repeats(ctx context.Context, action string) ([]int, error) {
	rows, err := r.s.db.QueryContext(ctx,
		r.s.rebind(`SELECT repeat_index FROM action_repeats WHERE action_name = ? ORDER BY repeat_index`),
		action,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repeats []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		repeats = append(repeats, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return repeats, nil
}

// ListActions returns every action with at least one repeat in byte order.
func (r *CorpusRepository) ListActions(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT action_name FROM action_repeats ORDER BY action_name`
	if r.s.dialect == Postgres {
		query = `SELECT DISTINCT action_name FROM action_repeats ORDER BY action_name COLLATE "C"`
	}

	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// Load reads and validates a repeat.
func (r *CorpusRepository) Load(ctx context.Context, action string, repeat int) (*corpus.Repeat, error) {
	var (
		data      string
		createdAt time.Time
	)
	err := r.s.db.QueryRowContext(ctx,
		r.s.rebind(`SELECT data, created_at FROM action_repeats WHERE action_name = ? AND repeat_index = ?`),
		action, repeat,
	).Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: action %q repeat %d", corpus.ErrNotFound, action, repeat)
	}
	if err != nil {
		return nil, &corpus.RepeatError{Action: action, Repeat: repeat, Err: err}
	}

	rep, err := corpus.DecodeRecord(action, repeat, []byte(data))
	if err != nil {
		return nil, err
	}
	rep.CreatedAt = createdAt
	return rep, nil
}

// FrameCount returns the number of frames in a repeat without decoding it.
func (r *CorpusRepository) FrameCount(ctx context.Context, action string, repeat int) (int, error) {
	var count, version int
	err := r.s.db.QueryRowContext(ctx,
		r.s.rebind(`SELECT frame_count, schema_version FROM action_repeats WHERE action_name = ? AND repeat_index = ?`),
		action, repeat,
	).Scan(&count, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: action %q repeat %d", corpus.ErrNotFound, action, repeat)
	}
	if err != nil {
		return 0, &corpus.RepeatError{Action: action, Repeat: repeat, Err: err}
	}
	if version != landmark.SchemaVersion {
		return 0, &corpus.RepeatError{Action: action, Repeat: repeat,
			Err: fmt.Errorf("%w: got %d, want %d", corpus.ErrSchemaVersion, version, landmark.SchemaVersion)}
	}
	return count, nil
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	return false
}
