package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Postgres is the durable document store. Splits and estimated splits live
// as JSONB so active-race mutations stay field-scoped: taking a split
// writes splits + discipline_index only, editing estimates writes
// estimated_splits only.
type Postgres struct {
	db        *sql.DB
	publisher Publisher
}

// NewPostgres wraps an open database handle. When publisher is non-nil,
// every committed write publishes the affected collection's snapshot.
func NewPostgres(db *sql.DB, publisher Publisher) *Postgres {
	return &Postgres{db: db, publisher: publisher}
}

// Open connects and pings the database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (p *Postgres) UpsertPerson(ctx context.Context, person models.Person) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, created_at, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		person.ID, person.Name, person.CreatedAt, nullString(person.CreatedBy))
	if err != nil {
		return fmt.Errorf("failed to upsert person: %w", err)
	}
	return p.publish(ctx, CollectionPersons)
}

func (p *Postgres) DeletePerson(ctx context.Context, id uuid.UUID) error {
	// Results keep their denormalized person_name; no cascade.
	if _, err := p.db.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return p.publish(ctx, CollectionPersons)
}

func (p *Postgres) UpsertUser(ctx context.Context, u models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role`,
		u.ID, u.Name, string(u.Role), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return p.publish(ctx, CollectionUsers)
}

func (p *Postgres) UpsertActiveRace(ctx context.Context, r models.ActiveRace) error {
	splits, err := json.Marshal(r.Splits)
	if err != nil {
		return fmt.Errorf("failed to marshal splits: %w", err)
	}
	estimates, err := marshalEstimates(r.EstimatedSplits)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO active_races (id, person_id, person_name, start_time, splits, discipline_index, estimated_splits, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			splits = EXCLUDED.splits,
			discipline_index = EXCLUDED.discipline_index,
			estimated_splits = EXCLUDED.estimated_splits`,
		r.ID, r.PersonID, r.PersonName, r.StartTime, splits, r.CurrentDisciplineIndex, estimates, nullString(r.CreatedBy))
	if err != nil {
		return fmt.Errorf("failed to upsert active race: %w", err)
	}
	return p.publish(ctx, CollectionActiveRaces)
}

func (p *Postgres) UpdateActiveRaceProgress(ctx context.Context, id uuid.UUID, splits []models.Split, disciplineIndex int) error {
	data, err := json.Marshal(splits)
	if err != nil {
		return fmt.Errorf("failed to marshal splits: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE active_races SET splits = $2, discipline_index = $3 WHERE id = $1`,
		id, data, disciplineIndex)
	if err != nil {
		return fmt.Errorf("failed to update race progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active race %s not found", id)
	}
	return p.publish(ctx, CollectionActiveRaces)
}

func (p *Postgres) UpdateActiveRaceEstimates(ctx context.Context, id uuid.UUID, est *models.EstimatedSplits) error {
	data, err := marshalEstimates(est)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE active_races SET estimated_splits = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("failed to update race estimates: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active race %s not found", id)
	}
	return p.publish(ctx, CollectionActiveRaces)
}

func (p *Postgres) DeleteActiveRace(ctx context.Context, id uuid.UUID) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM active_races WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete active race: %w", err)
	}
	return p.publish(ctx, CollectionActiveRaces)
}

func (p *Postgres) UpsertResult(ctx context.Context, r models.RaceResult) error {
	splits, err := json.Marshal(r.Splits)
	if err != nil {
		return fmt.Errorf("failed to marshal result splits: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO results (id, person_id, person_name, splits, total_time_ms, completed_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.PersonID, r.PersonName, splits, r.TotalTime.Milliseconds(), r.CompletedAt, nullString(r.CreatedBy))
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}
	return p.publish(ctx, CollectionResults)
}

func (p *Postgres) DeleteResult(ctx context.Context, id uuid.UUID) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM results WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return p.publish(ctx, CollectionResults)
}

func (p *Postgres) HasResult(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM results WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check result: %w", err)
	}
	return exists, nil
}

// CompleteRace inserts the result and removes the active race in one
// transaction.
func (p *Postgres) CompleteRace(ctx context.Context, raceID uuid.UUID, result models.RaceResult) error {
	splits, err := json.Marshal(result.Splits)
	if err != nil {
		return fmt.Errorf("failed to marshal result splits: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO results (id, person_id, person_name, splits, total_time_ms, completed_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.PersonID, result.PersonName, splits, result.TotalTime.Milliseconds(),
		result.CompletedAt, nullString(result.CreatedBy)); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM active_races WHERE id = $1`, raceID)
	if err != nil {
		return fmt.Errorf("failed to delete active race: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active race %s not found", raceID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit race completion: %w", err)
	}

	if err := p.publish(ctx, CollectionResults); err != nil {
		return err
	}
	return p.publish(ctx, CollectionActiveRaces)
}

func (p *Postgres) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, created_at, created_by FROM persons ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		var person models.Person
		var createdBy sql.NullString
		if err := rows.Scan(&person.ID, &person.Name, &person.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		person.CreatedBy = createdBy.String
		out = append(out, person)
	}
	return out, rows.Err()
}

func (p *Postgres) ListResults(ctx context.Context) ([]models.RaceResult, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, person_id, person_name, splits, total_time_ms, completed_at, created_by
		FROM results ORDER BY total_time_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []models.RaceResult
	for rows.Next() {
		var r models.RaceResult
		var splits []byte
		var totalMS int64
		var createdBy sql.NullString
		if err := rows.Scan(&r.ID, &r.PersonID, &r.PersonName, &splits, &totalMS, &r.CompletedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(splits, &r.Splits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result splits: %w", err)
		}
		r.TotalTime = msDuration(totalMS)
		r.CreatedBy = createdBy.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListActiveRaces(ctx context.Context) ([]models.ActiveRace, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, person_id, person_name, start_time, splits, discipline_index, estimated_splits, created_by
		FROM active_races ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active races: %w", err)
	}
	defer rows.Close()

	var out []models.ActiveRace
	for rows.Next() {
		var r models.ActiveRace
		var splits []byte
		var estimates pqtype.NullRawMessage
		var createdBy sql.NullString
		if err := rows.Scan(&r.ID, &r.PersonID, &r.PersonName, &r.StartTime, &splits,
			&r.CurrentDisciplineIndex, &estimates, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan active race: %w", err)
		}
		if err := json.Unmarshal(splits, &r.Splits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal splits: %w", err)
		}
		if estimates.Valid {
			r.EstimatedSplits = &models.EstimatedSplits{}
			if err := json.Unmarshal(estimates.RawMessage, r.EstimatedSplits); err != nil {
				return nil, fmt.Errorf("failed to unmarshal estimates: %w", err)
			}
		}
		r.CreatedBy = createdBy.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, role, created_at FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = models.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

// PublishAll republishes every collection's current snapshot. Run once at
// startup so subscribers that joined an empty feed converge without waiting
// for the next write.
func (p *Postgres) PublishAll(ctx context.Context) error {
	for _, c := range Collections {
		if err := p.publish(ctx, c); err != nil {
			return fmt.Errorf("failed to publish %s snapshot: %w", c, err)
		}
	}
	return nil
}

func (p *Postgres) publish(ctx context.Context, c Collection) error {
	if p.publisher == nil {
		return nil
	}
	snap := Snapshot{Collection: c}
	var err error
	switch c {
	case CollectionPersons:
		snap.Persons, err = p.ListPersons(ctx)
	case CollectionResults:
		snap.Results, err = p.ListResults(ctx)
	case CollectionActiveRaces:
		snap.ActiveRaces, err = p.ListActiveRaces(ctx)
	case CollectionUsers:
		snap.Users, err = p.ListUsers(ctx)
	}
	if err != nil {
		return err
	}
	return p.publisher.PublishSnapshot(ctx, snap)
}

func marshalEstimates(e *models.EstimatedSplits) (pqtype.NullRawMessage, error) {
	if e == nil {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal estimates: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
