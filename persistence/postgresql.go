// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/models"
)

const uniqueViolation = "23505"

// PostgreSQL stores match history with plain database/sql and lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Log.Infof("Match history stored in PostgreSQL %s:%d/%s via lib/pq", host, port, dbname)
	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            room_id TEXT UNIQUE NOT NULL,
            player_one TEXT NOT NULL,
            player_two TEXT NOT NULL,
            seed BIGINT NOT NULL,
            player_one_score INTEGER NOT NULL DEFAULT 0,
            player_two_score INTEGER NOT NULL DEFAULT 0,
            player_one_time DOUBLE PRECISION,
            player_two_time DOUBLE PRECISION,
            winner TEXT NOT NULL DEFAULT '',
            reason TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_match_records_ended_at ON match_records(ended_at)`)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, rec *models.MatchRecord) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO match_records (
            room_id, player_one, player_two, seed,
            player_one_score, player_two_score, player_one_time, player_two_time,
            winner, reason, started_at, ended_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `,
		rec.RoomID, rec.PlayerOne, rec.PlayerTwo, rec.Seed,
		rec.PlayerOneScore, rec.PlayerTwoScore, rec.PlayerOneTime, rec.PlayerTwoTime,
		rec.Winner, rec.Reason, rec.StartedAt, rec.EndedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateRecord
	}
	return err
}

func (p *PostgreSQL) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.db.QueryContext(ctx, `
        SELECT room_id, player_one, player_two, seed,
               player_one_score, player_two_score, player_one_time, player_two_time,
               winner, reason, started_at, ended_at
        FROM match_records
        ORDER BY ended_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var (
			rec     models.MatchRecord
			oneTime sql.NullFloat64
			twoTime sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.RoomID, &rec.PlayerOne, &rec.PlayerTwo, &rec.Seed,
			&rec.PlayerOneScore, &rec.PlayerTwoScore, &oneTime, &twoTime,
			&rec.Winner, &rec.Reason, &rec.StartedAt, &rec.EndedAt,
		); err != nil {
			return nil, err
		}
		rec.PlayerOneTime = nullableFloat(oneTime)
		rec.PlayerTwoTime = nullableFloat(twoTime)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
