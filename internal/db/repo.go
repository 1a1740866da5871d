package db

import (
	"context"
	"database/sql"
	"time"

	"hostpulse/internal/models"
)

// Repository is the long-range sample archive. It mirrors every recorded
// sample and is pruned on a day-based horizon independent of the
// in-memory history window.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repository) InsertSample(ctx context.Context, s models.Snapshot) error {
	var ping sql.NullFloat64
	if s.Ping != nil {
		ping = sql.NullFloat64{Float64: *s.Ping, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO samples (ts,cpu_pct,ram_pct,ping_ms,mem_used_bytes,mem_total_bytes) VALUES (?,?,?,?,?,?)`,
		s.Time.UTC(), s.CPU, s.RAM, ping, int64(s.MemUsedBytes), int64(s.MemTotalBytes))
	return err
}

func (r *Repository) LatestSample(ctx context.Context) (models.ArchivedSample, error) {
	row := r.db.QueryRowContext(ctx, `SELECT ts,cpu_pct,ram_pct,ping_ms,mem_used_bytes,mem_total_bytes FROM samples ORDER BY ts DESC LIMIT 1`)
	return scanSample(row)
}

func (r *Repository) RecentSamples(ctx context.Context, from time.Time, limit int) ([]models.ArchivedSample, error) {
	if limit <= 0 {
		limit = 4096
	}
	rows, err := r.db.QueryContext(ctx, `SELECT ts,cpu_pct,ram_pct,ping_ms,mem_used_bytes,mem_total_bytes FROM samples WHERE ts >= ? ORDER BY ts ASC LIMIT ?`, from.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.ArchivedSample, 0, 64)
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(sc scanner) (models.ArchivedSample, error) {
	var s models.ArchivedSample
	var ping sql.NullFloat64
	if err := sc.Scan(&s.TS, &s.CPUPct, &s.RAMPct, &ping, &s.MemUsedBytes, &s.MemTotalBytes); err != nil {
		return models.ArchivedSample{}, err
	}
	if ping.Valid {
		v := ping.Float64
		s.PingMs = &v
	}
	s.TS = s.TS.UTC()
	return s, nil
}
