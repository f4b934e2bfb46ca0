package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is one stored session summary.
type SessionRecord struct {
	ID                    string
	Source                string
	Sport                 string
	StartTime             time.Time
	ElapsedSeconds        float64
	DistanceMeters        float64
	Calories              int
	ElevationGainM        float64
	HighAltitudeM         float64
	HighAltitudeDistanceM float64
	LowAltitudeDistanceM  float64
	HighAltitudeSamples   int
	MaxGrade              float64
	AvgPowerWatts         float64
	NormalizedPower       float64
	AvgHeartRate          float64
	TrainingStress        float64
	SampleCount           int
	CreatedAt             time.Time
}

// Sample is one stored trackpoint. Missing values are NaN.
type Sample struct {
	Index     int
	Timestamp time.Time
	Power     float64
	Speed     float64
	Distance  float64
	Altitude  float64
	HeartRate float64
	Cadence   float64
	Grade     float64
}

const sessionColumns = `id, source, sport, start_time, elapsed_seconds, distance_meters, calories,
	elevation_gain_m, high_altitude_threshold_m, high_altitude_distance_m, low_altitude_distance_m,
	high_altitude_samples, max_grade, avg_power_watts, normalized_power_watts, avg_heart_rate_bpm,
	training_stress_score, sample_count, created_at`

// SaveSession stores rec and its samples in one transaction and returns the new
// session id, which is also set on rec.
func (s *Store) SaveSession(ctx context.Context, rec *SessionRecord, samples []Sample) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, source, sport, start_time, elapsed_seconds, distance_meters, calories,
			elevation_gain_m, high_altitude_threshold_m, high_altitude_distance_m, low_altitude_distance_m,
			high_altitude_samples, max_grade, avg_power_watts, normalized_power_watts, avg_heart_rate_bpm,
			training_stress_score, sample_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, rec.Source, rec.Sport, nullTime(rec.StartTime), rec.ElapsedSeconds, rec.DistanceMeters, rec.Calories,
		rec.ElevationGainM, rec.HighAltitudeM, rec.HighAltitudeDistanceM, rec.LowAltitudeDistanceM,
		rec.HighAltitudeSamples, nullFloat(rec.MaxGrade), nullFloat(rec.AvgPowerWatts), nullFloat(rec.NormalizedPower),
		nullFloat(rec.AvgHeartRate), nullFloat(rec.TrainingStress), len(samples),
	)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (
			session_id, sample_index, ts, power, speed, distance, altitude, heart_rate, cadence, grade
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range samples {
		_, err := stmt.ExecContext(ctx,
			id, p.Index, nullTime(p.Timestamp), nullFloat(p.Power), nullFloat(p.Speed), nullFloat(p.Distance),
			nullFloat(p.Altitude), nullFloat(p.HeartRate), nullFloat(p.Cadence), nullFloat(p.Grade),
		)
		if err != nil {
			return "", fmt.Errorf("inserting sample %d: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	rec.ID = id
	rec.SampleCount = len(samples)
	return id, nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessions returns up to limit sessions, most recent start first. A
// non-positive limit returns every session.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_time DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetSamples returns the samples of a session in index order.
func (s *Store) GetSamples(ctx context.Context, sessionID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sample_index, ts, power, speed, distance, altitude, heart_rate, cadence, grade
		FROM samples
		WHERE session_id = ?
		ORDER BY sample_index
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var p Sample
		var ts sql.NullString
		var power, speed, distance, altitude, hr, cadence, grade sql.NullFloat64
		if err := rows.Scan(&p.Index, &ts, &power, &speed, &distance, &altitude, &hr, &cadence, &grade); err != nil {
			return nil, err
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		p.Power = floatOrNaN(power)
		p.Speed = floatOrNaN(speed)
		p.Distance = floatOrNaN(distance)
		p.Altitude = floatOrNaN(altitude)
		p.HeartRate = floatOrNaN(hr)
		p.Cadence = floatOrNaN(cadence)
		p.Grade = floatOrNaN(grade)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its samples.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var start, created sql.NullString
	var maxGrade, avgPower, np, avgHR, tss sql.NullFloat64
	err := row.Scan(
		&rec.ID, &rec.Source, &rec.Sport, &start, &rec.ElapsedSeconds, &rec.DistanceMeters, &rec.Calories,
		&rec.ElevationGainM, &rec.HighAltitudeM, &rec.HighAltitudeDistanceM, &rec.LowAltitudeDistanceM,
		&rec.HighAltitudeSamples, &maxGrade, &avgPower, &np, &avgHR,
		&tss, &rec.SampleCount, &created,
	)
	if err != nil {
		return nil, err
	}
	if rec.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if created.Valid {
		rec.CreatedAt, _ = time.Parse(time.DateTime, created.String)
	}
	rec.MaxGrade = floatOrNaN(maxGrade)
	rec.AvgPowerWatts = floatOrNaN(avgPower)
	rec.NormalizedPower = floatOrNaN(np)
	rec.AvgHeartRate = floatOrNaN(avgHR)
	rec.TrainingStress = floatOrNaN(tss)
	return &rec, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", v.String, err)
	}
	return t, nil
}
