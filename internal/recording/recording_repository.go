package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveRecording inserts the recording and its chat message in one
// transaction.
func (r *PostgresRepository) SaveRecording(ctx context.Context, rec *FinalizedRecording, msg *Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO recordings (filename, session_id, storage_path, download_url, size_bytes, duration_seconds, chunk_count, recording_type, kind, title, owner, room, started_at, completed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = tx.ExecContext(ctx, query,
		rec.Filename,
		rec.SessionID,
		rec.StoragePath,
		rec.DownloadURL,
		rec.SizeBytes,
		rec.DurationSeconds,
		rec.ChunkCount,
		rec.RecordingType,
		rec.Kind,
		rec.Title,
		rec.Owner,
		rec.Room,
		rec.StartedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}

	if msg != nil {
		query = `INSERT INTO messages (id, room, username, text, video_url, recording_filename, recording_type, file_size, duration_seconds, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err = tx.ExecContext(ctx, query,
			msg.ID,
			msg.Room,
			msg.Username,
			msg.Text,
			msg.VideoURL,
			msg.RecordingFilename,
			msg.RecordingType,
			msg.FileSize,
			msg.DurationSeconds,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

const selectRecording = `SELECT filename, session_id, storage_path, download_url, size_bytes, duration_seconds, chunk_count, recording_type, kind, title, owner, room, started_at, completed_at
						 FROM recordings`

func (r *PostgresRepository) GetRecordingByFilename(ctx context.Context, filename string) (*FinalizedRecording, error) {
	rec, err := scanRecording(r.db.QueryRowContext(ctx, selectRecording+` WHERE filename = $1`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, filename)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListRecordingsByRoom(ctx context.Context, room string) ([]*FinalizedRecording, error) {
	rows, err := r.db.QueryContext(ctx, selectRecording+` WHERE room = $1 ORDER BY completed_at DESC`, room)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return scanRecordings(rows)
}

func (r *PostgresRepository) ListRecordings(ctx context.Context, limit int) ([]*FinalizedRecording, error) {
	query := selectRecording + ` ORDER BY completed_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return scanRecordings(rows)
}

func scanRecordings(rows *sql.Rows) ([]*FinalizedRecording, error) {
	defer rows.Close()

	var result []*FinalizedRecording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*FinalizedRecording, error) {
	rec := &FinalizedRecording{}
	err := row.Scan(
		&rec.Filename,
		&rec.SessionID,
		&rec.StoragePath,
		&rec.DownloadURL,
		&rec.SizeBytes,
		&rec.DurationSeconds,
		&rec.ChunkCount,
		&rec.RecordingType,
		&rec.Kind,
		&rec.Title,
		&rec.Owner,
		&rec.Room,
		&rec.StartedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
