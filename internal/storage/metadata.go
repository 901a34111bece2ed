package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// ErrNotFound is returned when no transcript matches a job ID
var ErrNotFound = errors.New("transcript not found")

// TranscriptRecord is one stored pipeline run
type TranscriptRecord struct {
	JobID           string    `json:"job_id"`
	RequestName     string    `json:"request_name"`
	SourceType      string    `json:"source_type"`
	Model           string    `json:"model"`
	Language        string    `json:"language"`
	GDriveURL       string    `json:"gdrive_url"`
	LocalPath       string    `json:"local_path"`
	CreatedAt       time.Time `json:"created_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	WordCount       int       `json:"word_count"`
	SegmentCount    int       `json:"segment_count"`
	FailedSegments  int       `json:"failed_segments"`
}

// SegmentRecord is the stored outcome of one segment
type SegmentRecord struct {
	Index   int    `json:"index"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Status  string `json:"status"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		gdrive_url TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		duration REAL,
		word_count INTEGER,
		segment_count INTEGER,
		failed_segments INTEGER
	);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		job_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		text TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (job_id, segment_index)
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
	CREATE INDEX IF NOT EXISTS idx_request_name ON transcripts(request_name);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveTranscript stores a run and all of its segments in one transaction
func (mdb *MetadataDB) SaveTranscript(jobID, requestName, sourceType string, result *types.TranscriptionResult) error {
	tx, err := mdb.db.Begin()
	if err != nil {
		return &types.PersistenceError{Path: "transcripts", Err: err}
	}
	defer tx.Rollback()

	createdAt := result.ProcessedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.Exec(`
	INSERT INTO transcripts (job_id, request_name, source_type, model, language, gdrive_url, local_path,
		created_at, duration, word_count, segment_count, failed_segments)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobID, requestName, sourceType, result.Model, result.Language, result.GDriveURL, result.LocalPath,
		createdAt.UTC(), result.Duration.Seconds(), result.WordCount, len(result.Segments), result.FailedSegments())
	if err != nil {
		return &types.PersistenceError{Path: "transcripts", Err: fmt.Errorf("failed to save transcript metadata: %w", err)}
	}

	stmt, err := tx.Prepare(`
	INSERT INTO transcript_segments (job_id, segment_index, start_ms, end_ms, status, text, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &types.PersistenceError{Path: "transcript_segments", Err: err}
	}
	defer stmt.Close()

	for _, seg := range result.Segments {
		errText := ""
		if seg.Err != nil {
			errText = seg.Err.Error()
		}
		if _, err := stmt.Exec(jobID, seg.Index, seg.Start.Milliseconds(), seg.End.Milliseconds(),
			string(seg.Status), seg.Text, errText); err != nil {
			return &types.PersistenceError{Path: "transcript_segments", Err: fmt.Errorf("failed to save segment %d: %w", seg.Index, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.PersistenceError{Path: "transcripts", Err: err}
	}
	return nil
}

const transcriptColumns = `job_id, request_name, source_type, model, language, gdrive_url, local_path,
	created_at, duration, word_count, segment_count, failed_segments`

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (TranscriptRecord, error) {
	var rec TranscriptRecord
	err := row.Scan(&rec.JobID, &rec.RequestName, &rec.SourceType, &rec.Model, &rec.Language,
		&rec.GDriveURL, &rec.LocalPath, &rec.CreatedAt, &rec.DurationSeconds, &rec.WordCount,
		&rec.SegmentCount, &rec.FailedSegments)
	return rec, err
}

// GetTranscript retrieves transcript metadata by job ID
func (mdb *MetadataDB) GetTranscript(jobID string) (*TranscriptRecord, error) {
	row := mdb.db.QueryRow(`SELECT `+transcriptColumns+` FROM transcripts WHERE job_id = ?`, jobID)

	rec, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &rec, nil
}

// ListTranscripts returns the most recent transcripts, newest first
func (mdb *MetadataDB) ListTranscripts(limit int) ([]TranscriptRecord, error) {
	rows, err := mdb.db.Query(`SELECT `+transcriptColumns+` FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []TranscriptRecord{}
	for rows.Next() {
		rec, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		transcripts = append(transcripts, rec)
	}

	return transcripts, rows.Err()
}

// ListSegments returns the segments of a run in index order
func (mdb *MetadataDB) ListSegments(jobID string) ([]SegmentRecord, error) {
	rows, err := mdb.db.Query(`
	SELECT segment_index, start_ms, end_ms, status, text, error
	FROM transcript_segments WHERE job_id = ? ORDER BY segment_index
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	segments := []SegmentRecord{}
	for rows.Next() {
		var seg SegmentRecord
		if err := rows.Scan(&seg.Index, &seg.StartMs, &seg.EndMs, &seg.Status, &seg.Text, &seg.Error); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
