package queue

import (
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// Job represents a transcription job
type Job struct {
	ID          string
	RequestName string
	SourceType  string
	FilePath    string

	// Optional per-job overrides of the pool defaults
	LanguageCode string
	Model        string

	Status      string
	Error       error
	Result      *types.TranscriptionResult
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id, requestName, sourceType, filePath string) *Job {
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		FilePath:    filePath,
		Status:      types.StatusQueued,
		CreatedAt:   time.Now(),
	}
}

// JobView is the JSON shape of a job returned by the API
type JobView struct {
	ID             string    `json:"job_id"`
	RequestName    string    `json:"request_name"`
	SourceType     string    `json:"source_type"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	WordCount      int       `json:"word_count"`
	Segments       int       `json:"segments"`
	FailedSegments int       `json:"failed_segments"`
	LocalPath      string    `json:"local_path,omitempty"`
	GDriveURL      string    `json:"gdrive_url,omitempty"`
}

// View returns a copy of the job safe to serialize
func (j *Job) View() JobView {
	v := JobView{
		ID:          j.ID,
		RequestName: j.RequestName,
		SourceType:  j.SourceType,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Error != nil {
		v.Error = j.Error.Error()
	}
	if r := j.Result; r != nil {
		v.Transcript = r.Text
		v.WordCount = r.WordCount
		v.Segments = len(r.Segments)
		v.FailedSegments = r.FailedSegments()
		v.LocalPath = r.LocalPath
		v.GDriveURL = r.GDriveURL
	}
	return v
}
