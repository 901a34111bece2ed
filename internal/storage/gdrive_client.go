package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient handles uploading to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// TranscriptMetadata is the JSON document uploaded next to each transcript CSV
type TranscriptMetadata struct {
	JobID           string          `json:"job_id"`
	RequestName     string          `json:"request_name"`
	Model           string          `json:"model"`
	Language        string          `json:"language"`
	DurationSeconds float64         `json:"duration_seconds"`
	WordCount       int             `json:"word_count"`
	FailedSegments  int             `json:"failed_segments"`
	CreatedAt       time.Time       `json:"created_at"`
	Segments        []SegmentRecord `json:"segments"`
}

// NewTranscriptMetadata builds the metadata document for a finished run
func NewTranscriptMetadata(requestName string, result *types.TranscriptionResult) TranscriptMetadata {
	segments := make([]SegmentRecord, len(result.Segments))
	for i, seg := range result.Segments {
		segments[i] = SegmentRecord{
			Index:   seg.Index,
			StartMs: seg.Start.Milliseconds(),
			EndMs:   seg.End.Milliseconds(),
			Status:  string(seg.Status),
			Text:    seg.Text,
		}
		if seg.Err != nil {
			segments[i].Error = seg.Err.Error()
		}
	}

	return TranscriptMetadata{
		JobID:           result.JobID,
		RequestName:     requestName,
		Model:           result.Model,
		Language:        result.Language,
		DurationSeconds: result.Duration.Seconds(),
		WordCount:       result.WordCount,
		FailedSegments:  result.FailedSegments(),
		CreatedAt:       result.ProcessedAt,
		Segments:        segments,
	}
}

// NewDriveClient creates a new Google Drive client
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	client, err := getClient(ctx, config, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
	}

	if dc.folderID, err = dc.findOrCreateFolder(ctx, folderName, ""); err != nil {
		return nil, fmt.Errorf("unable to prepare folder %q: %w", folderName, err)
	}

	return dc, nil
}

// getClient uses a cached token, falling back to the interactive consent flow
func getClient(ctx context.Context, config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser:\n%v\n", authURL)
	fmt.Print("Enter authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Upload copies the transcript CSV and its metadata JSON into a dated
// folder (<root>/YYYY/MM/DD) and returns the CSV's view URL.
func (dc *DriveClient) Upload(ctx context.Context, requestName string, result *types.TranscriptionResult) (string, error) {
	if result.LocalPath == "" {
		return "", fmt.Errorf("transcript for job %s has not been saved locally", result.JobID)
	}

	folderID, err := dc.ensureDateFolder(ctx, result.ProcessedAt)
	if err != nil {
		return "", err
	}

	csvFile, err := os.Open(result.LocalPath)
	if err != nil {
		return "", fmt.Errorf("failed to open transcript: %w", err)
	}
	defer csvFile.Close()

	baseName := strings.TrimSuffix(filepath.Base(result.LocalPath), filepath.Ext(result.LocalPath))

	created, err := dc.service.Files.Create(&drive.File{
		Name:     baseName + ".csv",
		MimeType: "text/csv",
		Parents:  []string{folderID},
	}).Media(csvFile).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	metaJSON, err := json.MarshalIndent(NewTranscriptMetadata(requestName, result), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = dc.service.Files.Create(&drive.File{
		Name:     baseName + "_meta.json",
		MimeType: "application/json",
		Parents:  []string{folderID},
	}).Media(bytes.NewReader(metaJSON)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	if t.IsZero() {
		t = time.Now()
	}

	parentID := dc.folderID
	for _, name := range dateFolderNames(t) {
		id, err := dc.findOrCreateFolder(ctx, name, parentID)
		if err != nil {
			return "", fmt.Errorf("unable to prepare folder %s: %w", name, err)
		}
		parentID = id
	}
	return parentID, nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID means the Drive root
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	return file.Id, nil
}

func dateFolderNames(t time.Time) []string {
	return []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	}
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
