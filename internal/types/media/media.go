package media

import (
	"time"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// InitiateUploadRequest starts a chunked upload. The group fields are set
// together when the video belongs to a merge group.
type InitiateUploadRequest struct {
	Filename        string   `json:"filename" validate:"required,max=255"`
	FileSize        int64    `json:"file_size" validate:"required,min=1"`
	MimeType        string   `json:"mime_type" validate:"required"`
	MergeSessionID  string   `json:"merge_session_id,omitempty" validate:"omitempty,max=128"`
	VideoIndex      *int     `json:"video_index,omitempty" validate:"required_with=MergeSessionID"`
	VideoCount      int      `json:"video_count,omitempty" validate:"required_with=MergeSessionID"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
}

// Group converts the flat group fields, or returns nil for a standalone upload.
func (r InitiateUploadRequest) Group() *types.GroupMetadata {
	if r.MergeSessionID == "" {
		return nil
	}
	g := &types.GroupMetadata{MergeSessionID: r.MergeSessionID, VideoCount: r.VideoCount}
	if r.VideoIndex != nil {
		g.VideoIndex = *r.VideoIndex
	}
	if r.DurationSeconds != nil {
		g.DurationSeconds = *r.DurationSeconds
	}
	return g
}

// InitiateUploadResponse is the session descriptor returned on initiate.
type InitiateUploadResponse struct {
	SessionID   string    `json:"session_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChunkUploadResponse acknowledges one chunk.
type ChunkUploadResponse struct {
	Written         bool    `json:"written"`
	AlreadyExists   bool    `json:"already_exists"`
	UploadedChunks  []int   `json:"uploaded_chunks"`
	RemainingChunks []int   `json:"remaining_chunks"`
	ProgressPercent float64 `json:"progress_percent"`
}

func NewChunkUploadResponse(s types.UploadSession, written bool) ChunkUploadResponse {
	return ChunkUploadResponse{
		Written:         written,
		AlreadyExists:   !written,
		UploadedChunks:  s.UploadedList(),
		RemainingChunks: s.RemainingChunks(),
		ProgressPercent: s.ProgressPercent(),
	}
}

type CompleteUploadRequest struct {
	FinalHash string `json:"final_hash,omitempty" validate:"omitempty,max=160"`
}

type CompleteUploadResponse struct {
	SessionID   string             `json:"session_id"`
	Status      types.UploadStatus `json:"status"`
	FilePath    string             `json:"file_path"`
	FileSize    int64              `json:"file_size"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

type InitiateMergeRequest struct {
	QualityPreset string `json:"quality_preset,omitempty" validate:"omitempty,max=32"`
}

// MergeStatusResponse is the merge status descriptor.
type MergeStatusResponse struct {
	MergeSessionID    string                     `json:"merge_session_id"`
	Status            types.MergeStatus          `json:"status"`
	Stage             string                     `json:"stage,omitempty"`
	ProgressPercent   float64                    `json:"progress_percent"`
	QualityPreset     string                     `json:"quality_preset"`
	MergedArtifactRef string                     `json:"merged_artifact_ref,omitempty"`
	ArtifactURL       string                     `json:"artifact_url,omitempty"`
	MergedMetadata    *types.MergedVideoMetadata `json:"merged_metadata,omitempty"`
	ErrorMessage      string                     `json:"error_message,omitempty"`
	Retryable         bool                       `json:"retryable,omitempty"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

func NewMergeStatusResponse(m types.MergeSession) MergeStatusResponse {
	return MergeStatusResponse{
		MergeSessionID:    m.MergeSessionID,
		Status:            m.Status,
		Stage:             m.Stage,
		ProgressPercent:   m.Progress,
		QualityPreset:     m.QualityPreset,
		MergedArtifactRef: m.MergedArtifactRef,
		ArtifactURL:       m.ArtifactURL,
		MergedMetadata:    m.MergedMetadata,
		ErrorMessage:      m.ErrorMessage,
		Retryable:         m.Retryable,
		UpdatedAt:         m.UpdatedAt,
	}
}
