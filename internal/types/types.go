package types

import (
	"sort"
	"time"
)

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadInProgress UploadStatus = "in_progress"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
	UploadExpired    UploadStatus = "expired"
)

type MergeStatus string

const (
	MergePending    MergeStatus = "pending"
	MergeProcessing MergeStatus = "processing"
	MergeCompleted  MergeStatus = "completed"
	MergeFailed     MergeStatus = "failed"
	MergeCancelled  MergeStatus = "cancelled"
)

// Active reports whether a pipeline run owns the merge session.
func (s MergeStatus) Active() bool {
	return s == MergePending || s == MergeProcessing
}

// Terminal reports whether the status can no longer change without a new run.
func (s MergeStatus) Terminal() bool {
	return s == MergeCompleted || s == MergeFailed || s == MergeCancelled
}

// CanTransition encodes the merge state machine. Re-running a failed or
// cancelled merge goes back through pending with a new run id.
func (s MergeStatus) CanTransition(to MergeStatus) bool {
	switch s {
	case MergePending:
		return to == MergeProcessing || to == MergeCancelled || to == MergeFailed
	case MergeProcessing:
		return to == MergeCompleted || to == MergeFailed || to == MergeCancelled
	case MergeFailed, MergeCancelled:
		return to == MergePending
	default:
		return false
	}
}

// GroupMetadata ties an upload to its statement set.
type GroupMetadata struct {
	MergeSessionID  string  `json:"merge_session_id"`
	VideoIndex      int     `json:"video_index"`
	VideoCount      int     `json:"video_count"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type UploadSession struct {
	SessionID      string         `json:"session_id"`
	OwnerID        string         `json:"owner_id"`
	Filename       string         `json:"filename"`
	FileSize       int64          `json:"file_size"`
	MimeType       string         `json:"mime_type"`
	ChunkSize      int64          `json:"chunk_size"`
	TotalChunks    int            `json:"total_chunks"`
	UploadedChunks map[int]bool   `json:"uploaded_chunks"`
	Status         UploadStatus   `json:"status"`
	Group          *GroupMetadata `json:"group_metadata,omitempty"`
	FilePath       string         `json:"file_path,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// Clone returns a deep copy safe to hand out of the session store.
func (s UploadSession) Clone() UploadSession {
	out := s
	out.UploadedChunks = make(map[int]bool, len(s.UploadedChunks))
	for k, v := range s.UploadedChunks {
		out.UploadedChunks[k] = v
	}
	if s.Group != nil {
		g := *s.Group
		out.Group = &g
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// UploadedList returns the received chunk indices in ascending order.
func (s UploadSession) UploadedList() []int {
	out := make([]int, 0, len(s.UploadedChunks))
	for idx := range s.UploadedChunks {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// RemainingChunks returns the sorted complement of the received chunks.
func (s UploadSession) RemainingChunks() []int {
	out := make([]int, 0, s.TotalChunks-len(s.UploadedChunks))
	for i := 0; i < s.TotalChunks; i++ {
		if !s.UploadedChunks[i] {
			out = append(out, i)
		}
	}
	return out
}

func (s UploadSession) ProgressPercent() float64 {
	if s.TotalChunks <= 0 {
		return 0
	}
	return float64(len(s.UploadedChunks)) / float64(s.TotalChunks) * 100
}

// AllChunksPresent reports whether every chunk index has been received.
func (s UploadSession) AllChunksPresent() bool {
	return s.TotalChunks > 0 && len(s.UploadedChunks) == s.TotalChunks
}

// ExpectedChunkLength returns the byte length chunk idx must have.
func (s UploadSession) ExpectedChunkLength(idx int) int64 {
	if idx == s.TotalChunks-1 {
		return s.FileSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

// VideoInfo is what probing learned about a source file.
type VideoInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Framerate       float64 `json:"framerate"`
	Codec           string  `json:"codec"`
	HasAudio        bool    `json:"has_audio"`
}

// VideoFile is one source of a merge in video_index order.
type VideoFile struct {
	VideoIndex            int        `json:"video_index"`
	UploadSessionID       string     `json:"upload_session_id"`
	Path                  string     `json:"path"`
	AuthoritativeDuration float64    `json:"authoritative_duration"`
	Probed                *VideoInfo `json:"probed,omitempty"`
	LowConfidence         bool       `json:"low_confidence,omitempty"`
}

// EffectiveDuration prefers the client-reported duration over the probed one.
func (v VideoFile) EffectiveDuration() float64 {
	if v.AuthoritativeDuration > 0 {
		return v.AuthoritativeDuration
	}
	if v.Probed != nil {
		return v.Probed.DurationSeconds
	}
	return 0
}

type VideoSegmentMetadata struct {
	SegmentIndex   int     `json:"segment_index"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Duration       float64 `json:"duration"`
	StatementIndex int     `json:"statement_index"`
}

type MergedVideoMetadata struct {
	TotalDuration         float64                `json:"total_duration"`
	Segments              []VideoSegmentMetadata `json:"segments"`
	ArtifactID            string                 `json:"artifact_id"`
	CompressionApplied    bool                   `json:"compression_applied"`
	OriginalTotalDuration float64                `json:"original_total_duration"`
	LowConfidence         bool                   `json:"low_confidence"`
	Width                 int                    `json:"width,omitempty"`
	Height                int                    `json:"height,omitempty"`
	Framerate             float64                `json:"framerate,omitempty"`
	SizeBytes             int64                  `json:"size_bytes,omitempty"`
}

type MergeSession struct {
	MergeSessionID    string               `json:"merge_session_id"`
	OwnerID           string               `json:"owner_id"`
	RunID             string               `json:"run_id"`
	Status            MergeStatus          `json:"status"`
	Stage             string               `json:"stage,omitempty"`
	VideoFiles        []VideoFile          `json:"video_files"`
	QualityPreset     string               `json:"quality_preset"`
	Progress          float64              `json:"progress"`
	ErrorMessage      string               `json:"error_message,omitempty"`
	ErrorStage        string               `json:"error_stage,omitempty"`
	Retryable         bool                 `json:"retryable,omitempty"`
	MergedArtifactRef string               `json:"merged_artifact_ref,omitempty"`
	ArtifactURL       string               `json:"artifact_url,omitempty"`
	MergedMetadata    *MergedVideoMetadata `json:"merged_metadata,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	StartedAt         *time.Time           `json:"started_at,omitempty"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out of the session store.
func (m MergeSession) Clone() MergeSession {
	out := m
	out.VideoFiles = make([]VideoFile, len(m.VideoFiles))
	for i, vf := range m.VideoFiles {
		if vf.Probed != nil {
			p := *vf.Probed
			vf.Probed = &p
		}
		out.VideoFiles[i] = vf
	}
	if m.MergedMetadata != nil {
		md := *m.MergedMetadata
		md.Segments = append([]VideoSegmentMetadata(nil), m.MergedMetadata.Segments...)
		out.MergedMetadata = &md
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		out.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
