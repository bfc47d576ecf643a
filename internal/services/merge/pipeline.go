package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/services/media"
	"github.com/princekumarofficial/statements-service/internal/services/transcoder"
	"github.com/princekumarofficial/statements-service/internal/types"
)

// Progress checkpoints reached when each stage completes.
const (
	progressAnalysis    = 20.0
	progressPreparation = 40.0
	progressMerge       = 80.0
	progressCompression = 90.0
	progressFinalize    = 100.0

	// Fine-grained progress is committed only in steps of at least this much.
	minProgressStep = 1.0
)

// Probe fallbacks for sources the transcoder cannot read.
var defaultVideoInfo = types.VideoInfo{
	DurationSeconds: 10,
	Width:           720,
	Height:          1280,
	Framerate:       30,
	Codec:           "h264",
	HasAudio:        true,
}

var errInterrupted = errors.New("interrupted by shutdown")

// run carries the state of one pipeline execution.
type run struct {
	o       *Orchestrator
	mergeID string
	runID   string
	owner   string
	preset  config.QualityPreset
	workDir string
	files   []types.VideoFile
	logger  *slog.Logger

	lowConfidence bool
	width         int
	height        int
	framerate     float64
	prepared      []string
	concatPath    string
	segments      []types.VideoSegmentMetadata
	totalDuration float64
	finalPath     string
	compressed    bool
}

func (o *Orchestrator) execute(ctx context.Context, session types.MergeSession) {
	preset, _ := o.cfg.Preset(session.QualityPreset)
	r := &run{
		o:       o,
		mergeID: session.MergeSessionID,
		runID:   session.RunID,
		owner:   session.OwnerID,
		preset:  preset,
		workDir: o.workDir(session.MergeSessionID, session.RunID),
		files:   session.VideoFiles,
		logger: o.logger.With(
			"merge_session_id", session.MergeSessionID,
			"run_id", session.RunID),
	}
	defer r.cleanup()

	if err := o.slots.Acquire(ctx, 1); err != nil {
		r.fail(services.StageAnalysis, r.interruption(ctx, err))
		return
	}
	defer o.slots.Release(1)

	now := o.now()
	if _, ok := o.commit(r.mergeID, r.runID, func(cur *types.MergeSession) error {
		if cur.Status != types.MergePending {
			return errStale
		}
		cur.Status = types.MergeProcessing
		cur.Stage = string(services.StageAnalysis)
		cur.StartedAt = &now
		cur.UpdatedAt = now
		return nil
	}); !ok {
		return
	}

	started := time.Now()
	r.logger.Info("merge pipeline started", "event_type", "pipeline_start", "videos", len(r.files))

	stages := []struct {
		stage services.Stage
		from  float64
		to    float64
		fn    func(context.Context, func(float64)) error
	}{
		{services.StageAnalysis, 0, progressAnalysis, r.analyze},
		{services.StagePreparation, progressAnalysis, progressPreparation, r.prepare},
		{services.StageMerge, progressPreparation, progressMerge, r.concatenate},
		{services.StageCompression, progressMerge, progressCompression, r.compress},
		{services.StageStorage, progressCompression, progressFinalize, r.finalize},
	}
	for _, st := range stages {
		if err := r.stage(ctx, st.stage, st.from, st.to, st.fn); err != nil {
			r.fail(st.stage, r.interruption(ctx, err))
			return
		}
	}

	r.logger.Info("merge pipeline completed",
		"event_type", "pipeline_complete",
		"duration_ms", time.Since(started).Milliseconds(),
		"compression_applied", r.compressed,
		"low_confidence", r.lowConfidence)
}

// stage runs fn between two progress checkpoints, logging its lifecycle.
func (r *run) stage(ctx context.Context, stage services.Stage, from, to float64, fn func(context.Context, func(float64)) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := r.logger.With("stage", string(stage))
	r.advance(stage, from, true)
	logger.Info("stage started", "event_type", "stage_start")

	started := time.Now()
	report := func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		r.advance(stage, from+(to-from)*fraction, false)
	}
	if err := fn(ctx, report); err != nil {
		logger.Error("stage failed",
			"event_type", "stage_failure",
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err)
		return err
	}

	r.advance(stage, to, true)
	logger.Info("stage completed",
		"event_type", "stage_complete",
		"duration_ms", time.Since(started).Milliseconds())
	return nil
}

// advance moves progress forward; it never moves it back.
func (r *run) advance(stage services.Stage, pct float64, force bool) {
	r.o.commit(r.mergeID, r.runID, func(cur *types.MergeSession) error {
		if cur.Status != types.MergeProcessing {
			return errNoChange
		}
		stageChanged := cur.Stage != string(stage)
		if pct < cur.Progress || (pct == cur.Progress && !stageChanged) {
			return errNoChange
		}
		if !force && !stageChanged && pct-cur.Progress < minProgressStep {
			return errNoChange
		}
		cur.Stage = string(stage)
		cur.Progress = pct
		cur.UpdatedAt = r.o.now()
		return nil
	})
}

// interruption reports a cancelled run caused by shutdown as retryable.
// Runs cancelled by the user are already terminal and the failure is
// discarded by the stale-run guard.
func (r *run) interruption(ctx context.Context, err error) error {
	if ctx.Err() != nil && r.o.baseCtx.Err() != nil {
		return &services.ProcessingError{Retryable: true, Err: errInterrupted}
	}
	return err
}

func (r *run) fail(stage services.Stage, err error) {
	pe, ok := services.AsProcessingError(err)
	if !ok {
		pe = services.NewProcessingError(stage, err)
	}
	if pe.Stage == "" {
		pe.Stage = stage
	}
	message := pe.Error()
	now := r.o.now()
	if _, ok := r.o.commit(r.mergeID, r.runID, func(cur *types.MergeSession) error {
		cur.Status = types.MergeFailed
		cur.ErrorStage = string(pe.Stage)
		cur.ErrorMessage = message
		cur.Retryable = pe.Retryable
		cur.UpdatedAt = now
		cur.CompletedAt = &now
		return nil
	}); ok {
		r.logger.Error("merge pipeline failed",
			"event_type", "pipeline_failure",
			"stage", string(pe.Stage),
			"retryable", pe.Retryable,
			"error_message", message)
	}
}

func (r *run) cleanup() {
	r.o.removeWorkDir(r.mergeID, r.runID)
}

func (r *run) saveFiles() {
	files := append([]types.VideoFile(nil), r.files...)
	r.o.commit(r.mergeID, r.runID, func(cur *types.MergeSession) error {
		cur.VideoFiles = files
		return nil
	})
}

// analyze probes every source. Probe failures fall back to defaults and
// flag the merge as low confidence instead of failing it.
func (r *run) analyze(ctx context.Context, report func(float64)) error {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return services.NewProcessingError(services.StageAnalysis, fmt.Errorf("create work dir: %w", err))
	}
	// Uploads can be cancelled or swept between readiness and the slot.
	for _, f := range r.files {
		if _, err := os.Stat(f.Path); err != nil {
			return services.NewProcessingError(services.StageAnalysis, services.Wrap(services.ErrNotReady,
				fmt.Sprintf("source missing for video %d (upload %s)", f.VideoIndex, f.UploadSessionID), err))
		}
	}
	for i := range r.files {
		f := &r.files[i]
		probeCtx, cancel := context.WithTimeout(ctx, r.o.cfg.ProbeTimeout)
		info, err := r.o.tc.Probe(probeCtx, f.Path)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("probe failed, using defaults",
				"video_index", f.VideoIndex,
				"path", f.Path,
				"error", err)
			info = defaultVideoInfo
			f.LowConfidence = true
			r.lowConfidence = true
		}
		f.Probed = &info
		report(float64(i+1) / float64(len(r.files)))
	}
	r.saveFiles()
	return nil
}

// prepare brings every source to the group's largest even resolution and
// the configured framerate. Conforming sources are used as-is.
func (r *run) prepare(ctx context.Context, report func(float64)) error {
	for _, f := range r.files {
		if f.Probed == nil {
			continue
		}
		r.width = max(r.width, f.Probed.Width)
		r.height = max(r.height, f.Probed.Height)
	}
	r.width -= r.width % 2
	r.height -= r.height % 2
	if r.width <= 0 || r.height <= 0 {
		r.width, r.height = defaultVideoInfo.Width, defaultVideoInfo.Height
	}
	r.framerate = r.o.cfg.TargetFramerate

	n := float64(len(r.files))
	r.prepared = make([]string, len(r.files))
	for i, f := range r.files {
		if transcoder.Conforms(*f.Probed, r.width, r.height, r.framerate) {
			r.logger.Debug("source already conforms", "video_index", f.VideoIndex)
			r.prepared[i] = f.Path
			report(float64(i+1) / n)
			continue
		}
		out := filepath.Join(r.workDir, fmt.Sprintf("normalized_%d.mp4", f.VideoIndex))
		normCtx, cancel := context.WithTimeout(ctx, r.o.cfg.NormalizeTimeout)
		err := r.o.tc.Normalize(normCtx, transcoder.NormalizeRequest{
			Input:     f.Path,
			Output:    out,
			Width:     r.width,
			Height:    r.height,
			Framerate: r.framerate,
			HasAudio:  f.Probed.HasAudio,
			Duration:  f.EffectiveDuration(),
		}, func(p transcoder.Progress) {
			report((float64(i) + p.Fraction) / n)
		})
		cancel()
		if err != nil {
			return services.NewProcessingError(services.StagePreparation,
				fmt.Errorf("normalize video %d: %w", f.VideoIndex, err))
		}
		r.prepared[i] = out
		report(float64(i+1) / n)
	}
	return nil
}

// concatenate stream-copies the prepared files in video_index order and
// computes the segment table.
func (r *run) concatenate(ctx context.Context, report func(float64)) error {
	r.segments, r.totalDuration = BuildSegments(r.files)
	r.concatPath = filepath.Join(r.workDir, "concat.mp4")

	concatCtx, cancel := context.WithTimeout(ctx, r.o.cfg.ConcatTimeout)
	defer cancel()
	err := r.o.tc.Concatenate(concatCtx, transcoder.ConcatRequest{
		Inputs:   r.prepared,
		Output:   r.concatPath,
		ListPath: filepath.Join(r.workDir, "concat.txt"),
		Duration: r.totalDuration,
	}, func(p transcoder.Progress) { report(p.Fraction) })
	if err != nil {
		return services.NewProcessingError(services.StageMerge, fmt.Errorf("concatenate: %w", err))
	}
	if _, err := nonEmptyFile(r.concatPath); err != nil {
		return services.NewProcessingError(services.StageMerge, err)
	}
	return nil
}

// compress re-encodes with the preset. A result that is not smaller than
// its input is discarded and the concatenated file is kept.
func (r *run) compress(ctx context.Context, report func(float64)) error {
	out := filepath.Join(r.workDir, "compressed.mp4")
	compressCtx, cancel := context.WithTimeout(ctx, r.o.cfg.CompressTimeout)
	defer cancel()
	err := r.o.tc.Compress(compressCtx, transcoder.CompressRequest{
		Input:    r.concatPath,
		Output:   out,
		Preset:   r.preset,
		Duration: r.totalDuration,
	}, func(p transcoder.Progress) { report(p.Fraction) })
	if err != nil {
		return services.NewProcessingError(services.StageCompression, fmt.Errorf("compress: %w", err))
	}
	compressedSize, err := nonEmptyFile(out)
	if err != nil {
		return services.NewProcessingError(services.StageCompression, err)
	}

	originalSize, _ := nonEmptyFile(r.concatPath)
	if compressedSize >= originalSize {
		r.logger.Info("compression did not reduce size, keeping concatenated file",
			"original_bytes", originalSize,
			"compressed_bytes", compressedSize)
		r.finalPath = r.concatPath
		r.compressed = false
		return nil
	}
	r.finalPath = out
	r.compressed = true
	return nil
}

// finalize uploads the artifact, records the result and drops the sources.
func (r *run) finalize(ctx context.Context, report func(float64)) error {
	f, err := os.Open(r.finalPath)
	if err != nil {
		return services.NewProcessingError(services.StageStorage, fmt.Errorf("open artifact: %w", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return services.NewProcessingError(services.StageStorage, fmt.Errorf("stat artifact: %w", err))
	}

	key := media.MergedArtifactKey(r.owner, r.mergeID)
	ref, err := r.o.blobs.Put(ctx, key, f, info.Size(), "video/mp4", map[string]string{
		"merge_session_id": r.mergeID,
		"run_id":           r.runID,
		"owner_id":         r.owner,
	})
	if err != nil {
		return services.NewProcessingError(services.StageStorage, fmt.Errorf("upload artifact: %w", err))
	}
	report(0.5)

	url, err := r.o.blobs.SignedURL(ctx, ref.Key, r.o.urlTTL)
	if err != nil {
		r.logger.Warn("failed to sign artifact url", "key", ref.Key, "error", err)
	}

	original := 0.0
	for _, vf := range r.files {
		if vf.Probed != nil && !vf.LowConfidence {
			original += vf.Probed.DurationSeconds
		} else {
			original += vf.EffectiveDuration()
		}
	}
	metadata := &types.MergedVideoMetadata{
		TotalDuration:         r.totalDuration,
		Segments:              r.segments,
		ArtifactID:            ref.Key,
		CompressionApplied:    r.compressed,
		OriginalTotalDuration: roundMillis(original),
		LowConfidence:         r.lowConfidence,
		Width:                 r.width,
		Height:                r.height,
		Framerate:             r.framerate,
		SizeBytes:             ref.Size,
	}

	now := r.o.now()
	if _, ok := r.o.commit(r.mergeID, r.runID, func(cur *types.MergeSession) error {
		cur.Status = types.MergeCompleted
		cur.Stage = string(services.StageStorage)
		cur.Progress = progressFinalize
		cur.MergedArtifactRef = ref.Key
		cur.ArtifactURL = url
		cur.MergedMetadata = metadata
		cur.UpdatedAt = now
		cur.CompletedAt = &now
		return nil
	}); !ok {
		// Cancelled while uploading; the artifact belongs to no run.
		if _, err := r.o.blobs.Delete(context.WithoutCancel(ctx), ref.Key); err != nil {
			r.logger.Warn("failed to delete orphaned artifact", "key", ref.Key, "error", err)
		}
		return context.Canceled
	}

	if r.o.cfg.DeleteSources {
		ids := make([]string, 0, len(r.files))
		for _, vf := range r.files {
			ids = append(ids, vf.UploadSessionID)
		}
		removed := r.o.uploads.RemoveSources(context.WithoutCancel(ctx), ids)
		r.logger.Info("removed merged sources", "requested", len(ids), "removed", removed)
	}
	return nil
}

func nonEmptyFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("output %s missing: %w", filepath.Base(path), err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("output %s is empty", filepath.Base(path))
	}
	return info.Size(), nil
}
