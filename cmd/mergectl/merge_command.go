package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/princekumarofficial/statements-service/internal/services/media"
	"github.com/princekumarofficial/statements-service/internal/services/merge"
	"github.com/princekumarofficial/statements-service/internal/services/transcoder"
	"github.com/princekumarofficial/statements-service/internal/sessions"
	"github.com/princekumarofficial/statements-service/internal/types"
)

const localOwner = "mergectl"

// fileSource presents local files as the completed uploads of one group.
type fileSource struct {
	sessions []types.UploadSession
}

func newFileSource(mergeID string, paths []string, durations []float64) (*fileSource, error) {
	now := time.Now().UTC()
	src := &fileSource{}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		g := &types.GroupMetadata{MergeSessionID: mergeID, VideoIndex: i, VideoCount: len(paths)}
		if i < len(durations) {
			g.DurationSeconds = durations[i]
		}
		src.sessions = append(src.sessions, types.UploadSession{
			SessionID:   fmt.Sprintf("local-%d", i),
			OwnerID:     localOwner,
			Filename:    filepath.Base(abs),
			FileSize:    info.Size(),
			Status:      types.UploadCompleted,
			Group:       g,
			FilePath:    abs,
			CreatedAt:   now,
			UpdatedAt:   now,
			CompletedAt: &now,
		})
	}
	return src, nil
}

func (f *fileSource) GroupSessions(mergeID, owner string) []types.UploadSession {
	out := make([]types.UploadSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		if s.OwnerID == owner && s.Group.MergeSessionID == mergeID {
			out = append(out, s.Clone())
		}
	}
	return out
}

// RemoveSources never deletes the operator's input files.
func (f *fileSource) RemoveSources(context.Context, []string) int { return 0 }

// progressPrinter renders merge updates and signals the terminal state.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	final chan types.MergeSession
	once  sync.Once
	last  string
}

func (p *progressPrinter) MergeUpdated(_ context.Context, s types.MergeSession) {
	p.mu.Lock()
	line := fmt.Sprintf("%-10s %-12s %5.1f%%", s.Status, s.Stage, s.Progress)
	if line != p.last {
		p.last = line
		if p.tty {
			fmt.Fprintf(p.out, "\r%s", line)
		} else {
			fmt.Fprintln(p.out, line)
		}
	}
	p.mu.Unlock()

	if s.Status.Terminal() {
		p.once.Do(func() {
			if p.tty {
				fmt.Fprintln(p.out)
			}
			p.final <- s
		})
	}
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var (
		preset    string
		outDir    string
		mergeID   string
		durations []float64
	)
	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Run the merge pipeline on local files",
		Long: "Runs analysis, normalization, concatenation and compression on the given files\n" +
			"in argument order and writes the artifact under the output directory.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.config()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			cfg := *base
			cfg.Merge.GroupSize = len(args)
			cfg.Merge.DeleteSources = false
			workDir, err := os.MkdirTemp("", "mergectl-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)
			cfg.Merge.WorkDir = workDir

			absOut, err := filepath.Abs(outDir)
			if err != nil {
				return err
			}
			blobs, err := media.NewLocalStore(absOut, "file://"+absOut, cfg.JWTSecret)
			if err != nil {
				return err
			}
			src, err := newFileSource(mergeID, args, durations)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printer := &progressPrinter{out: out, tty: isTerminal(out), final: make(chan types.MergeSession, 1)}
			tc := transcoder.NewFFmpeg(cfg.Transcoder, logger)
			orch := merge.NewOrchestrator(&cfg, sessions.NewStore(nil, logger), src, tc, blobs, logger, printer)
			defer orch.Shutdown(context.Background())

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := orch.InitiateMerge(runCtx, mergeID, localOwner, preset); err != nil {
				return err
			}

			var final types.MergeSession
			select {
			case final = <-printer.final:
			case <-runCtx.Done():
				if _, err := orch.Cancel(context.Background(), mergeID, localOwner); err != nil {
					return err
				}
				return context.Canceled
			}

			if final.Status != types.MergeCompleted {
				return errors.New(final.ErrorMessage)
			}
			md := final.MergedMetadata
			fmt.Fprintf(out, "Artifact: %s\n", filepath.Join(absOut, filepath.FromSlash(final.MergedArtifactRef)))
			fmt.Fprintf(out, "Resolution: %dx%d @ %sfps, %d bytes, compressed=%t, low_confidence=%t\n",
				md.Width, md.Height, strconv.FormatFloat(md.Framerate, 'f', -1, 64), md.SizeBytes, md.CompressionApplied, md.LowConfidence)
			fmt.Fprintln(out, segmentTable(md.Segments))
			fmt.Fprintf(out, "Total duration: %.3fs (sources %.3fs)\n", md.TotalDuration, md.OriginalTotalDuration)
			return nil
		},
	}
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "Quality preset (defaults to the configured default)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory that receives the merged artifact")
	cmd.Flags().StringVar(&mergeID, "id", "local", "Merge session id used in the artifact key")
	cmd.Flags().Float64SliceVar(&durations, "durations", nil, "Authoritative clip durations in seconds, in file order")
	return cmd
}
