package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/princekumarofficial/statements-service/internal/services/merge"
	"github.com/princekumarofficial/statements-service/internal/services/transcoder"
	"github.com/princekumarofficial/statements-service/internal/storage/sqlite"
	"github.com/princekumarofficial/statements-service/internal/types"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE...",
		Short: "Show stream information for video files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			tc := transcoder.NewFFmpeg(cfg.Transcoder, ctx.logger())
			probeCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Merge.ProbeTimeout*time.Duration(len(args)))
			defer cancel()

			rows := make([][]string, 0, len(args))
			for _, path := range args {
				info, err := tc.Probe(probeCtx, path)
				if err != nil {
					rows = append(rows, []string{path, "error: " + err.Error()})
					continue
				}
				rows = append(rows, []string{
					path,
					info.Codec,
					fmt.Sprintf("%dx%d", info.Width, info.Height),
					strconv.FormatFloat(info.Framerate, 'f', 2, 64),
					strconv.FormatBool(info.HasAudio),
					strconv.FormatFloat(info.DurationSeconds, 'f', 3, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Codec", "Resolution", "FPS", "Audio", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight}))
			return nil
		},
	}
}

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List configured quality presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cfg.Merge.Presets))
			for _, name := range cfg.Merge.PresetNames() {
				p, _ := cfg.Merge.Preset(name)
				if name == cfg.Merge.DefaultPreset {
					name += " (default)"
				}
				rows = append(rows, []string{name, p.MaxBitrate, p.EncoderSpeed, strconv.Itoa(p.CRF), p.AudioBitrate})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Preset", "Max bitrate", "Encoder speed", "CRF", "Audio bitrate"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
}

func newSegmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "segments DURATION...",
		Short:   "Compute segment boundaries for clip durations in seconds",
		Example: "  mergectl segments 10 12.5 15",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]types.VideoFile, 0, len(args))
			for i, raw := range args {
				d, err := strconv.ParseFloat(raw, 64)
				if err != nil || d < 0 {
					return fmt.Errorf("invalid duration %q", raw)
				}
				files = append(files, types.VideoFile{VideoIndex: i, AuthoritativeDuration: d})
			}
			segments, total := merge.BuildSegments(files)
			fmt.Fprintln(cmd.OutOrStdout(), segmentTable(segments))
			fmt.Fprintf(cmd.OutOrStdout(), "Total duration: %.3fs\n", total)
			return nil
		},
	}
}

func segmentTable(segments []types.VideoSegmentMetadata) string {
	rows := make([][]string, 0, len(segments))
	for _, s := range segments {
		rows = append(rows, []string{
			strconv.Itoa(s.SegmentIndex),
			strconv.Itoa(s.StatementIndex),
			strconv.FormatFloat(s.StartTime, 'f', 3, 64),
			strconv.FormatFloat(s.EndTime, 'f', 3, 64),
			strconv.FormatFloat(s.Duration, 'f', 3, 64),
		})
	}
	return renderTable(
		[]string{"Segment", "Statement", "Start", "End", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight})
}

func newSessionsCommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List upload and merge sessions persisted in a SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			uploads, err := store.ListUploadSessions(cmd.Context())
			if err != nil {
				return err
			}
			merges, err := store.ListMergeSessions(cmd.Context())
			if err != nil {
				return err
			}

			uploadRows := make([][]string, 0, len(uploads))
			for _, u := range uploads {
				group := ""
				if u.Group != nil {
					group = fmt.Sprintf("%s#%d", u.Group.MergeSessionID, u.Group.VideoIndex)
				}
				uploadRows = append(uploadRows, []string{
					u.SessionID, u.OwnerID, string(u.Status), group,
					fmt.Sprintf("%d/%d", len(u.UploadedChunks), u.TotalChunks),
					u.UpdatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			mergeRows := make([][]string, 0, len(merges))
			for _, m := range merges {
				mergeRows = append(mergeRows, []string{
					m.MergeSessionID, m.OwnerID, string(m.Status), m.QualityPreset,
					strconv.FormatFloat(m.Progress, 'f', 0, 64) + "%",
					m.ErrorMessage,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Uploads")
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Owner", "Status", "Group", "Chunks", "Updated"},
				uploadRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			fmt.Fprintln(out, "Merges")
			fmt.Fprintln(out, renderTable(
				[]string{"Merge", "Owner", "Status", "Preset", "Progress", "Error"},
				mergeRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "data/sessions.db", "SQLite session database")
	return cmd
}
