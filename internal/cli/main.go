package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shortpipe/shortpipe/internal/pipeline"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:           "shortpipe",
		Short:         "Turn long YouTube videos into vertical shorts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.PersistentFlags().String("config", "config/settings.yaml", "Settings file")
	root.PersistentFlags().String("language", "", "Transcription language hint (default: auto-detect)")
	root.PersistentFlags().Int("max-cuts", 0, "Maximum number of segments (overrides settings)")
	root.PersistentFlags().Float64("min-score", -1, "Minimum acceptance score (overrides settings)")
	root.PersistentFlags().String("resolution", "", "Target export resolution WxH (overrides settings)")

	root.AddCommand(
		newRunCmd(),
		newDownloadCmd(),
		newTranscribeCmd(),
		newAnalyzeCmd(),
		newCutCmd(),
		newExportCmd(),
		newWatchCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Run the full pipeline: download, transcribe, analyze, cut, export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			resume, _ := cmd.Flags().GetBool("resume")
			force, _ := cmd.Flags().GetBool("force")
			contOnErr, _ := cmd.Flags().GetBool("continue-on-error")
			language, _ := cmd.Flags().GetString("language")

			skip := map[pipeline.Stage]bool{}
			for _, stage := range pipeline.Stages {
				on, _ := cmd.Flags().GetBool("skip-" + string(stage))
				skip[stage] = on
			}

			return app.runner.Run(cmd.Context(), args[0], pipeline.RunOptions{
				Resume:          resume,
				Skip:            skip,
				ContinueOnError: contOnErr,
				Force:           force,
				Language:        language,
			})
		},
	}
	cmd.Flags().Bool("resume", false, "Skip stages whose output artifact already exists")
	cmd.Flags().Bool("force", false, "Re-cut segments that were already cut")
	cmd.Flags().Bool("continue-on-error", false, "Keep going after a stage fails")
	for _, stage := range pipeline.Stages {
		cmd.Flags().Bool("skip-"+string(stage), false, "Skip the "+string(stage)+" stage")
	}
	return cmd
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <url>",
		Short: "Download a YouTube video into the raw artifact directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			videoID, err := app.runner.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s -> %s\n", videoID, app.layout.RawVideo(videoID))
			return nil
		},
	}
}

func newTranscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe [video-id]",
		Short: "Transcribe a downloaded video (defaults to the most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			videoID, err := app.resolveVideoID(args, app.layout.RawDir(), "*.mp4")
			if err != nil {
				return err
			}
			language, _ := cmd.Flags().GetString("language")
			return app.runner.Transcribe(cmd.Context(), videoID, language)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [video-id]",
		Short: "Ask the selection model for cut proposals (defaults to the most recent transcript)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			videoID, err := app.resolveVideoID(args, app.layout.TranscriptDir(), "*_transcript.json")
			if err != nil {
				return err
			}
			return app.runner.Analyze(cmd.Context(), videoID)
		},
	}
}

func newCutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cut [video-id]",
		Short: "Cut the selected segments out of the source video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			videoID, err := app.resolveVideoID(args, app.layout.AnalysisDir(), "*_analysis.json")
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			return app.runner.Cut(cmd.Context(), videoID, force)
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite clips that were already cut")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [video-id]",
		Short: "Re-encode cut clips into vertical shorts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			videoID, err := app.resolveVideoID(args, app.layout.AnalysisDir(), "*_analysis.json")
			if err != nil {
				return err
			}
			return app.runner.Export(cmd.Context(), videoID)
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the raw directory and process newly dropped videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			return app.watch(cmd.Context())
		},
	}
}
