package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts transcribeOptions

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "minutes <input_file>",
		Short:         "話者分離付きの音声文字起こし",
		Long:          "動画・音声ファイルから話者分離付きの文字起こしを生成し、Markdown で保存します。",
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runTranscribe(cmd, ctx, args[0], opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "", "出力ファイルパス (default: <input_dir>/<stem>_transcript.md)")
	rootCmd.Flags().Float64Var(&opts.minDuration, "min-duration", 0, "Minimum speaker turn length in seconds (overrides pipeline.min_segment_duration)")
	rootCmd.Flags().StringVar(&opts.backend, "backend", "", "Transcription backend: local, whisper_server, openai, whispercpp")
	rootCmd.Flags().BoolVar(&opts.draft, "draft", false, "Also draft meeting minutes (<stem>_minutes.md) with the configured LLM")
	rootCmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDraftCommand(ctx))
	rootCmd.AddCommand(newNotifyCommand(ctx))

	return rootCmd
}
