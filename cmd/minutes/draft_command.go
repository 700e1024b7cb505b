package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"minutes/internal/config"
	"minutes/internal/fileutil"
	"minutes/internal/report"
	"minutes/internal/services/llm"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "draft <transcript.md>",
		Short: "Draft meeting minutes from a transcript with the configured LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve transcript path: %w", err)
			}
			data, err := os.ReadFile(source)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("ファイルが見つかりません: %s", source)
				}
				return fmt.Errorf("read transcript: %w", err)
			}
			if _, err := report.Parse(string(data), time.Local); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not a minutes transcript (%v); sending it as-is\n", source, err)
			}

			target := strings.TrimSpace(outputFlag)
			if target == "" {
				target = minutesPathFor(source)
			} else if target, err = config.ExpandPath(target); err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			path, err := draftMinutes(cmd.Context(), cfg, string(data), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "議事録ファイル: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination (default: <stem>_minutes.md next to the transcript)")
	return cmd
}

// minutesPathFor maps meeting_transcript.md to meeting_minutes.md.
func minutesPathFor(transcriptPath string) string {
	path := siblingPath(transcriptPath, "")
	path = strings.TrimSuffix(path, "_transcript")
	return path + "_minutes.md"
}

func newLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}

func draftMinutes(ctx context.Context, cfg *config.Config, transcript, target string) (string, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return "", errors.New("llm.api_key is not configured (or export OPENROUTER_API_KEY)")
	}
	minutes, err := newLLMClient(cfg).DraftMinutes(ctx, transcript)
	if err != nil {
		return "", fmt.Errorf("draft minutes: %w", err)
	}
	if err := fileutil.WriteFileAtomic(target, []byte(minutes), 0o644); err != nil {
		return "", fmt.Errorf("write minutes: %w", err)
	}
	return target, nil
}
