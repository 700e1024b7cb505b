package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"minutes/internal/config"
	"minutes/internal/deps"
	"minutes/internal/device"
	"minutes/internal/language"
	"minutes/internal/preflight"
)

// deviceProber is swapped in tests so status output does not depend on the host GPU.
var deviceProber = func() statusProber { return device.NewSystemProber() }

type statusProber interface {
	device.Prober
	GPUs(ctx context.Context) []string
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency, device, and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			lines := statusLines(cmd.Context(), cfg, colorize)
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func statusLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	var lines []string

	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyTable(preflight.CheckSystemDeps(cfg)))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Pipeline", colorize)...)
	lines = append(lines,
		renderStatusLine("Backend", statusInfo, cfg.Transcription.Backend, colorize),
		renderStatusLine("Language", statusInfo, language.DisplayName(cfg.Pipeline.Language), colorize),
		renderStatusLine("Min segment", statusInfo, cfg.MinSegmentDuration().String(), colorize),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Devices", colorize)...)
	lines = append(lines, deviceLines(ctx, cfg, colorize)...)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Preflight", colorize)...)
	checkCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	lines = append(lines, preflightTable(preflight.RunAll(checkCtx, cfg)))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Storage", colorize)...)
	lines = append(lines, storageLines(cfg, colorize)...)
	return lines
}

func dependencyTable(statuses []deps.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		state := "ready"
		switch {
		case !status.Available && status.Optional:
			state = "optional, missing"
		case !status.Available:
			state = "MISSING"
		}
		location := status.Path
		if location == "" {
			location = status.Command
		}
		detail := status.Description
		if !status.Available && status.Detail != "" {
			detail = status.Detail
		}
		rows = append(rows, []string{status.Name, state, location, detail})
	}
	return renderTable([]string{"Tool", "Status", "Path", "Detail"}, rows, nil)
}

func deviceLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	prober := deviceProber()
	priority, err := device.ParsePriority(cfg.Pipeline.DevicePriority)
	if err != nil {
		return []string{renderStatusLine("Priority", statusError, err.Error(), colorize)}
	}

	lines := make([]string, 0, len(priority)+2)
	for _, kind := range priority {
		if prober.Available(ctx, kind) {
			lines = append(lines, renderStatusLine(kind.String(), statusOK, "available", colorize))
		} else {
			lines = append(lines, renderStatusLine(kind.String(), statusInfo, "unavailable", colorize))
		}
	}
	selected := device.Select(ctx, priority, prober)
	lines = append(lines, renderStatusLine("Selected", statusOK, selected.String(), colorize))
	if gpus := prober.GPUs(ctx); len(gpus) > 0 {
		lines = append(lines, renderStatusLine("GPUs", statusInfo, strings.Join(gpus, ", "), colorize))
	}
	return lines
}

func preflightTable(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		state := "pass"
		if !result.Passed {
			state = "FAIL"
		}
		rows = append(rows, []string{result.Name, state, result.Detail})
	}
	return renderTable([]string{"Check", "Result", "Detail"}, rows, nil)
}

func storageLines(cfg *config.Config, colorize bool) []string {
	free, err := preflight.FreeSpace(cfg.Paths.WorkDir)
	if err != nil {
		return []string{renderStatusLine("Work dir", statusWarn, err.Error(), colorize)}
	}
	kind := statusOK
	if cfg.HardLimitBytes() > 0 && int64(free) < cfg.HardLimitBytes() {
		kind = statusWarn
	}
	message := fmt.Sprintf("%s free (%s)", humanize.IBytes(free), cfg.Paths.WorkDir)
	return []string{renderStatusLine("Work dir", kind, message, colorize)}
}
