package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Kind identifies a compute device for model inference.
type Kind string

const (
	CUDA Kind = "cuda"
	MPS  Kind = "mps"
	CPU  Kind = "cpu"
)

// DefaultPriority is the selection order used when none is configured.
var DefaultPriority = []Kind{CUDA, MPS, CPU}

func (k Kind) String() string { return string(k) }

// ParseKind validates a device name.
func ParseKind(value string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(value))); kind {
	case CUDA, MPS, CPU:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected cuda, mps, or cpu)", value)
	}
}

// ParsePriority validates a configured device order. An empty list yields
// DefaultPriority.
func ParsePriority(values []string) ([]Kind, error) {
	if len(values) == 0 {
		return append([]Kind(nil), DefaultPriority...), nil
	}
	kinds := make([]Kind, 0, len(values))
	for _, value := range values {
		kind, err := ParseKind(value)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Prober reports whether a device kind can be used on this host.
type Prober interface {
	Available(ctx context.Context, kind Kind) bool
}

// Select returns the first available kind in priority order. Unknown kinds
// are ignored. CPU is always available and is returned when nothing earlier
// in the list is.
func Select(ctx context.Context, priority []Kind, prober Prober) Kind {
	for _, kind := range priority {
		switch kind {
		case CPU:
			return CPU
		case CUDA, MPS:
		default:
			continue
		}
		if prober != nil && prober.Available(ctx, kind) {
			return kind
		}
	}
	return CPU
}

// CommandRunner executes a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SystemProber checks the host for CUDA GPUs and Apple Silicon.
type SystemProber struct {
	run    CommandRunner
	goos   string
	goarch string
}

// NewSystemProber returns a prober backed by nvidia-smi and the runtime
// platform.
func NewSystemProber() *SystemProber {
	return &SystemProber{run: runCommand, goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// WithCommandRunner overrides the command runner (primarily for tests).
func (p *SystemProber) WithCommandRunner(run CommandRunner) *SystemProber {
	if run != nil {
		p.run = run
	}
	return p
}

// WithPlatform overrides the detected OS and architecture (primarily for tests).
func (p *SystemProber) WithPlatform(goos, goarch string) *SystemProber {
	p.goos = goos
	p.goarch = goarch
	return p
}

// Available implements Prober.
func (p *SystemProber) Available(ctx context.Context, kind Kind) bool {
	switch kind {
	case CPU:
		return true
	case MPS:
		return p.goos == "darwin" && p.goarch == "arm64"
	case CUDA:
		return p.cudaAvailable(ctx)
	default:
		return false
	}
}

// GPUs returns the GPU lines reported by nvidia-smi -L.
func (p *SystemProber) GPUs(ctx context.Context) []string {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := p.run(probeCtx, "nvidia-smi", "-L")
	if err != nil {
		return nil
	}
	var gpus []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "GPU ") {
			gpus = append(gpus, line)
		}
	}
	return gpus
}

func (p *SystemProber) cudaAvailable(ctx context.Context) bool {
	return len(p.GPUs(ctx)) > 0
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
