package modelhost

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"minutes/internal/device"
	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/transcript"
)

//go:embed modelhost.py
var workerScript []byte

const (
	scriptName      = "modelhost.py"
	pypiIndexURL    = "https://pypi.org/simple"
	shutdownTimeout = 5 * time.Second
	gatedHint       = "Hugging Face model access denied. Accept the model terms at https://hf.co/pyannote/speaker-diarization-3.1 and https://hf.co/pyannote/segmentation-3.0, then set HF_TOKEN"
)

// ErrHostExited is returned when the worker stops while a request is pending.
var ErrHostExited = errors.New("model host exited")

// Config describes how to launch the worker.
type Config struct {
	UVXBinary     string
	CUDAIndexURL  string
	ExtraPackages []string
	HFToken       string
	// ScriptDir receives the worker script before launch.
	ScriptDir string
}

type request struct {
	ID        int64  `json:"id"`
	Op        string `json:"op"`
	Component string `json:"component,omitempty"`
	Model     string `json:"model,omitempty"`
	Device    string `json:"device,omitempty"`
	HFToken   string `json:"hf_token,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Language  string `json:"language,omitempty"`
	Task      string `json:"task,omitempty"`
}

type wireTurn struct {
	Start   decimal.Decimal `json:"start"`
	End     decimal.Decimal `json:"end"`
	Speaker string          `json:"speaker"`
}

type response struct {
	ID    int64      `json:"id"`
	OK    bool       `json:"ok"`
	Error string     `json:"error"`
	Kind  string     `json:"kind"`
	Turns []wireTurn `json:"turns"`
	Text  string     `json:"text"`
}

type line struct {
	data []byte
	err  error
}

// Host runs the Python model worker and serializes requests to it.
type Host struct {
	cfg    Config
	launch Launcher
	logger *slog.Logger

	mu     sync.Mutex
	proc   Process
	lines  chan line
	nextID int64
}

// New returns a host that launches the worker on first use.
func New(cfg Config, logger *slog.Logger) *Host {
	if strings.TrimSpace(cfg.UVXBinary) == "" {
		cfg.UVXBinary = "uvx"
	}
	return &Host{cfg: cfg, launch: execLauncher, logger: logging.NewComponentLogger(logger, "modelhost")}
}

// WithLauncher overrides process creation (primarily for tests).
func (h *Host) WithLauncher(launch Launcher) *Host {
	if launch != nil {
		h.launch = launch
	}
	return h
}

// Load asks the worker to load a model component on dev.
func (h *Host) Load(ctx context.Context, dev device.Kind, component, model string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureStartedLocked(ctx, dev); err != nil {
		return err
	}
	_, err := h.callLocked(ctx, request{
		Op:        "load",
		Component: component,
		Model:     model,
		Device:    dev.String(),
		HFToken:   h.cfg.HFToken,
	})
	return err
}

// Diarize runs the loaded diarization pipeline on audioPath.
func (h *Host) Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resp, err := h.callLocked(ctx, request{Op: "diarize", Audio: audioPath})
	if err != nil {
		return nil, err
	}
	turns := make([]transcript.Turn, 0, len(resp.Turns))
	for _, wt := range resp.Turns {
		turns = append(turns, transcript.Turn{
			Start:   transcript.SecondsToDuration(wt.Start),
			End:     transcript.SecondsToDuration(wt.End),
			Speaker: wt.Speaker,
		})
	}
	return turns, nil
}

// Transcribe runs the loaded recognition model on a clip.
func (h *Host) Transcribe(ctx context.Context, audioPath, language, task string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resp, err := h.callLocked(ctx, request{Op: "transcribe", Audio: audioPath, Language: language, Task: task})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Close stops the worker. It is safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

// LaunchSpec returns the uvx command used for dev.
func (h *Host) LaunchSpec(dev device.Kind, scriptPath string) LaunchSpec {
	args := []string{
		"--quiet",
		"--with", "pyannote.audio",
		"--with", "transformers",
		"--with", "torchaudio",
		"--with", "soundfile",
		"--with", "omegaconf",
	}
	for _, pkg := range h.cfg.ExtraPackages {
		args = append(args, "--with", pkg)
	}
	if dev == device.CUDA && strings.TrimSpace(h.cfg.CUDAIndexURL) != "" {
		args = append(args,
			"--index-url", h.cfg.CUDAIndexURL,
			"--extra-index-url", pypiIndexURL,
		)
	}
	args = append(args, "python", "-u", scriptPath)

	env := os.Environ()
	if h.cfg.HFToken != "" {
		env = append(env, "HF_TOKEN="+h.cfg.HFToken)
	}
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return LaunchSpec{Binary: h.cfg.UVXBinary, Args: args, Env: env}
}

func (h *Host) ensureStartedLocked(ctx context.Context, dev device.Kind) error {
	if h.proc != nil {
		return nil
	}
	scriptDir := h.cfg.ScriptDir
	if scriptDir == "" {
		scriptDir = os.TempDir()
	}
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "models", "write worker", scriptDir, err)
	}
	scriptPath := filepath.Join(scriptDir, scriptName)
	if err := os.WriteFile(scriptPath, workerScript, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "models", "write worker", scriptPath, err)
	}

	spec := h.LaunchSpec(dev, scriptPath)
	h.logger.Info("starting model host", logging.String("command", spec.String()), logging.String("device", dev.String()))
	proc, err := h.launch(ctx, spec)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "models", "launch", "is uvx installed?", err)
	}

	lines := make(chan line, 1)
	go readLines(proc.Stdout(), lines)
	h.proc = proc
	h.lines = lines
	return nil
}

func readLines(r io.Reader, out chan<- line) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	for scanner.Scan() {
		data := append([]byte(nil), scanner.Bytes()...)
		out <- line{data: data}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	out <- line{err: err}
}

func (h *Host) callLocked(ctx context.Context, req request) (response, error) {
	if h.proc == nil {
		return response{}, services.Wrap(services.ErrConfiguration, "models", req.Op, "model host not started", nil)
	}
	h.nextID++
	req.ID = h.nextID
	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := h.proc.Stdin().Write(payload); err != nil {
		tail := h.proc.StderrTail()
		_ = h.stopLocked()
		return response{}, services.Wrap(services.ErrExternalTool, "models", req.Op, tail, fmt.Errorf("%w: %w", ErrHostExited, err))
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.stopLocked()
			return response{}, ctx.Err()
		case ln, ok := <-h.lines:
			if !ok || ln.err != nil {
				tail := h.proc.StderrTail()
				_ = h.stopLocked()
				return response{}, services.Wrap(services.ErrExternalTool, "models", req.Op, tail, ErrHostExited)
			}
			var resp response
			if err := json.Unmarshal(ln.data, &resp); err != nil {
				h.logger.Debug("model host output", logging.String("line", string(ln.data)))
				continue
			}
			if resp.ID != req.ID {
				continue
			}
			if !resp.OK {
				return response{}, workerError(req.Op, resp)
			}
			return resp, nil
		}
	}
}

func workerError(op string, resp response) error {
	cause := errors.New(resp.Error)
	switch resp.Kind {
	case "gated":
		return services.Wrap(services.ErrConfiguration, "models", op, gatedHint, cause)
	case "input":
		return services.Wrap(services.ErrValidation, "models", op, "", cause)
	default:
		return services.Wrap(services.ErrExternalTool, "models", op, "", cause)
	}
}

func (h *Host) stopLocked() error {
	if h.proc == nil {
		return nil
	}
	proc := h.proc
	lines := h.lines
	h.proc = nil
	h.lines = nil
	defer func() {
		go func() {
			for range lines {
			}
		}()
	}()

	_ = proc.Stdin().Close()
	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			h.logger.Debug("model host exited", logging.Error(err))
		}
		return nil
	case <-time.After(shutdownTimeout):
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("kill model host: %w", err)
		}
		<-done
		return nil
	}
}
