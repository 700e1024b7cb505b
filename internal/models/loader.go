package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"minutes/internal/device"
	"minutes/internal/logging"
)

// State is the loader lifecycle state.
type State int

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}

// Component is a model that must be loaded onto a device before use.
type Component interface {
	Name() string
	Load(ctx context.Context, dev device.Kind) error
}

// Loader loads the diarization and recognition models once per process.
type Loader struct {
	priority   []device.Kind
	prober     device.Prober
	components []Component
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	device device.Kind
}

// NewLoader returns an unloaded loader for components.
func NewLoader(priority []device.Kind, prober device.Prober, logger *slog.Logger, components ...Component) *Loader {
	if len(priority) == 0 {
		priority = device.DefaultPriority
	}
	return &Loader{
		priority:   priority,
		prober:     prober,
		components: components,
		logger:     logging.NewComponentLogger(logger, "models"),
	}
}

// Ensure loads every component on the selected device the first time it is
// called. Later calls return immediately. When a component fails the loader
// stays unloaded and the error is returned unchanged.
func (l *Loader) Ensure(ctx context.Context) (device.Kind, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Loaded {
		return l.device, nil
	}

	dev := device.Select(ctx, l.priority, l.prober)
	l.logger.Info("loading models", logging.String("device", dev.String()), logging.Int("components", len(l.components)))

	for _, component := range l.components {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		start := time.Now()
		if err := component.Load(ctx, dev); err != nil {
			logging.ErrorWithContext(l.logger, "model load failed", "model_load_failed",
				logging.String("model", component.Name()),
				logging.String("device", dev.String()),
				logging.String(logging.FieldErrorHint, "check the model host log and Hugging Face access"),
				logging.Error(err),
			)
			return "", err
		}
		l.logger.Info("model loaded",
			logging.String("model", component.Name()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}

	l.state = Loaded
	l.device = dev
	return dev, nil
}

// State reports the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Device returns the selected device, or "" while unloaded.
func (l *Loader) Device() device.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.device
}

// Close releases components that hold resources and returns the loader to
// the unloaded state.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	seen := make(map[io.Closer]struct{}, len(l.components))
	for _, component := range l.components {
		closer, ok := component.(io.Closer)
		if !ok {
			continue
		}
		if _, dup := seen[closer]; dup {
			continue
		}
		seen[closer] = struct{}{}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", component.Name(), err))
		}
	}
	l.state = Unloaded
	l.device = ""
	return errors.Join(errs...)
}
