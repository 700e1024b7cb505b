package models

import (
	"context"
	"errors"
	"testing"

	"minutes/internal/device"
)

type fakeComponent struct {
	name    string
	loads   []device.Kind
	failErr error
	closed  int
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Load(_ context.Context, dev device.Kind) error {
	f.loads = append(f.loads, dev)
	return f.failErr
}

func (f *fakeComponent) Close() error {
	f.closed++
	return nil
}

type onlyCUDA struct{}

func (onlyCUDA) Available(_ context.Context, kind device.Kind) bool { return kind == device.CUDA }

func TestEnsureLoadsOnce(t *testing.T) {
	diarizer := &fakeComponent{name: "diarizer"}
	asr := &fakeComponent{name: "asr"}
	loader := NewLoader(nil, onlyCUDA{}, nil, diarizer, asr)

	if loader.State() != Unloaded {
		t.Fatalf("initial state = %v", loader.State())
	}
	for i := 0; i < 3; i++ {
		dev, err := loader.Ensure(context.Background())
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if dev != device.CUDA {
			t.Fatalf("device = %q, want cuda", dev)
		}
	}
	if len(diarizer.loads) != 1 || len(asr.loads) != 1 {
		t.Fatalf("expected one load each, got %d/%d", len(diarizer.loads), len(asr.loads))
	}
	if loader.State() != Loaded || loader.Device() != device.CUDA {
		t.Fatalf("unexpected state %v/%v", loader.State(), loader.Device())
	}
}

func TestEnsureFailureStaysUnloaded(t *testing.T) {
	boom := errors.New("gated repo")
	diarizer := &fakeComponent{name: "diarizer", failErr: boom}
	asr := &fakeComponent{name: "asr"}
	loader := NewLoader([]device.Kind{device.CPU}, nil, nil, diarizer, asr)

	if _, err := loader.Ensure(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if loader.State() != Unloaded {
		t.Fatal("loader must stay unloaded after a failure")
	}
	if len(asr.loads) != 0 {
		t.Fatal("later components must not load after a failure")
	}

	diarizer.failErr = nil
	if _, err := loader.Ensure(context.Background()); err != nil {
		t.Fatalf("retry Ensure: %v", err)
	}
	if len(diarizer.loads) != 2 {
		t.Fatalf("expected a second attempt, got %d loads", len(diarizer.loads))
	}
}

func TestCloseUnloadsAndClosesOnce(t *testing.T) {
	shared := &fakeComponent{name: "host"}
	loader := NewLoader(nil, nil, nil, shared, shared)
	if _, err := loader.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := loader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if shared.closed != 1 {
		t.Fatalf("expected shared component closed once, got %d", shared.closed)
	}
	if loader.State() != Unloaded || loader.Device() != "" {
		t.Fatal("expected unloaded after Close")
	}
}

func TestEnsureHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := NewLoader(nil, nil, nil, &fakeComponent{name: "x"})
	if _, err := loader.Ensure(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
