package device

import (
	"context"
	"errors"
	"testing"
)

type fakeProber map[Kind]bool

func (f fakeProber) Available(_ context.Context, kind Kind) bool { return f[kind] }

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		priority  []Kind
		available fakeProber
		want      Kind
	}{
		{name: "cuda first", priority: DefaultPriority, available: fakeProber{CUDA: true, MPS: true}, want: CUDA},
		{name: "mps when no cuda", priority: DefaultPriority, available: fakeProber{MPS: true}, want: MPS},
		{name: "cpu fallback", priority: DefaultPriority, available: fakeProber{}, want: CPU},
		{name: "custom order", priority: []Kind{MPS, CUDA}, available: fakeProber{CUDA: true, MPS: true}, want: MPS},
		{name: "cpu before gpu", priority: []Kind{CPU, CUDA}, available: fakeProber{CUDA: true}, want: CPU},
		{name: "empty priority", priority: nil, available: fakeProber{CUDA: true}, want: CPU},
		{name: "unknown kind", priority: []Kind{"tpu"}, available: fakeProber{"tpu": true}, want: CPU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(context.Background(), tt.priority, tt.available); got != tt.want {
				t.Fatalf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectNilProber(t *testing.T) {
	if got := Select(context.Background(), DefaultPriority, nil); got != CPU {
		t.Fatalf("Select() = %q, want cpu", got)
	}
}

func TestParsePriority(t *testing.T) {
	kinds, err := ParsePriority([]string{" CUDA", "cpu"})
	if err != nil {
		t.Fatalf("ParsePriority: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != CUDA || kinds[1] != CPU {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	if _, err := ParsePriority([]string{"rocm"}); err == nil {
		t.Fatal("expected error for unknown device")
	}
	defaults, err := ParsePriority(nil)
	if err != nil || len(defaults) != 3 {
		t.Fatalf("expected default priority, got %v %v", defaults, err)
	}
}

func TestSystemProberCUDA(t *testing.T) {
	gpuList := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("GPU 0: NVIDIA GeForce RTX 4090 (UUID: GPU-abc)\n"), nil
	}
	empty := func(context.Context, string, ...string) ([]byte, error) { return []byte("\n"), nil }
	missing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("executable file not found")
	}

	if !NewSystemProber().WithCommandRunner(gpuList).Available(context.Background(), CUDA) {
		t.Fatal("expected cuda with a listed GPU")
	}
	if NewSystemProber().WithCommandRunner(empty).Available(context.Background(), CUDA) {
		t.Fatal("expected no cuda without GPU lines")
	}
	if NewSystemProber().WithCommandRunner(missing).Available(context.Background(), CUDA) {
		t.Fatal("expected no cuda when nvidia-smi is missing")
	}
}

func TestSystemProberMPS(t *testing.T) {
	if !NewSystemProber().WithPlatform("darwin", "arm64").Available(context.Background(), MPS) {
		t.Fatal("expected mps on darwin/arm64")
	}
	if NewSystemProber().WithPlatform("linux", "arm64").Available(context.Background(), MPS) {
		t.Fatal("expected no mps on linux")
	}
	if !NewSystemProber().Available(context.Background(), CPU) {
		t.Fatal("cpu must always be available")
	}
}
