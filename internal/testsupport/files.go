package testsupport

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"minutes/internal/media/waveform"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteSineWAV writes a mono 16-bit WAV holding a 440 Hz tone.
func WriteSineWAV(t testing.TB, path string, seconds float64, sampleRate int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	n := int(seconds * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	if err := waveform.WriteMonoWAV(path, samples, sampleRate); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
}

// WriteFloatWAV writes a mono 32-bit IEEE float WAV (format tag 3) holding a
// 440 Hz tone, the layout field recorders and DAWs commonly export.
func WriteFloatWAV(t testing.TB, path string, seconds float64, sampleRate int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	n := int(seconds * float64(sampleRate))
	dataSize := uint32(n * 4)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	// chunk size, WAVE_FORMAT_IEEE_FLOAT, channels, rate, byte rate, block
	// align, bits per sample
	fields := []any{uint32(16), uint16(3), uint16(1), uint32(sampleRate), uint32(sampleRate * 4), uint16(4), uint16(32)}
	for _, field := range fields {
		_ = binary.Write(&buf, binary.LittleEndian, field)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	for i := range n {
		sample := float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		_ = binary.Write(&buf, binary.LittleEndian, sample)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write float wav %s: %v", path, err)
	}
}
