//go:build whispercpp

package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nupi-ai/whisper-binding/internal/capability"
)

func TestNativeModelTranscribesFixture(t *testing.T) {
	model := openTestNativeModel(t)
	samples, sampleRate := loadTestAudio(t)
	if sampleRate != SampleRate {
		t.Fatalf("unexpected sample rate: got %d, want %d", sampleRate, SampleRate)
	}

	out, err := model.Full(samples, DecodeParams{Language: "en", Timestamps: true})
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	if len(out.Segments) == 0 {
		t.Fatal("expected at least one segment")
	}

	var parts []string
	for _, seg := range out.Segments {
		if seg.End < seg.Start {
			t.Fatalf("segment ends before it starts: %+v", seg)
		}
		parts = append(parts, seg.Text)
	}
	lower := strings.ToLower(strings.Join(parts, " "))
	for _, phrase := range []string{"hi nupi", "show me what you can do"} {
		if !strings.Contains(lower, phrase) {
			t.Fatalf("transcript %q missing phrase %q", lower, phrase)
		}
	}
}

func TestNativeModelSilence(t *testing.T) {
	model := openTestNativeModel(t)
	out, err := model.Full(make([]float32, SampleRate), DecodeParams{Language: "en"})
	if err != nil {
		t.Fatalf("Full(silence): %v", err)
	}
	for _, seg := range out.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" && !strings.EqualFold(text, "[BLANK_AUDIO]") {
			t.Logf("silence produced segment %q", text)
		}
	}
}

func TestNativeModelUseAfterFree(t *testing.T) {
	rt, err := NewNativeRuntime(nil)
	if err != nil {
		t.Fatalf("NewNativeRuntime: %v", err)
	}
	modelPath := locateFixture(t, filepath.Join("testdata", "models", "ggml-base.en.bin"), "")
	model, err := rt.Load(modelPath, LoadParams{Backend: capability.CPU})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	model.Free()
	if _, err := model.Full([]float32{0}, DecodeParams{}); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestNativeRuntimeRejectsBadModel(t *testing.T) {
	rt, err := NewNativeRuntime(nil)
	if err != nil {
		t.Fatalf("NewNativeRuntime: %v", err)
	}
	path := filepath.Join(t.TempDir(), "broken.bin")
	if err := os.WriteFile(path, []byte("lmggbroken"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := rt.Load(path, LoadParams{Backend: capability.CPU}); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if _, err := rt.Load("", LoadParams{}); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func openTestNativeModel(tb testing.TB) Model {
	tb.Helper()

	modelRel := filepath.Join("testdata", "models", "ggml-base.en.bin")
	modelPath := locateFixture(tb, modelRel, "download ggml-base.en.bin from the whisper.cpp model repository into testdata/models")
	rt, err := NewNativeRuntime(nil)
	if err != nil {
		tb.Fatalf("NewNativeRuntime: %v", err)
	}
	model, err := rt.Load(modelPath, LoadParams{Backend: capability.CPU})
	if err != nil {
		tb.Fatalf("Load: %v", err)
	}
	tb.Cleanup(model.Free)
	return model
}

func loadTestAudio(tb testing.TB) ([]float32, int) {
	tb.Helper()
	audioPath := locateFixture(tb, filepath.Join("testdata", "test.wav"), "")
	audio, sampleRate, err := loadPCM16LE(audioPath)
	if err != nil {
		tb.Fatalf("loadPCM16LE: %v", err)
	}
	samples := make([]float32, len(audio)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(audio[2*i:]))) / 32768.0
	}
	return samples, sampleRate
}

func locateFixture(tb testing.TB, relativePath string, suggestion string) string {
	tb.Helper()

	wd, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}

	visited := make([]string, 0, 4)
	for {
		candidate := filepath.Join(wd, relativePath)
		visited = append(visited, candidate)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			tb.Fatalf("stat %s: %v", candidate, err)
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			msg := fmt.Sprintf("fixture %s not found (checked: %s)", relativePath, strings.Join(visited, ", "))
			if suggestion != "" {
				msg = fmt.Sprintf("%s; %s", msg, suggestion)
			}
			tb.Skip(msg)
		}
		wd = parent
	}
}

func loadPCM16LE(path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid wav header")
	}

	offset := 12
	var (
		sampleRate    int
		audioFormat   uint16
		channels      uint16
		bitsPerSample uint16
		audioData     []byte
	)

	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		chunkStart := offset + 8
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(data) {
			return nil, 0, fmt.Errorf("chunk %s out of range", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too small")
			}
			audioFormat = binary.LittleEndian.Uint16(data[chunkStart : chunkStart+2])
			channels = binary.LittleEndian.Uint16(data[chunkStart+2 : chunkStart+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[chunkStart+14 : chunkStart+16])
		case "data":
			audioData = data[chunkStart:chunkEnd]
		}
		// Chunks are word aligned.
		offset = chunkEnd
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if audioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format %d", audioFormat)
	}
	if channels != 1 {
		return nil, 0, fmt.Errorf("expected mono audio, got %d channels", channels)
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("expected 16-bit PCM, got %d", bitsPerSample)
	}
	if len(audioData) == 0 {
		return nil, 0, fmt.Errorf("no data chunk found")
	}
	return audioData, sampleRate, nil
}
