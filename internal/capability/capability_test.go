package capability

import (
	"errors"
	"testing"
)

func TestCompiledAlwaysHasCPU(t *testing.T) {
	s := Compiled()
	if !s.Has(CPU) {
		t.Fatalf("expected CPU in compiled set, got %s", s)
	}
	if s != Compiled() {
		t.Fatalf("Compiled() is not stable")
	}
	if s.Has(Auto) {
		t.Fatalf("Auto must never be a member")
	}
}

func TestParseBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{" CPU ", CPU, false},
		{"metal", Metal, false},
		{"cuda", CUDA, false},
		{"Vulkan", Vulkan, false},
		{"accelerate", Accelerate, false},
		{"tpu", Auto, true},
	}
	for _, tc := range tests {
		got, err := ParseBackend(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownBackend) {
				t.Fatalf("ParseBackend(%q) error = %v, want ErrUnknownBackend", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseBackend(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseBackend(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	s := Of(CPU, Vulkan)

	got, err := s.Select(Auto)
	if err != nil || got != Vulkan {
		t.Fatalf("Select(Auto) = %s, %v; want vulkan", got, err)
	}
	got, err = s.Select(CPU)
	if err != nil || got != CPU {
		t.Fatalf("Select(CPU) = %s, %v; want cpu", got, err)
	}
	if _, err := s.Select(CUDA); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Select(CUDA) error = %v, want ErrUnsupported", err)
	}
	if _, err := Set(0).Select(Auto); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("empty Select(Auto) error = %v, want ErrUnsupported", err)
	}
}

func TestSetFormatting(t *testing.T) {
	t.Parallel()

	s := Of(CPU, Metal, Accelerate)
	if got, want := s.String(), "metal,accelerate,cpu"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := Set(0).String(); got != "none" {
		t.Fatalf("empty String() = %q", got)
	}
	if !Metal.GPU() || CPU.GPU() || Accelerate.GPU() {
		t.Fatalf("unexpected GPU classification")
	}
}
