//go:build whispercpp

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include "stdlib.h"
#include "include/whisper.h"
*/
import "C"

import (
	"errors"
	"log/slog"
	"strings"
	"time"
	"unsafe"

	"github.com/nupi-ai/whisper-binding/internal/capability"
)

// centisecond is the unit whisper uses for segment timestamps.
const centisecond = 10 * time.Millisecond

func NativeAvailable() bool { return true }

type nativeRuntime struct {
	log *slog.Logger
}

// NewNativeRuntime returns the cgo whisper.cpp runtime.
func NewNativeRuntime(logger *slog.Logger) (Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &nativeRuntime{log: logger.With("component", "engine.native")}, nil
}

func (r *nativeRuntime) Name() string { return "whisper.cpp" }

func (r *nativeRuntime) Backends() capability.Set { return capability.Compiled() }

func (r *nativeRuntime) SystemInfo() string {
	return strings.TrimSpace(C.GoString(C.whisper_print_system_info()))
}

func (r *nativeRuntime) Load(path string, params LoadParams) (Model, error) {
	if path == "" {
		return nil, errors.New("whisper: model path required")
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(params.Backend.GPU())
	cParams.flash_attn = C.bool(params.FlashAttention)
	cParams.gpu_device = C.int(params.GPUDevice)

	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		return nil, ErrInitFailed
	}
	r.log.Debug("native context initialised", "path", path, "backend", params.Backend.String())
	return &nativeModel{ctx: ctx}, nil
}

type nativeModel struct {
	ctx *C.struct_whisper_context
}

func (m *nativeModel) Free() {
	if m.ctx != nil {
		C.whisper_free(m.ctx)
		m.ctx = nil
	}
}

func (m *nativeModel) Full(samples []float32, params DecodeParams) (Output, error) {
	if m.ctx == nil {
		return Output{}, ErrCorrupted
	}
	if len(samples) == 0 {
		return Output{}, nil
	}

	state := C.whisper_init_state(m.ctx)
	if state == nil {
		return Output{}, ErrStateAlloc
	}
	defer C.whisper_free_state(state)

	cSamples := (*C.float)(unsafe.Pointer(&samples[0]))
	nSamples := C.int(len(samples))

	cParams := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	cParams.print_progress = C.bool(false)
	cParams.print_realtime = C.bool(false)
	cParams.print_timestamps = C.bool(false)
	cParams.print_special = C.bool(false)
	cParams.no_context = C.bool(true)
	cParams.single_segment = C.bool(false)
	cParams.translate = C.bool(params.Translate)
	cParams.temperature = C.float(params.Temperature)
	cParams.no_timestamps = C.bool(!params.Timestamps)
	if params.Threads > 0 {
		cParams.n_threads = C.int(params.Threads)
	}

	lang := strings.TrimSpace(params.Language)
	if lang == "" {
		lang = "auto"
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	// "auto" triggers detection before decoding; detect_language would stop after it.
	cParams.language = cLang
	cParams.detect_language = C.bool(false)

	if prompt := strings.TrimSpace(params.InitialPrompt); prompt != "" {
		cPrompt := C.CString(prompt)
		defer C.free(unsafe.Pointer(cPrompt))
		cParams.initial_prompt = cPrompt
	}

	if ret := C.whisper_full_with_state(m.ctx, state, cParams, cSamples, nSamples); ret != 0 {
		return Output{}, &StatusError{Call: "whisper_full_with_state", Code: int(ret)}
	}

	return collectOutput(state), nil
}

func collectOutput(state *C.struct_whisper_state) Output {
	var out Output
	if id := int(C.whisper_full_lang_id_from_state(state)); id >= 0 {
		out.Language = C.GoString(C.whisper_lang_str(C.int(id)))
	}

	count := int(C.whisper_full_n_segments_from_state(state))
	if count == 0 {
		return out
	}
	out.Segments = make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		text := strings.TrimSpace(C.GoString(C.whisper_full_get_segment_text_from_state(state, C.int(i))))
		if text == "" {
			continue
		}
		var (
			sumProb float64
			samples int
		)
		tokenCount := int(C.whisper_full_n_tokens_from_state(state, C.int(i)))
		for j := 0; j < tokenCount; j++ {
			tokenData := C.whisper_full_get_token_data_from_state(state, C.int(i), C.int(j))
			if tokenData.p > 0 {
				sumProb += float64(tokenData.p)
				samples++
			}
		}
		var confidence float32
		if samples > 0 {
			confidence = float32(sumProb / float64(samples))
		}
		out.Segments = append(out.Segments, Segment{
			Start:      time.Duration(C.whisper_full_get_segment_t0_from_state(state, C.int(i))) * centisecond,
			End:        time.Duration(C.whisper_full_get_segment_t1_from_state(state, C.int(i))) * centisecond,
			Text:       text,
			Confidence: confidence,
		})
	}
	return out
}
