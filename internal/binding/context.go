package binding

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/buildinfo"
	"github.com/nupi-ai/whisper-binding/internal/capability"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/models"
)

type state int32

const (
	stateUninitialized state = iota
	stateLive
	stateDestroyed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateLive:
		return "live"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// noCopy trips go vet's copylocks check when a Context is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Context is a loaded model plus its native runtime state. It is only ever
// handed out by pointer and must be released with Binding.DestroyContext.
type Context struct {
	noCopy noCopy

	id      uint64
	model   models.Handle
	backend capability.Backend
	threads int
	created time.Time

	state atomic.Int32

	// mu is held for the duration of every native call and for release.
	mu     sync.Mutex
	native engine.Model
}

// ID is a process-unique sequence number, useful in logs.
func (c *Context) ID() uint64 { return c.id }

// Model returns the artefact the context was created from.
func (c *Context) Model() models.Handle { return c.model }

// Backend returns the backend selected at creation.
func (c *Context) Backend() capability.Backend { return c.backend }

// Threads returns the default decoder thread count for this context.
func (c *Context) Threads() int { return c.threads }

// CreatedAt returns the creation time.
func (c *Context) CreatedAt() time.Time { return c.created }

// Live reports whether the context can still run inference.
func (c *Context) Live() bool {
	return c != nil && state(c.state.Load()) == stateLive
}

// VersionInfo returns the process-wide build version.
func (c *Context) VersionInfo() buildinfo.VersionInfo {
	return buildinfo.Version()
}

func (c *Context) stateName() string {
	return state(c.state.Load()).String()
}
