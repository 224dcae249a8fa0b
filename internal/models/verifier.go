package models

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type verifyKey struct {
	variant string
	path    string
	size    int64
	modTime int64
}

// Verifier checks artefacts against a Registry and remembers files that
// already passed, keyed by path, size and modification time, so repeated
// context creation does not re-hash large models.
type Verifier struct {
	registry Registry
	cache    *expirable.LRU[verifyKey, struct{}]
}

// NewVerifier returns a Verifier remembering up to size results for ttl.
func NewVerifier(registry Registry, size int, ttl time.Duration) *Verifier {
	if size <= 0 {
		size = 16
	}
	return &Verifier{
		registry: registry,
		cache:    expirable.NewLRU[verifyKey, struct{}](size, nil, ttl),
	}
}

// Registry returns the registry the verifier checks against.
func (v *Verifier) Registry() Registry {
	return v.registry
}

// Verify behaves like Registry.Verify with caching of successful results.
func (v *Verifier) Verify(variant, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("models: stat %s: %w", path, err)
	}
	key := verifyKey{variant: variant, path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if v.cache.Contains(key) {
		return nil
	}
	if err := v.registry.Verify(variant, path); err != nil {
		return err
	}
	v.cache.Add(key, struct{}{})
	return nil
}

// Cached reports how many verification results are remembered.
func (v *Verifier) Cached() int {
	return v.cache.Len()
}
