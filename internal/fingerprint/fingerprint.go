// Package fingerprint derives a best-effort, stable device identifier. It is
// not a security credential: it binds sessions to a device and keys the
// stored-record obfuscation.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"

	"github.com/BradenHooton/matcenter/internal/obfuscate"
	"github.com/BradenHooton/matcenter/internal/store"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

// Salt is appended to the joined components before hashing
const Salt = "matcenter_v1_2024"

// Compute hashes the environment without touching any cache
func Compute(env Environment) string {
	sum := sha256.Sum256([]byte(strings.Join(env.Components(), "|") + Salt))
	return hex.EncodeToString(sum[:])
}

// Generator returns the cached fingerprint, computing and persisting it once
type Generator struct {
	store  store.Store
	env    Environment
	logger *slog.Logger

	mu           sync.Mutex
	current      string
	computations int
}

// NewGenerator creates a Generator for the given environment
func NewGenerator(s store.Store, env Environment, logger *slog.Logger) *Generator {
	return &Generator{store: s, env: env, logger: logger}
}

// Get returns the device fingerprint. A cached value in the store wins; a
// failed cache write is logged and the computed value is still returned.
func (g *Generator) Get(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != "" {
		return g.current
	}

	cached, ok, err := g.store.Get(ctx, store.KeyFingerprint)
	if err != nil {
		g.logger.Warn("failed to read cached fingerprint", slog.Any("error", err))
	}
	if ok && cached != "" {
		g.current = cached
		return g.current
	}

	fp := Compute(g.env)
	g.computations++
	if err := g.store.Set(ctx, store.KeyFingerprint, fp); err != nil {
		g.logger.Warn("failed to cache fingerprint", slog.Any("error", err))
	}
	g.current = fp
	g.logger.Info("device fingerprint generated", slog.String("fingerprint", pkglogger.ShortFingerprint(fp)))
	return fp
}

// Current returns the fingerprint if Get has already resolved it, else ""
func (g *Generator) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Key is the obfuscation key for stored records: the fingerprint once known,
// the fallback constant before that.
func (g *Generator) Key() string {
	if fp := g.Current(); fp != "" {
		return fp
	}
	return obfuscate.FallbackKey
}

// ClientID is the truncated fingerprint sent to the data source
func (g *Generator) ClientID() string {
	fp := g.Current()
	if len(fp) < 16 {
		return "unknown"
	}
	return fp[:16]
}

// Computations reports how many times the hash was actually computed
func (g *Generator) Computations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.computations
}
