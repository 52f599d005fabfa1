// Package id provides identifier generation for sessions, windows and messages.
//
// Sessions and windows use prefixed ULIDs so they sort by creation time and
// read well in logs (sess_*, win_*). A window that had to invent its own
// identity because the host did not hand one over gets the fallback-win_*
// prefix, which makes host-side ID failures easy to spot. Message IDs are
// random UUIDs: they only need to be unique, never ordered.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	SessionPrefix        = "sess"
	WindowPrefix         = "win"
	FallbackWindowPrefix = "fallback-win"
	HubPrefix            = "hub"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic entropy,
// so IDs minted within the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed Generators
// ============================================================================

// NewSessionID generates a session identifier shared by all windows of a run.
func NewSessionID() string {
	return Default().GenerateWithPrefix(SessionPrefix)
}

// NewWindowID generates a host-style window identifier.
func NewWindowID() string {
	return Default().GenerateWithPrefix(WindowPrefix)
}

// NewFallbackWindowID generates the identity a window gives itself when the
// host did not supply one.
func NewFallbackWindowID() string {
	return Default().GenerateWithPrefix(FallbackWindowPrefix)
}

// NewHubID generates an identifier for a hub-side sender.
func NewHubID() string {
	return Default().GenerateWithPrefix(HubPrefix)
}

// NewMessageID generates a fresh envelope message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// ============================================================================
// Inspection
// ============================================================================

// IsFallbackWindowID reports whether a window identity was self-generated.
func IsFallbackWindowID(s string) bool {
	return strings.HasPrefix(s, FallbackWindowPrefix+"_")
}

// IsValid checks if an ID string is a valid ULID
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Split separates a prefixed ID into prefix and ULID parts.
func Split(s string) (prefix, raw string, ok bool) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Timestamp extracts the creation time of a prefixed or bare ULID.
func Timestamp(s string) (time.Time, error) {
	if _, raw, ok := Split(s); ok {
		s = raw
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
