// Package id generates the identifiers that tie runs, channels and requests
// together in logs and on the wire.
//
// IDs are prefixed ULIDs ("run_01J...") so they sort by creation time and
// are recognizable at a glance.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one execution session
type RunID string

// ChannelID identifies a host channel
type ChannelID string

// RequestID identifies an inbound HTTP request
type RequestID string

const (
	RunPrefix     = "run"
	ChannelPrefix = "chan"
	RequestPrefix = "req"
)

// Generator produces ULIDs from a shared entropy source
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
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

// NewGenerator creates a generator backed by crypto/rand, using monotonic
// entropy so IDs minted within one millisecond still sort in order
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy, for tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a "prefix_ULID" string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRunID generates a run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewChannelID generates a channel ID
func NewChannelID() ChannelID {
	return ChannelID(Default().GenerateWithPrefix(ChannelPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id RunID) String() string     { return string(id) }
func (id ChannelID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// Parse splits a prefixed ID and parses its ULID part
func Parse(id string) (prefix string, u ulid.ULID, err error) {
	prefix, raw, ok := strings.Cut(id, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", id)
	}
	u, err = ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", id, err)
	}
	return prefix, u, nil
}

// IsValid reports whether id is a well-formed prefixed ULID
func IsValid(id string) bool {
	_, _, err := Parse(id)
	return err == nil
}

// Timestamp extracts the creation time of a prefixed ID
func Timestamp(id string) (time.Time, error) {
	_, u, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
