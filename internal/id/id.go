// Package id provides centralized trace and span identifier generation.
//
// Identifiers follow the W3C trace-context sizes: 128-bit trace ids and
// 64-bit span ids, drawn from a cryptographically secure entropy source.
// Generation is safe for concurrent use.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// Generator produces random trace and span identifiers.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// NewTraceID returns a new random 128-bit trace identifier.
// The result is never all zeros.
func (g *Generator) NewTraceID() [16]byte {
	var tid [16]byte
	g.read(tid[:])
	return tid
}

// NewSpanID returns a new random 64-bit span identifier.
// The result is never all zeros.
func (g *Generator) NewSpanID() [8]byte {
	var sid [8]byte
	g.read(sid[:])
	return sid
}

func (g *Generator) read(b []byte) {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	for {
		if _, err := io.ReadFull(g.entropy, b); err != nil {
			// If the entropy source fails we must not fall back to weak
			// randomness: colliding ids corrupt traces silently.
			panic(fmt.Sprintf("id: entropy source failed: %v", err))
		}
		if !allZero(b) {
			return
		}
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
