// Package ticket generates the short human-facing codes printed on maintenance tickets.
package ticket

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
)

// DefaultMaxAttempts bounds the retry loop when a Reserver is configured.
const DefaultMaxAttempts = 5

// Reserver claims a code so no other ticket receives it.
type Reserver interface {
	// Reserve returns false when the code is already taken.
	Reserve(ctx context.Context, code string) (bool, error)
}

// Generator produces codes like "B417": a month bucket letter plus three digits.
type Generator struct {
	clock       clock.Clock
	reserver    Reserver
	maxAttempts int

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithReserver makes the generator check codes for uniqueness.
func WithReserver(r Reserver) Option {
	return func(g *Generator) { g.reserver = r }
}

// WithMaxAttempts sets how many candidates are tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRand replaces the random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// NewGenerator creates a generator on the given clock.
func NewGenerator(c clock.Clock, opts ...Option) *Generator {
	if c == nil {
		c = clock.Real{}
	}
	g := &Generator{
		clock:       c,
		maxAttempts: DefaultMaxAttempts,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BucketLetter maps a month to its four-month bucket: Jan-Apr A, May-Aug B, Sep-Dec C.
func BucketLetter(m time.Month) string {
	return string("ABC"[(int(m)-1)/4])
}

func (g *Generator) candidate() string {
	g.mu.Lock()
	digits := 100 + g.rnd.Intn(900)
	g.mu.Unlock()
	return fmt.Sprintf("%s%d", BucketLetter(g.clock.Now().Month()), digits)
}

// Generate returns a new code. Without a reserver codes are not checked for
// collisions and should be treated as display labels.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	if g.reserver == nil {
		return g.candidate(), nil
	}
	for i := 0; i < g.maxAttempts; i++ {
		code := g.candidate()
		ok, err := g.reserver.Reserve(ctx, code)
		if err != nil {
			return "", apperr.Internal("failed to reserve ticket code", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", apperr.Conflict(fmt.Sprintf("no free ticket code after %d attempts", g.maxAttempts))
}
