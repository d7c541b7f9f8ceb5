package service

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator выдаёт строго возрастающие ULID; время создания сообщения берётся из id.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    time.Time
	now     func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *IDGenerator) New() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	if t.Before(g.last) {
		t = g.last // часы ушли назад - не ломаем порядок
	}
	g.last = t

	id := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	return id.String(), ulid.Time(id.Time()).UTC()
}
