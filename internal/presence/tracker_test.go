package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

func TestTracker_MultiDevice(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.Register("u1", "c1"), "first connection")
	assert.False(t, tr.Register("u1", "c2"))
	assert.False(t, tr.Register("u1", "c2"), "duplicate register is not a new first")
	assert.True(t, tr.IsOnline("u1"))
	assert.Equal(t, 2, tr.ConnCount("u1"))

	assert.False(t, tr.Deregister("u1", "c1"))
	assert.True(t, tr.IsOnline("u1"))
	assert.True(t, tr.Deregister("u1", "c2"), "last connection")
	assert.False(t, tr.IsOnline("u1"))
	assert.Zero(t, tr.Len(), "empty entries are pruned")
}

func TestTracker_DeregisterUnknown(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Deregister("ghost", "c1"))

	tr.Register("u1", "c1")
	assert.False(t, tr.Deregister("u1", "nope"))
	assert.True(t, tr.IsOnline("u1"))
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker()
	tr.Register("b", "1")
	tr.Register("a", "2")
	tr.Register("a", "3")

	assert.Equal(t, []domain.UserID{"a", "b"}, tr.Snapshot())
}

// Ровно один Register видит first и ровно один Deregister видит wasLast.
func TestTracker_ConcurrentTransitions(t *testing.T) {
	tr := NewTracker()
	const n = 64

	var firsts, lasts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.Register("u", domain.ConnID(fmt.Sprint(i))) {
				firsts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), firsts.Load())
	assert.Equal(t, n, tr.ConnCount("u"))

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.Deregister("u", domain.ConnID(fmt.Sprint(i))) {
				lasts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), lasts.Load())
	assert.False(t, tr.IsOnline("u"))
}
