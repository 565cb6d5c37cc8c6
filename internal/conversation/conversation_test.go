package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetOrCreate(t *testing.T) {
	t.Parallel()

	m := NewManager(10)

	t.Run("mints uuid when id empty", func(t *testing.T) {
		t.Parallel()
		id := m.GetOrCreate("")
		assert.NotEmpty(t, id)
		assert.True(t, m.Known(id))
	})

	t.Run("preserves provided id", func(t *testing.T) {
		t.Parallel()
		id := m.GetOrCreate("conv-a")
		assert.Equal(t, "conv-a", id)
	})
}

func TestManager_AppendAndHistory(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	id := m.GetOrCreate("")

	m.Append(id, Message{Role: RoleUser, Content: "hello"})
	m.Append(id, Message{Role: RoleAssistant, Content: "hi there"})

	history := m.History(id)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, RoleAssistant, history[1].Role)

	// Returned slice is a copy; mutating it must not corrupt state.
	history[0].Content = "mutated"
	assert.Equal(t, "hello", m.History(id)[0].Content)
}

func TestManager_HistoryUnknownID(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	assert.Empty(t, m.History("never-seen"))
	assert.False(t, m.Known("never-seen"))
}

func TestManager_MergeContextDocs(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	id := m.GetOrCreate("")

	m.MergeContextDocs(id, []string{"alpha", "beta"})
	m.MergeContextDocs(id, []string{"beta", "gamma", "alpha"})

	// Idempotent by exact text, first-seen order preserved.
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, m.ContextDocs(id))

	m.MergeContextDocs(id, []string{"alpha", "beta", "gamma"})
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, m.ContextDocs(id))
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	m := NewManager(3)
	for i := range 3 {
		m.Append(fmt.Sprintf("conv-%d", i), Message{Role: RoleUser, Content: "x"})
	}
	require.Equal(t, 3, m.Len())

	// Touch conv-0 so conv-1 becomes the eviction candidate.
	m.History("conv-0")

	m.Append("conv-3", Message{Role: RoleUser, Content: "y"})

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Known("conv-0"))
	assert.False(t, m.Known("conv-1"), "least recently used conversation should be evicted")
	assert.True(t, m.Known("conv-2"))
	assert.True(t, m.Known("conv-3"))
}

func TestManager_AcquireSerializesTurns(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	id := m.GetOrCreate("")

	// Interleave appends from many goroutines; each turn appends a
	// user+assistant pair under the conversation lock. If serialization
	// works, pairs never interleave.
	const turns = 50
	var wg sync.WaitGroup
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire(id)
			defer release()
			m.Append(id, Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i)})
			m.Append(id, Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)})
		}()
	}
	wg.Wait()

	history := m.History(id)
	require.Len(t, history, turns*2)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, RoleUser, history[i].Role)
		assert.Equal(t, RoleAssistant, history[i+1].Role)
		// The assistant turn answers the user turn it is paired with.
		assert.Equal(t, history[i].Content[1:], history[i+1].Content[1:])
	}
}

func TestManager_DifferentConversationsIndependent(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	a := m.GetOrCreate("a")
	b := m.GetOrCreate("b")

	releaseA := m.Acquire(a)
	defer releaseA()

	// Holding a's lock must not block b.
	done := make(chan struct{})
	go func() {
		release := m.Acquire(b)
		release()
		close(done)
	}()
	<-done
}

func TestManager_CapacityFallback(t *testing.T) {
	t.Parallel()

	m := NewManager(0)
	for i := range 10 {
		m.GetOrCreate(fmt.Sprintf("c%d", i))
	}
	assert.Equal(t, 10, m.Len())
}
