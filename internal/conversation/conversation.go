// Package conversation holds per-conversation chat state for the lifetime of
// the process.
//
// State is a bounded LRU cache: when the configured capacity is exceeded the
// least recently used conversation is evicted wholesale. Conversations are
// never persisted; a restart starts fresh.
//
// Concurrent turns on the same conversation are serialized by the caller via
// Acquire, which hands out a per-conversation lock. Turns on different
// conversations proceed independently.
package conversation

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a human turn.
	RoleUser Role = "user"

	// RoleAssistant is a model turn.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultCapacity bounds the number of live conversations when the caller
// passes a non-positive capacity.
const DefaultCapacity = 1024

// entry is the cached state of one conversation.
type entry struct {
	id       string
	messages []Message
	docs     []string            // retrieved chunk texts, first-seen order
	docSeen  map[string]struct{} // exact-text dedup set for docs
	lock     *sync.Mutex         // serializes turns on this conversation
	elem     *list.Element       // position in the LRU list
}

// Manager is a bounded, process-lifetime conversation cache.
// Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	capacity int
	byID     map[string]*entry
	lru      *list.List // front = most recently used
}

// NewManager creates a Manager bounded to capacity conversations.
// capacity <= 0 falls back to DefaultCapacity.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity: capacity,
		byID:     make(map[string]*entry),
		lru:      list.New(),
	}
}

// GetOrCreate returns the conversation id, minting a new UUID when id is
// empty. The conversation is created if absent and marked recently used.
func (m *Manager) GetOrCreate(id string) string {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(id)
	return id
}

// Acquire locks the conversation for one turn and returns the release func.
// The conversation is created if it does not exist yet.
//
//	id = mgr.GetOrCreate(req.ConversationID)
//	release := mgr.Acquire(id)
//	defer release()
func (m *Manager) Acquire(id string) func() {
	m.mu.Lock()
	e := m.touch(id)
	lock := e.lock
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Append adds a message to the conversation's history.
func (m *Manager) Append(id string, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.touch(id)
	e.messages = append(e.messages, msg)
}

// History returns a copy of the conversation's ordered message sequence.
// Unknown ids yield an empty history, not an error.
func (m *Manager) History(id string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[id]
	if !ok {
		return nil
	}
	m.lru.MoveToFront(e.elem)
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Known reports whether the conversation exists without creating it.
func (m *Manager) Known(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

// ContextDocs returns a copy of the chunk texts retrieved for this
// conversation so far, in first-seen order.
func (m *Manager) ContextDocs(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[id]
	if !ok {
		return nil
	}
	m.lru.MoveToFront(e.elem)
	out := make([]string, len(e.docs))
	copy(out, e.docs)
	return out
}

// MergeContextDocs adds chunk texts not already present, preserving
// first-seen order. Merging the same text twice is a no-op.
func (m *Manager) MergeContextDocs(id string, texts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.touch(id)
	for _, text := range texts {
		if _, dup := e.docSeen[text]; dup {
			continue
		}
		e.docSeen[text] = struct{}{}
		e.docs = append(e.docs, text)
	}
}

// Len returns the number of live conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// touch returns the entry for id, creating it if needed, marking it most
// recently used, and evicting the LRU conversation when over capacity.
// Caller must hold m.mu.
func (m *Manager) touch(id string) *entry {
	if e, ok := m.byID[id]; ok {
		m.lru.MoveToFront(e.elem)
		return e
	}

	e := &entry{
		id:      id,
		docSeen: make(map[string]struct{}),
		lock:    &sync.Mutex{},
	}
	e.elem = m.lru.PushFront(e)
	m.byID[id] = e

	for m.lru.Len() > m.capacity {
		oldest := m.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*entry)
		m.lru.Remove(oldest)
		delete(m.byID, victim.id)
	}
	return e
}
