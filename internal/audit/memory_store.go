package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process store for development bootstrap (no
// DATABASE_URL) and for tests. Per-scope mutexes stand in for the advisory
// locks the Postgres store uses; the locking contract is identical.
type MemoryStore struct {
	mu          sync.Mutex
	chains      map[string][]*AuditEvent
	anchors     map[string][]*MerkleRoot
	eventsByID  map[string]*AuditEvent
	anchorsByID map[string]*MerkleRoot
	chainLocks  map[string]*sync.Mutex
	anchorLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains:      map[string][]*AuditEvent{},
		anchors:     map[string][]*MerkleRoot{},
		eventsByID:  map[string]*AuditEvent{},
		anchorsByID: map[string]*MerkleRoot{},
		chainLocks:  map[string]*sync.Mutex{},
		anchorLocks: map[string]*sync.Mutex{},
	}
}

func (m *MemoryStore) scopeLock(locks map[string]*sync.Mutex, scope string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := locks[scope]
	if !ok {
		l = &sync.Mutex{}
		locks[scope] = l
	}
	return l
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// AppendEvent implements Store.AppendEvent with a per-scope mutex held across
// the read-last, build, insert window.
func (m *MemoryStore) AppendEvent(ctx context.Context, scope string, fn func(last *AuditEvent) (*AuditEvent, error)) (*AuditEvent, error) {
	lock := m.scopeLock(m.chainLocks, scope)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	chain := m.chains[scope]
	m.mu.Unlock()

	var last *AuditEvent
	if len(chain) > 0 {
		last = copyEvent(chain[len(chain)-1])
	}

	ev, err := fn(last)
	if err != nil {
		return nil, err
	}

	stored := copyEvent(ev)
	m.mu.Lock()
	m.chains[scope] = append(m.chains[scope], stored)
	m.eventsByID[stored.ID] = stored
	m.mu.Unlock()
	return ev, nil
}

// GetEvent retrieves an event by id.
func (m *MemoryStore) GetEvent(ctx context.Context, id string) (*AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.eventsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(ev), nil
}

// ChainEvents returns the scope's chain in sequence order.
func (m *MemoryStore) ChainEvents(ctx context.Context, scope string) ([]*AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.chains[scope]
	out := make([]*AuditEvent, 0, len(chain))
	for _, ev := range chain {
		out = append(out, copyEvent(ev))
	}
	return out, nil
}

// EventsInRange returns the scope's events inside [firstSeq, lastSeq].
func (m *MemoryStore) EventsInRange(ctx context.Context, scope string, firstSeq, lastSeq int64) ([]*AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEvent
	for _, ev := range m.chains[scope] {
		if ev.ChainSequence >= firstSeq && ev.ChainSequence <= lastSeq {
			out = append(out, copyEvent(ev))
		}
	}
	return out, nil
}

// AnchorRange implements Store.AnchorRange under the scope's anchoring mutex.
func (m *MemoryStore) AnchorRange(ctx context.Context, scope string, limit int, fn func(events []*AuditEvent) (*MerkleRoot, error)) (*MerkleRoot, error) {
	lock := m.scopeLock(m.anchorLocks, scope)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	lastAnchored := int64(-1)
	for _, mr := range m.anchors[scope] {
		if mr.LastSequence > lastAnchored {
			lastAnchored = mr.LastSequence
		}
	}
	var events []*AuditEvent
	for _, ev := range m.chains[scope] {
		if ev.ChainSequence > lastAnchored {
			events = append(events, copyEvent(ev))
		}
		if len(events) == limit {
			break
		}
	}
	m.mu.Unlock()

	if len(events) == 0 {
		return nil, ErrNothingToAnchor
	}

	mr, err := fn(events)
	if err != nil {
		return nil, err
	}

	stored := copyAnchor(mr)
	m.mu.Lock()
	m.anchors[scope] = append(m.anchors[scope], stored)
	sort.Slice(m.anchors[scope], func(i, j int) bool {
		return m.anchors[scope][i].FirstSequence < m.anchors[scope][j].FirstSequence
	})
	m.anchorsByID[stored.ID] = stored
	m.mu.Unlock()
	return mr, nil
}

// GetAnchor retrieves an anchor by id.
func (m *MemoryStore) GetAnchor(ctx context.Context, id string) (*MerkleRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.anchorsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAnchor(mr), nil
}

// Anchors returns the scope's anchors in range order.
func (m *MemoryStore) Anchors(ctx context.Context, scope string) ([]*MerkleRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MerkleRoot, 0, len(m.anchors[scope]))
	for _, mr := range m.anchors[scope] {
		out = append(out, copyAnchor(mr))
	}
	return out, nil
}

// ScopesWithUnanchored lists scopes with events past their last anchor.
func (m *MemoryStore) ScopesWithUnanchored(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var scopes []string
	for scope, chain := range m.chains {
		if len(chain) == 0 {
			continue
		}
		lastAnchored := int64(-1)
		for _, mr := range m.anchors[scope] {
			if mr.LastSequence > lastAnchored {
				lastAnchored = mr.LastSequence
			}
		}
		if chain[len(chain)-1].ChainSequence > lastAnchored {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

func copyEvent(ev *AuditEvent) *AuditEvent {
	c := *ev
	return &c
}

func copyAnchor(mr *MerkleRoot) *MerkleRoot {
	c := *mr
	if mr.TSAToken != nil {
		c.TSAToken = append([]byte(nil), mr.TSAToken...)
	}
	return &c
}
