package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is an in-process, thread-safe Gateway implementation. It
// is primarily useful for tests and single-process deployments that do not
// need durable persistence.
type MemoryGateway struct {
	mu      sync.RWMutex
	entries []*Entry
	byRef   map[string]*Entry
}

// NewMemoryGateway creates an empty MemoryGateway. Submissions confirm
// immediately; SubmitPending exists for simulating confirmation lag.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{byRef: make(map[string]*Entry)}
}

// Submit implements Gateway.
func (g *MemoryGateway) Submit(_ context.Context, owner string, payload []byte, intents ...TransferIntent) (string, error) {
	ref, err := g.append(owner, payload, intents, true)
	if err != nil {
		return "", err
	}
	return ref, nil
}

// SubmitPending appends an entry that is not yet confirmed. It is fetchable
// by ref but omitted from ListRecent until Confirm is called, mirroring a
// real ledger's confirmation lag.
func (g *MemoryGateway) SubmitPending(owner string, payload []byte) (string, error) {
	return g.append(owner, payload, nil, false)
}

// Confirm marks a pending entry as confirmed.
func (g *MemoryGateway) Confirm(ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.byRef[ref]
	if !ok {
		return fmt.Errorf("unknown entry ref %q", ref)
	}
	e.Confirmed = true
	return nil
}

func (g *MemoryGateway) append(owner string, payload []byte, intents []TransferIntent, confirmed bool) (string, error) {
	if len(payload) == 0 && len(intents) == 0 {
		return "", &SubmissionError{Cause: fmt.Errorf("empty submission")}
	}
	if owner == "" {
		return "", &SubmissionError{Cause: fmt.Errorf("no owner identity")}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prevHash := GenesisHash
	if n := len(g.entries); n > 0 {
		prevHash = g.entries[n-1].Hash
	}

	entry := &Entry{
		Index:     len(g.entries),
		Ref:       uuid.NewString(),
		Owner:     owner,
		Payload:   append([]byte(nil), payload...),
		Transfers: intents,
		Confirmed: confirmed,
		CreatedAt: time.Now().UTC(),
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	g.entries = append(g.entries, entry)
	g.byRef[entry.Ref] = entry
	return entry.Ref, nil
}

// Fetch implements Gateway. Absence is (nil, nil), never an error.
func (g *MemoryGateway) Fetch(_ context.Context, entryRef string) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.byRef[entryRef]
	if !ok || len(e.Payload) == 0 {
		return nil, nil
	}
	return append([]byte(nil), e.Payload...), nil
}

// ListRecent implements Gateway. Unconfirmed entries are omitted. Entries
// the owner received a transfer in count as participation.
func (g *MemoryGateway) ListRecent(_ context.Context, owner string, limit int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var refs []string
	for i := len(g.entries) - 1; i >= 0 && len(refs) < limit; i-- {
		e := g.entries[i]
		if e.Confirmed && participates(e, owner) {
			refs = append(refs, e.Ref)
		}
	}
	return refs, nil
}

func participates(e *Entry, owner string) bool {
	if e.Owner == owner {
		return true
	}
	for _, t := range e.Transfers {
		if t.To == owner {
			return true
		}
	}
	return false
}

// CapabilityVersion implements Gateway.
func (g *MemoryGateway) CapabilityVersion(_ context.Context) (string, error) {
	return "memory/1", nil
}

// Entry returns the full entry stored under ref, for introspection.
func (g *MemoryGateway) Entry(ref string) (*Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.byRef[ref]
	return e, ok
}

// Len returns the total number of entries, confirmed or not.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Verify walks the whole chain and checks hash consistency. Returns nil
// if the chain is intact.
func (g *MemoryGateway) Verify(_ context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	prevHash := GenesisHash
	for _, e := range g.entries {
		if e.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at index %d", e.Index)
		}
		if e.Hash != hashEntry(e) {
			return fmt.Errorf("entry %d has invalid hash", e.Index)
		}
		prevHash = e.Hash
	}
	return nil
}
