package membership

import "sync"

// ActiveLedgerCache remembers the last ledger each user switched to on this
// device. It is consulted before the profile so a failed profile write does
// not lose the user's choice.
type ActiveLedgerCache interface {
	Get(uid string) (string, bool)
	Set(uid, ledgerID string)
	Delete(uid string)
}

type noopCache struct{}

func (noopCache) Get(string) (string, bool) { return "", false }
func (noopCache) Set(string, string)        {}
func (noopCache) Delete(string)             {}

// MemoryCache is an ActiveLedgerCache held in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(uid string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[uid]
	return id, ok
}

func (c *MemoryCache) Set(uid, ledgerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uid] = ledgerID
}

func (c *MemoryCache) Delete(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uid)
}
