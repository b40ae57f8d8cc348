package cache

import "sync"

// InstanceIndex maps an instanceable map to the transport entries that
// spawn whenever an instance of it is created.
type InstanceIndex struct {
	mu      sync.RWMutex
	entries map[uint32][]uint32
}

func NewInstanceIndex() *InstanceIndex {
	return &InstanceIndex{
		entries: make(map[uint32][]uint32),
	}
}

// Get returns a copy of the entries registered for the map.
func (c *InstanceIndex) Get(mapID uint32) []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]uint32(nil), c.entries[mapID]...)
}

// Add registers an entry for the map. Duplicates are ignored.
func (c *InstanceIndex) Add(mapID, entry uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries[mapID] {
		if e == entry {
			return
		}
	}
	c.entries[mapID] = append(c.entries[mapID], entry)
}

func (c *InstanceIndex) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint32][]uint32)
}
