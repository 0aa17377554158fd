// Package urid provides the identifier space: a bidirectional mapping between
// URI names and small integer identifiers (URIDs).
//
// URIDs are process-local. They are never put on the wire; every key and
// object kind is resolved back to its name before it leaves the process.
package urid

import "sync"

// URID identifies one URI inside this process. Zero means "no URID".
type URID uint32

// Mapper maps names to URIDs and back. Implementations must be safe for
// concurrent use, since one identifier space is shared by all bridge
// instances in the process.
type Mapper interface {
	Map(uri string) URID
	Unmap(id URID) (string, bool)
}

// Map is the in-memory Mapper. The zero value is not usable; call New.
type Map struct {
	mu    sync.RWMutex
	ids   map[string]URID
	names []string // index = URID-1
}

func New() *Map {
	return &Map{ids: make(map[string]URID)}
}

// Map returns the URID for uri, allocating the next free one on first use.
func (m *Map) Map(uri string) URID {
	m.mu.RLock()
	id, ok := m.ids[uri]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[uri]; ok {
		return id
	}
	m.names = append(m.names, uri)
	id = URID(len(m.names))
	m.ids[uri] = id
	return id
}

// Unmap returns the name for id, or false when id was never handed out.
func (m *Map) Unmap(id URID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == 0 || int(id) > len(m.names) {
		return "", false
	}
	return m.names[id-1], true
}
