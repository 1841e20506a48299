package memory

import (
	"sort"
	"sync"
)

// Presence is the transient online map of the application session. It is
// rebuilt from a full snapshot on every (re)connect to the presence room.
type Presence struct {
	mu       sync.RWMutex
	online   map[string]bool
	watchers []func(userID string, online bool)
}

// NewPresence returns an empty presence map.
func NewPresence() *Presence {
	return &Presence{online: make(map[string]bool)}
}

// OnChange registers fn for every individual transition, including those
// implied by Replace.
func (p *Presence) OnChange(fn func(userID string, online bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers = append(p.watchers, fn)
}

// Replace discards the map and marks exactly userIDs online.
func (p *Presence) Replace(userIDs []string) {
	next := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			next[id] = true
		}
	}

	p.mu.Lock()
	var changes []string
	for id := range p.online {
		if !next[id] {
			changes = append(changes, id)
		}
	}
	for id := range next {
		if !p.online[id] {
			changes = append(changes, id)
		}
	}
	p.online = next
	watchers := append([]func(string, bool){}, p.watchers...)
	p.mu.Unlock()

	for _, id := range changes {
		for _, fn := range watchers {
			fn(id, next[id])
		}
	}
}

// Set merges one transition.
func (p *Presence) Set(userID string, online bool) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	if p.online[userID] == online {
		p.mu.Unlock()
		return
	}
	if online {
		p.online[userID] = true
	} else {
		delete(p.online, userID)
	}
	watchers := append([]func(string, bool){}, p.watchers...)
	p.mu.Unlock()

	for _, fn := range watchers {
		fn(userID, online)
	}
}

// Online reports whether userID is currently online.
func (p *Presence) Online(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[userID]
}

// Snapshot returns the online user ids, sorted.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
