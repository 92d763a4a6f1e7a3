package connection

import (
	"sync"
	"time"
)

// Pairing holds the current pairing challenge. It is set while the session
// is unpaired and cleared once the connection opens.
type Pairing struct {
	mu        sync.RWMutex
	code      string
	updatedAt time.Time
}

// Set stores a new challenge.
func (p *Pairing) Set(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
	p.updatedAt = time.Now()
}

// Clear removes the challenge.
func (p *Pairing) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = ""
	p.updatedAt = time.Now()
}

// Get returns the current challenge, if any.
func (p *Pairing) Get() (string, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.code, p.updatedAt, p.code != ""
}
