package escrow

import "sync"

// Resolver maps a display handle to a stable numeric account id, when the
// binding is known.
type Resolver interface {
	Lookup(handle string) (int64, bool)
}

// Directory is a concurrent handle-to-id registry. Handles are an unstable
// way to name a party (they can be reassigned or mistyped), so the transport
// feeds every user it observes into the directory; once a seller's handle is
// bound to a stable id, authorization compares ids instead of raw handles.
// Until a binding exists, raw-handle comparison remains the fallback.
type Directory struct {
	mu       sync.RWMutex
	byHandle map[string]int64
}

func NewDirectory() *Directory {
	return &Directory{byHandle: make(map[string]int64)}
}

// Observe records that handle currently belongs to the account id. Later
// observations overwrite earlier ones, which is exactly what a handle
// reassignment looks like from the transport.
func (d *Directory) Observe(handle string, id int64) {
	handle = NormalizeHandle(handle)
	if handle == "" || id == 0 {
		return
	}
	d.mu.Lock()
	d.byHandle[handle] = id
	d.mu.Unlock()
}

// Lookup returns the account id bound to handle, if any.
func (d *Directory) Lookup(handle string) (int64, bool) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return 0, false
	}
	d.mu.RLock()
	id, ok := d.byHandle[handle]
	d.mu.RUnlock()
	return id, ok
}
