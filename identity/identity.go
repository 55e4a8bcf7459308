// Package identity supplies the current tenant to ledger views.
package identity

import "sync"

// Source reports who the current tenant is and when that changes.
type Source interface {
	// CurrentTenant returns the tenant ID, or false when nobody is signed in.
	CurrentTenant() (string, bool)

	// OnChange registers fn to run after every identity change. The returned
	// func removes the registration and is safe to call more than once.
	OnChange(fn func()) (cancel func())
}

// Static is a fixed identity. An empty Static means signed out.
type Static string

// CurrentTenant implements Source.
func (s Static) CurrentTenant() (string, bool) {
	return string(s), s != ""
}

// OnChange implements Source. A Static identity never changes.
func (Static) OnChange(func()) func() { return func() {} }

// Session is a mutable identity, such as a signed-in browser session. The
// zero value is a signed-out Session.
type Session struct {
	mu        sync.RWMutex
	tenantID  string
	listeners map[int]func()
	next      int
}

var (
	_ Source = Static("")
	_ Source = (*Session)(nil)
)

// NewSession returns a signed-out Session.
func NewSession() *Session {
	return &Session{listeners: make(map[int]func())}
}

// CurrentTenant implements Source.
func (s *Session) CurrentTenant() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantID, s.tenantID != ""
}

// Set signs tenantID in and notifies listeners if the identity changed.
func (s *Session) Set(tenantID string) {
	s.mu.Lock()
	if s.tenantID == tenantID {
		s.mu.Unlock()
		return
	}
	s.tenantID = tenantID
	listeners := s.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Clear signs the tenant out.
func (s *Session) Clear() { s.Set("") }

// OnChange implements Source.
func (s *Session) OnChange(fn func()) func() {
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[int]func())
	}
	key := s.next
	s.next++
	s.listeners[key] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, key)
			s.mu.Unlock()
		})
	}
}

// snapshot copies listeners; callers hold s.mu.
func (s *Session) snapshot() []func() {
	out := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
