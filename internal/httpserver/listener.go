package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// Listener is the bound HTTP listener. Other services mount handlers on it.
type Listener struct {
	addr net.Addr

	mu     sync.RWMutex
	mounts map[string]http.Handler
}

func newListener(addr net.Addr) *Listener {
	return &Listener{
		addr:   addr,
		mounts: make(map[string]http.Handler),
	}
}

// Addr returns the bound address
func (l *Listener) Addr() string {
	return l.addr.String()
}

// Mount serves handler for requests to exactly path
func (l *Listener) Mount(path string, handler http.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mounts[path] = handler
}

// Unmount removes the handler at path
func (l *Listener) Unmount(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mounts, path)
}

// lookup matches path exactly or with one trailing slash
func (l *Listener) lookup(path string) (http.Handler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if h, ok := l.mounts[path]; ok {
		return h, true
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		h, ok := l.mounts[strings.TrimSuffix(path, "/")]
		return h, ok
	}
	return nil, false
}
