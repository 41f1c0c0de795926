package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	clientIDHeader = "X-Client-ID"
	staleAfter     = 10 * time.Minute
	pruneAbove     = 1024
)

type clientState struct {
	limiter  *rate.Limiter
	busy     bool
	lastSeen time.Time
}

// clientLimiter hands out a token bucket and a single calculation slot per
// client.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientState
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{limit: limit, burst: burst, clients: make(map[string]*clientState)}
}

func (l *clientLimiter) state(id string) *clientState {
	now := time.Now()
	st, ok := l.clients[id]
	if !ok {
		if len(l.clients) >= pruneAbove {
			for key, c := range l.clients {
				if !c.busy && now.Sub(c.lastSeen) > staleAfter {
					delete(l.clients, key)
				}
			}
		}
		st = &clientState{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[id] = st
	}
	st.lastSeen = now
	return st
}

// Allow spends one token for id.
func (l *clientLimiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(id).limiter.Allow()
}

// Acquire takes the calculation slot for id. It fails while another
// calculation from the same client is running.
func (l *clientLimiter) Acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(id)
	if st.busy {
		return false
	}
	st.busy = true
	return true
}

func (l *clientLimiter) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.clients[id]; ok {
		st.busy = false
	}
}

// clientID prefers the X-Client-ID header and falls back to the remote host.
func clientID(r *http.Request) string {
	if id := r.Header.Get(clientIDHeader); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
