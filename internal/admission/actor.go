// Package admission implements the per-key admission decision actor: a
// serialized state machine that scores each request against short-horizon
// counters and a decayed threat score, and returns one of four verdicts.
package admission

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Action is the verdict returned for one request.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionChallenge Action = "challenge"
	ActionTarpit    Action = "tarpit"
	ActionBlock     Action = "block"
)

// ValidAction reports whether s is one of the four verdict actions.
func ValidAction(s string) bool {
	switch Action(s) {
	case ActionAllow, ActionChallenge, ActionTarpit, ActionBlock:
		return true
	}
	return false
}

// Request carries the features extracted from one inbound request.
type Request struct {
	IP        string
	ASN       uint
	UserAgent string
	Path      string
	Method    string

	// Trusted marks a request carrying a valid clearance from a previously
	// solved challenge. It bypasses the thresholds entirely.
	Trusted bool
}

// Verdict is the actor's decision plus the state it was derived from.
type Verdict struct {
	Action Action  `json:"action"`
	Score  float64 `json:"score"`
	Hits   int     `json:"hits"`
}

// keyState is the private state of one identity key. Access is serialized by
// its mutex; no other component reads or writes it.
type keyState struct {
	mu sync.Mutex

	hits          int
	windowStart   time.Time
	score         float64
	lastUserAgent string
	expiresAt     time.Time
}

// Registry owns every live actor state, keyed by ip:asn. States are created
// lazily on first evaluation and expire after the idle TTL.
type Registry struct {
	mu     sync.Mutex
	states map[string]*keyState

	hitWindow time.Duration
	ttl       time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewRegistry builds a registry with the given tumbling hit window and idle
// expiration for actor state.
func NewRegistry(hitWindow, ttl time.Duration) *Registry {
	return &Registry{
		states:    make(map[string]*keyState),
		hitWindow: hitWindow,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Key derives the identity key scoping one actor instance.
func Key(ip string, asn uint) string {
	return fmt.Sprintf("%s:%d", ip, asn)
}

// Evaluate scores one request and returns the verdict. All evaluations for
// the same identity key are strictly serialized; different keys never block
// each other beyond the registry map lookup.
func (r *Registry) Evaluate(req Request) Verdict {
	st := r.state(Key(req.IP, req.ASN))

	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.now()

	// An expired state behaves exactly like a fresh one.
	if !st.expiresAt.IsZero() && now.After(st.expiresAt) {
		st.hits = 0
		st.windowStart = time.Time{}
		st.score = 0
		st.lastUserAgent = ""
	}

	if st.windowStart.IsZero() || now.Sub(st.windowStart) > r.hitWindow {
		st.hits = 0
		st.windowStart = now
	}
	st.hits++

	delta := scoreDelta(req, st)

	st.lastUserAgent = req.UserAgent
	st.score = math.Max(0, st.score+delta-1)
	st.expiresAt = now.Add(r.ttl)

	v := Verdict{Score: st.score, Hits: st.hits}

	if req.Trusted {
		v.Action = ActionAllow
		return v
	}

	switch {
	case st.hits > 120 || st.score > 12:
		v.Action = ActionBlock
	case st.hits > 70 || st.score > 8:
		v.Action = ActionTarpit
	case st.hits > 30 || st.score > 5:
		v.Action = ActionChallenge
	default:
		v.Action = ActionAllow
	}

	return v
}

// scoreDelta computes the additive heuristic contribution for one request.
// Every clause is independent; several may fire at once. Caller holds st.mu.
func scoreDelta(req Request, st *keyState) float64 {
	var delta float64

	apiPath := strings.HasPrefix(req.Path, "/api/")
	if apiPath && st.hits > 15 {
		delta += 2
	}
	if !apiPath && st.hits > 35 {
		delta += 1
	}

	if req.UserAgent == "" || req.UserAgent == "-" {
		delta += 1
	}

	if mutating(req.Method) && st.hits > 5 {
		delta += 2
	}

	// A flapping user agent on the same key is a strong bot signal.
	if st.lastUserAgent != "" && req.UserAgent != st.lastUserAgent {
		delta += 1
	}

	return delta
}

func mutating(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return false
	}
	return true
}

// state returns the live state for key, creating it lazily.
func (r *Registry) state(key string) *keyState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[key]
	if !ok {
		st = &keyState{}
		r.states[key] = st
	}
	return st
}

// Len returns the number of live actor states, expired ones included until
// the next sweep.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Sweep drops every state past its idle expiration and returns how many were
// removed. Intended to run periodically from a scheduler.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, st := range r.states {
		st.mu.Lock()
		expired := !st.expiresAt.IsZero() && now.After(st.expiresAt)
		st.mu.Unlock()

		if expired {
			delete(r.states, key)
			removed++
		}
	}
	return removed
}
