package approval

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AgentLimiter caps how fast each agent may file requests.
type AgentLimiter struct {
	mu     sync.Mutex
	limit  rate.Limit
	burst  int
	agents map[string]*agentEntry
}

type agentEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAgentLimiter allows perMinute requests per agent with the given burst.
// perMinute <= 0 disables limiting.
func NewAgentLimiter(perMinute, burst int) *AgentLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &AgentLimiter{limit: limit, burst: burst, agents: make(map[string]*agentEntry)}
}

func (l *AgentLimiter) Allow(agent string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.agents[agent]
	if !ok {
		e = &agentEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.agents[agent] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Prune forgets agents idle for longer than idle.
func (l *AgentLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for agent, e := range l.agents {
		if e.lastSeen.Before(cutoff) {
			delete(l.agents, agent)
			n++
		}
	}
	return n
}
