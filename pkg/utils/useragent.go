package utils

import (
	"math/rand"
	"sync"
)

// UserAgents rotates through a fixed list of browser user agents.
type UserAgents struct {
	mu     sync.Mutex
	agents []string
	rnd    *rand.Rand
}

func NewUserAgents(seed int64, agents ...string) *UserAgents {
	if len(agents) == 0 {
		agents = []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		}
	}
	return &UserAgents{agents: agents, rnd: rand.New(rand.NewSource(seed))}
}

// Next returns a random user agent string.
func (u *UserAgents) Next() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.agents[u.rnd.Intn(len(u.agents))]
}
