package dispatch

import (
	"context"
	"sync"

	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/workspace"
)

// sandboxCache creates each scenario's sandbox once per invocation; later
// units of the same scenario reuse the first outcome, error included.
type sandboxCache struct {
	manager *workspace.Manager

	mu      sync.Mutex
	results map[string]*sandboxResult
}

type sandboxResult struct {
	once sync.Once
	sb   workspace.Sandbox
	err  error
}

func newSandboxCache(manager *workspace.Manager) *sandboxCache {
	return &sandboxCache{manager: manager, results: make(map[string]*sandboxResult)}
}

func (c *sandboxCache) ensure(ctx context.Context, sc *scenario.Scenario) (workspace.Sandbox, error) {
	c.mu.Lock()
	res, ok := c.results[sc.Name]
	if !ok {
		res = new(sandboxResult)
		c.results[sc.Name] = res
	}
	c.mu.Unlock()

	res.once.Do(func() {
		if _, err := c.manager.Create(ctx, sc, false); err != nil {
			res.err = err
			return
		}
		res.sb = c.manager.Sandbox(sc)
	})
	return res.sb, res.err
}
