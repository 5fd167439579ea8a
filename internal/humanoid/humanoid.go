// -- internal/humanoid/humanoid.go --
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// Standard Perlin parameters.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = int32(3)
)

// Humanoid turns discrete pointer and keyboard requests into paced,
// continuous input on an Executor. It is not safe for concurrent use beyond
// its internal noise state; the agent loop serializes calls.
type Humanoid struct {
	cfg      config.HumanoidConfig
	executor Executor
	logger   *zap.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
	// noiseTime advances across moves so consecutive trajectories do not repeat the same drift.
	noiseTime float64
	// bounds, when set, keeps intermediate samples on the display.
	bounds schemas.Size
}

// New creates a new Humanoid instance with the given configuration.
func New(cfg config.HumanoidConfig, executor Executor, logger *zap.Logger) *Humanoid {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.StepsPerSecond <= 0 {
		cfg.StepsPerSecond = 60
	}

	return &Humanoid{
		cfg:      cfg,
		executor: executor,
		logger:   logger.Named("humanoid"),
		rng:      rand.New(rand.NewSource(seed)),
		noiseX:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
		noiseY:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+1), // Offset seed for Y noise
	}
}

// SetBounds confines planned trajectories to a display of the given size.
func (h *Humanoid) SetBounds(size schemas.Size) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bounds = size
}
