package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/lemos-dev/lemos/internal/app"
	"github.com/lemos-dev/lemos/internal/config"
	"github.com/lemos-dev/lemos/internal/constellation"
	"github.com/lemos-dev/lemos/internal/editor"
	"github.com/lemos-dev/lemos/internal/printer"
	"github.com/lemos-dev/lemos/internal/reward"
	"github.com/lemos-dev/lemos/internal/ritual"
	"github.com/lemos-dev/lemos/internal/session"
	"github.com/lemos-dev/lemos/internal/tracker"
	"github.com/lemos-dev/lemos/internal/unifiedlog"
	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// persistenceQueueSize bounds how many pending writes can back up before
// module code blocks on Enqueue.
const persistenceQueueSize = 256

// runtime holds one fully wired LemOS instance. Commands build it, use the
// module handles they need, and release it with shutdown.
type runtime struct {
	cfg   *config.Config
	store *storage.RedisStore
	queue *storage.Queue
	app   *app.App

	tracker        *tracker.Manager
	rituals        *ritual.Engine
	constellations *constellation.Registry
	rewards        *reward.Engine
	logger         *unifiedlog.Logger
	sessions       *session.Timer
	editor         *editor.Editor
}

// newRuntime loads the config and wires every module onto a shared bus.
//
// Construction order matters: the context tracker must exist before the
// modules that read it, and the unified logger subscribes last so its
// entries see context already updated by earlier handlers.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"Failed to load config",
			err.Error(),
			[]string{
				fmt.Sprintf("Run 'lemos init' to create a starter config at %s", configPath),
				"Pass --config to point at an existing config file",
			},
		)
	}

	// With the redis section omitted, the instance runs without persistence:
	// every module accepts a nil store and keeps state in memory only.
	var store storage.Store
	var queue *storage.Queue
	rt := &runtime{cfg: cfg}

	if cfg.Redis != nil {
		redisOpts := &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		redisStore, err := storage.NewRedisStore(redisOpts, cfg.Instance)
		if err != nil {
			return nil, err
		}
		if err := redisStore.Ping(ctx); err != nil {
			redisStore.Close()
			return nil, printer.Error(
				"Cannot connect to Redis",
				fmt.Sprintf("LemOS persists its state to Redis at %s, but the connection failed: %v", redisOpts.Addr, err),
				[]string{
					"Start Redis locally: docker run -d -p 6379:6379 redis:7-alpine",
					"Check the redis.addr setting in your config",
					"Remove the redis section to run without persistence",
				},
			)
		}

		store = redisStore
		queue = storage.NewQueue(persistenceQueueSize)
		rt.store = redisStore
		rt.queue = queue
	} else {
		printer.Warning("No redis section in config; running without persistence")
	}

	bus := core.NewBus()
	container := app.New(bus)
	rt.app = container

	trackerOpts := tracker.Options{}
	if cfg.Context != nil {
		if cfg.Context.IdleTimeout != nil {
			trackerOpts.IdleTimeout = time.Duration(*cfg.Context.IdleTimeout)
		}
		trackerOpts.SweepSchedule = cfg.Context.SweepSchedule
	}
	rt.tracker, err = tracker.NewManager(bus, store, queue, trackerOpts)
	if err != nil {
		rt.shutdown()
		return nil, err
	}

	rt.rituals = ritual.NewEngine(bus, cfg.Rituals, store, queue, rt.tracker)
	rt.constellations = constellation.NewRegistry(bus, store, queue)

	rewardOpts := reward.Options{}
	if cfg.Rewards != nil {
		if cfg.Rewards.EnergyPerTick != nil {
			rewardOpts.EnergyPerTick = *cfg.Rewards.EnergyPerTick
		}
		if len(cfg.Rewards.Rituals) > 0 {
			rewardOpts.Rewards = make(map[string]reward.Reward, len(cfg.Rewards.Rituals))
			for id, r := range cfg.Rewards.Rituals {
				rewardOpts.Rewards[id] = reward.Reward{Energy: r.Energy, XP: r.XP}
			}
		}
	}
	rt.rewards = reward.NewEngine(bus, store, queue, rewardOpts)

	rt.sessions = session.NewTimer(bus, session.Options{})
	rt.editor = editor.NewEditor(bus, store)
	rt.logger = unifiedlog.NewLogger(bus, store, queue, rt.tracker)

	for _, module := range []struct {
		id       string
		instance any
	}{
		{"tracker", rt.tracker},
		{"ritual", rt.rituals},
		{"constellation", rt.constellations},
		{"reward", rt.rewards},
		{"session", rt.sessions},
		{"editor", rt.editor},
		{"unifiedlog", rt.logger},
	} {
		if err := container.Register(module.id, module.instance); err != nil {
			rt.shutdown()
			return nil, err
		}
	}

	return rt, nil
}

// shutdown stops every module, drains pending writes and closes the store.
func (rt *runtime) shutdown() {
	if rt.app != nil {
		rt.app.Shutdown()
	}
	if rt.queue != nil {
		rt.queue.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}
