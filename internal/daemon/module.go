package daemon

import (
	"context"
	"os"
	"time"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/live"
	"github.com/matheus3301/wpprelay/internal/lock"
	"github.com/matheus3301/wpprelay/internal/logging"
	"github.com/matheus3301/wpprelay/internal/outbox"
	"github.com/matheus3301/wpprelay/internal/paths"
	"github.com/matheus3301/wpprelay/internal/status"
	"github.com/matheus3301/wpprelay/internal/store"
	intsync "github.com/matheus3301/wpprelay/internal/sync"
	"github.com/matheus3301/wpprelay/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	healthInterval = 5 * time.Second
	outboxInterval = 2 * time.Second
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance   string
	ConfigPath string
	DataDir    string // optional override for testing; empty = use default
	ListenAddr string // optional override; empty = use config
}

func (p Params) dataDir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return paths.Dir(p.Instance)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideQueue,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCorpus,
			provideSyncEngine,
			provideHub,
			provideSender,
			provideChatService,
			provideMessageService,
			provideSyncService,
			provideHealthService,
			provideAPIServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	return cfg, cfg.Validate()
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	logPath := cfg.LogPath
	if logPath == "" {
		logPath = paths.LogPath(p.dataDir())
	}
	return logging.New(logPath, p.Instance)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideQueue() *bus.Queue {
	return bus.NewQueue()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir := p.dataDir()
	logger.Info("acquiring instance lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// The lock parameter orders the store after the instance lock.
func provideStore(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (store.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.ConnectTimeout.Duration+time.Second)
	defer cancel()
	return OpenStore(ctx, cfg.Store, p.dataDir(), logger)
}

func provideCorpus(cfg *config.Config, logger *zap.Logger) *wa.Corpus {
	return wa.NewCorpus(cfg.PayloadsDir, logger)
}

func provideSyncEngine(s store.Store, corpus *wa.Corpus, m *status.Machine, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(s, corpus, m, logger)
}

func provideHub(b *bus.Bus, q *bus.Queue, logger *zap.Logger) *live.Hub {
	return live.NewHub(b, q, logger)
}

func provideSender(engine *intsync.Engine, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(engine, outboxInterval, logger)
}

func provideChatService(s store.Store, engine *intsync.Engine, corpus *wa.Corpus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(s, engine, corpus, logger)
}

func provideMessageService(engine *intsync.Engine, hub *live.Hub, sender *outbox.Sender, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(engine, hub, sender, logger)
}

func provideSyncService(engine *intsync.Engine, hub *live.Hub, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(engine, hub, logger)
}

func provideHealthService(s store.Store, m *status.Machine) *api.HealthService {
	return api.NewHealthService(s, m)
}

func provideAPIServer(
	cfg *config.Config,
	logger *zap.Logger,
	chats *api.ChatService,
	messages *api.MessageService,
	syncSvc *api.SyncService,
	health *api.HealthService,
	hub *live.Hub,
) *api.Server {
	return &api.Server{
		Chats:     chats,
		Messages:  messages,
		Sync:      syncSvc,
		Health:    health,
		Hub:       hub,
		Keepalive: cfg.Events.Keepalive.Duration,
		Logger:    logger,
	}
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	st store.Store,
	engine *intsync.Engine,
	sender *outbox.Sender,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Log store health transitions.
			changes, unsub := b.Subscribe(status.EventStatusChanged, 16)
			go func() {
				defer unsub()
				for {
					select {
					case evt, ok := <-changes:
						if !ok {
							return
						}
						c, isChange := evt.Payload.(status.StatusChange)
						if !isChange {
							continue
						}
						logger.Info("store status changed", zap.String("from", string(c.From)), zap.String("to", string(c.To)))
						if c.To == status.Ready {
							go bootstrap(ctx, engine, logger)
						}
					case <-ctx.Done():
						return
					}
				}
			}()

			go machine.Watch(ctx, st, healthInterval)
			sender.Start(ctx)

			go bootstrap(ctx, engine, logger)

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			srv.Stop(stopCtx)
			cancel()
			sender.Stop()
			if err := st.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// bootstrap fills an empty store from the payload corpus. It runs at start
// and again whenever the store becomes reachable.
func bootstrap(ctx context.Context, engine *intsync.Engine, logger *zap.Logger) {
	if ran, err := engine.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed", zap.Error(err))
	} else if ran {
		logger.Info("bootstrap complete")
	}
}
