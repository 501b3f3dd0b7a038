// Package app wires the bridge together: platform adapter, auth gate,
// broker backend, inbound gateway and outbound dispatcher, all running
// under one supervisor.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"ratatoskr/internal/auth"
	"ratatoskr/internal/broker"
	"ratatoskr/internal/config"
	"ratatoskr/internal/dispatch"
	"ratatoskr/internal/gateway"
	rtsup "ratatoskr/internal/runtime/supervisor"
	kit "ratatoskr/internal/transport"
	telegram "ratatoskr/internal/transport/telegram/adapter"
	"ratatoskr/internal/users"
	"ratatoskr/internal/wire"
	"ratatoskr/pkg/logx"
)

type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service
	sup  *rtsup.Supervisor

	adapter kit.Adapter
	store   users.Store
	gate    *auth.Gate
	brk     broker.Broker
	gw      *gateway.Gateway
	disp    *dispatch.Dispatcher

	updates chan kit.Update
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := cfg.LongPollTimeout()
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	store, err := users.Open(users.Config{
		Driver: cfg.Users.Driver,
		Path:   cfg.Users.Path,
	}, log.With(logx.String("comp", "users")))
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	gate := auth.NewGate(entries, store, log.With(logx.String("comp", "auth")))
	if gate.Open() {
		log.Warn("user list is empty, authorization disabled")
	} else {
		log.Info("user list loaded", logx.Int("users", len(entries)))
	}

	brk, err := openBroker(ctx, cfg, gate, log)
	if err != nil {
		return nil, err
	}

	botID, botUsername := ad.BotIdentity()
	source := wire.Source{Platform: wire.Platform, BotUsername: botUsername}
	if botID != 0 {
		source.BotID = &botID
	}

	gw := gateway.New(gate, brk, ad, source, log.With(logx.String("comp", "gateway")))

	var status dispatch.StatusPublisher
	if cfg.Dispatch.StatusEvents {
		if sp, ok := brk.(dispatch.StatusPublisher); ok {
			status = sp
		} else {
			log.Warn("status events enabled but backend has no status channel",
				logx.String("backend", cfg.Broker.Backend))
		}
	}
	disp := dispatch.New(ad, status, cfg.Dispatch.RatePerSec,
		log.With(logx.String("comp", "dispatch")))

	return &App{
		cfg:     cfg,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		store:   store,
		gate:    gate,
		brk:     brk,
		gw:      gw,
		disp:    disp,
		updates: make(chan kit.Update, 256),
	}, nil
}

func openBroker(ctx context.Context, cfg *config.Config, gate *auth.Gate, log logx.Logger) (broker.Broker, error) {
	blog := log.With(logx.String("comp", "broker"))
	switch cfg.Broker.Backend {
	case config.BackendKafka:
		return broker.NewKafka(ctx, broker.KafkaConfig{
			Brokers:     cfg.Broker.Kafka.Brokers,
			GroupID:     cfg.Broker.Kafka.GroupID,
			InTopic:     cfg.InTopic(),
			OutTopic:    cfg.OutTopic(),
			StatusTopic: cfg.StatusTopic(),
		}, blog)
	case config.BackendMQTT:
		return broker.NewMQTT(broker.MQTTConfig{
			BrokerURL:   cfg.Broker.MQTT.URL,
			ClientID:    cfg.Broker.MQTT.ClientID,
			InTopic:     cfg.InTopic(),
			OutTopic:    cfg.OutTopic(),
			StatusTopic: cfg.StatusTopic(),
		}, blog)
	case config.BackendPipe:
		return broker.NewPipe(cfg.Broker.Pipe.Path, blog), nil
	case config.BackendUserPipe:
		return broker.NewUserPipes(gate, blog), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Broker.Backend)
	}
}

// Start brings the bridge up. It returns once everything is running;
// use Wait to block until shutdown or a fatal error.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	stream, err := a.brk.Subscribe(a.sup.Context())
	if err != nil {
		return fmt.Errorf("subscribe broker: %w", err)
	}

	a.sup.Go("gateway", func(c context.Context) error {
		return a.gw.Run(c, a.updates)
	})
	a.sup.Go("dispatch", func(c context.Context) error {
		return a.disp.Run(c, stream)
	})

	if a.cfg.Users.Watch {
		w := users.NewWatcher(a.store, a.cfg.Users.Path, a.gate.Replace,
			a.log.With(logx.String("comp", "users.watch")))
		a.sup.GoRestart("users.watch", w.Run,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	a.log.Info("bridge started",
		logx.String("backend", a.cfg.Broker.Backend),
		logx.String("in_topic", a.cfg.InTopic()),
		logx.String("out_topic", a.cfg.OutTopic()))
	return nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
	}
	_ = a.adapter.Stop(ctx)
	if c, ok := a.brk.(io.Closer); ok {
		_ = c.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}

	var err error
	if a.sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err = a.sup.Wait(wctx)
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
