package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/internal/config"
	"github.com/aretw0/triage/internal/metrics"
	"github.com/aretw0/triage/pkg/adapters/amqp"
	"github.com/aretw0/triage/pkg/adapters/memory"
	"github.com/aretw0/triage/pkg/adapters/openai"
	"github.com/aretw0/triage/pkg/adapters/redis"
	"github.com/aretw0/triage/pkg/consumer"
	"github.com/aretw0/triage/pkg/dispatch"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/graph"
	"github.com/aretw0/triage/pkg/persistence/middleware"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/aretw0/triage/pkg/session"
	"github.com/openai/openai-go/option"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// lockPrefix namespaces distributed session locks.
const lockPrefix = "triage:"

// App holds the wired components shared by the CLI commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *triage.Engine
	Graph    *graph.Graph
	Sessions *session.Manager
	Metrics  *metrics.Metrics

	responders triage.ResponderFactory
	redis      *backend.Client
	ownsRedis  bool

	brokerOnce sync.Once
	broker     ports.Broker
	brokerErr  error
}

// BuildOption customizes Build.
type BuildOption func(*App)

// WithResponderFactory replaces the configured language model.
func WithResponderFactory(f triage.ResponderFactory) BuildOption {
	return func(a *App) { a.responders = f }
}

// WithRedisClient shares an existing Redis client instead of dialing cfg.Redis.
func WithRedisClient(c *backend.Client) BuildOption {
	return func(a *App) { a.redis = c }
}

// Build wires the engine, session store and metrics from cfg.
// Without an LLM API key the nodes answer with offline echo responders.
func Build(cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.responders == nil {
		a.responders = a.defaultResponders()
	}

	store, err := a.sessionStore()
	if err != nil {
		return nil, err
	}
	managerOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Session.Store == config.StoreRedis {
		managerOpts = append(managerOpts, session.WithLocker(redis.NewLocker(a.redisClient(), lockPrefix)))
	}
	a.Sessions = session.NewManager(store, managerOpts...)

	hooks := domain.ChainHooks(a.Metrics.Hooks(), createDebugHooks(logger))
	tracer := otel.Tracer(graph.InstrumentationName)

	a.Graph, err = triage.NewClinicGraph(triage.ClinicConfig{
		Responder:    a.responders,
		SearchAPIKey: cfg.Tools.SearchAPIKey,
		NodeOptions: []dispatch.Option{
			dispatch.WithTimeout(cfg.LLM.Timeout),
			dispatch.WithMaxToolRounds(cfg.Tools.MaxToolRounds),
			dispatch.WithHooks(hooks),
			dispatch.WithLogger(logger),
			dispatch.WithTracer(tracer),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building workflow graph: %w", err)
	}

	a.Engine = triage.New(a.Graph,
		triage.WithSessionManager(a.Sessions),
		triage.WithHistoryLimit(cfg.Session.HistoryLimit),
		triage.WithLogger(logger),
		triage.WithRunOptions(
			graph.WithMaxSteps(cfg.Graph.MaxSteps),
			graph.WithHooks(hooks),
			graph.WithTracer(tracer),
			graph.WithLogger(logger),
		),
	)

	if cfg.Offline() {
		logger.Warn("no LLM API key configured, using offline echo responders")
	}
	return a, nil
}

func (a *App) defaultResponders() triage.ResponderFactory {
	cfg := a.Config
	if cfg.Offline() {
		return func(node, _ string, _ []domain.Tool) ports.Responder {
			return memory.NewEchoResponder(node, node != triage.NodeGP)
		}
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.LLM.APIKey)}
	if cfg.LLM.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.LLM.BaseURL))
	}
	return func(node, prompt string, tools []domain.Tool) ports.Responder {
		return openai.New(reqOpts,
			openai.WithModel(cfg.LLM.Model),
			openai.WithSystemPrompt(prompt),
			openai.WithTools(tools...),
		)
	}
}

func (a *App) sessionStore() (ports.SessionStore, error) {
	cfg := a.Config.Session
	var store ports.SessionStore
	switch cfg.Store {
	case config.StoreMemory:
		store = memory.NewStore(memory.WithTTL(cfg.TTL), memory.WithMaxEntries(cfg.MaxEntries))
	case config.StoreRedis:
		store = redis.NewFromClient(a.redisClient(), redis.WithTTL(cfg.TTL))
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}

	var mws []middleware.Middleware
	if cfg.MaskPII {
		mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}

func (a *App) redisClient() *backend.Client {
	if a.redis == nil {
		a.redis = backend.NewClient(&backend.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		a.ownsRedis = true
	}
	return a.redis
}

// Broker returns the configured queue broker, creating it on first use.
func (a *App) Broker() (ports.Broker, error) {
	a.brokerOnce.Do(func() {
		cfg := a.Config.Broker
		switch cfg.Kind {
		case config.BrokerMemory:
			a.broker = memory.NewBroker(1024)
		case config.BrokerRedis:
			a.broker = redis.NewBroker(a.redisClient(), redis.WithBrokerLogger(a.Logger))
		case config.BrokerAMQP:
			a.broker = amqp.New(cfg.URL, amqp.WithDurable(cfg.Durable), amqp.WithLogger(a.Logger))
		default:
			a.brokerErr = fmt.Errorf("unknown broker %q", cfg.Kind)
		}
	})
	return a.broker, a.brokerErr
}

// Consumer builds a queue consumer over broker using the configured retry policy.
func (a *App) Consumer(broker ports.Broker) *consumer.Consumer {
	return consumer.New(broker,
		consumer.WithMaxAttempts(a.Config.Broker.MaxAttempts),
		consumer.WithReplies(a.Config.Broker.Replies),
		consumer.WithLogger(a.Logger),
		consumer.WithObserver(a.Metrics),
	)
}

// Close releases the broker and any Redis client created by Build.
func (a *App) Close() error {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	if a.ownsRedis && a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
