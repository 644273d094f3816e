package finauth

import (
	"errors"
	"fmt"
	"log/slog"

	internalaudit "github.com/rfol/finauth/internal/audit"
	"github.com/rfol/finauth/internal/limiters"
	"github.com/rfol/finauth/internal/rate"
	"github.com/rfol/finauth/internal/stores"
	"github.com/rfol/finauth/jwt"
	"github.com/rfol/finauth/password"
	"github.com/rfol/finauth/pii"
	"github.com/rfol/finauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once and call Build; a Builder
// cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	notifier     ResetNotifier
	logger       *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, reset tokens and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is
// set. Without one, events are written through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Any
// configuration problem is reported as ErrConfiguration.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, configErr("redis client required")
	}
	if b.userProvider == nil {
		return nil, configErr("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "finauth"))

	// -------- CREDENTIAL VAULT --------
	vault, err := password.NewVault(cfg.vaultConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// -------- PII --------
	protector, err := pii.New(cfg.PII.HashKey, cfg.PII.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.JWT.Secret),
		TTL:    cfg.JWT.AccessTTL,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// -------- REDIS-BACKED STORES --------
	store := session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.TTL,
		cfg.Session.ScanBatch,
	)

	auditSink := b.auditSink
	if auditSink == nil {
		auditSink = internalaudit.NewSlogSink(logger)
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		users:        b.userProvider,
		notifier:     b.notifier,
		vault:        vault,
		pii:          protector,
		jwtManager:   jm,
		sessionStore: store,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
		MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
		Cooldown:         cfg.RateLimit.Cooldown,
	})
	engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.TokenTTL)
	engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
		Window:      cfg.PasswordReset.RateWindow,
		MaxRequests: cfg.PasswordReset.MaxRequests,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flowDeps = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
