package tokenauth

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/arcticfox/tokenauth/jwt"
	"github.com/arcticfox/tokenauth/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Authority]. Construction is allocation-only until
// Build, which validates the configuration and wires the subsystems.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	clock        Clock

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSecretKey sets the symmetric signing key without replacing the rest of
// the configuration.
func (b *Builder) WithSecretKey(key []byte) *Builder {
	b.config.SecretKey = key
	return b
}

// WithRedis sets the Redis client backing the token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the identity resolver consulted on verification.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the sink receiving audit events when auditing is
// enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects a time source, letting tests drive expiry
// deterministically. Defaults to time.Now.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and returns a ready [Authority]. A
// Builder is single-use.
func (b *Builder) Build() (*Authority, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider is required")
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret: b.config.SecretKey,
		Issuer: b.config.Issuer,
		Leeway: b.config.Leeway,
	})
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Authority{
		config:       b.config,
		store:        token.NewStore(b.redis, b.config.RedisPrefix),
		jwtManager:   jwtManager,
		userProvider: b.userProvider,
		clock:        clock,
		logger:       logger,
		audit:        newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:      NewMetrics(b.config.Metrics),
	}, nil
}
