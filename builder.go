package authsession

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/metrics"
)

// Builder assembles a Manager. A Builder can be built once.
type Builder struct {
	config Config

	store    CredentialStore
	identity IdentityClient

	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore sets the store the manager restores from and persists to.
// Usually a *credstore.Store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithIdentityClient sets the identity service client. Usually an *identity.Client.
func (b *Builder) WithIdentityClient(client IdentityClient) *Builder {
	b.identity = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source used for expiry checks and event stamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a Manager in StatusRestoring.
// Call [Manager.Restore] at startup; the first Login or Register restores
// implicitly if it has not run.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrInvalidConfig)
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrInvalidConfig)
	}
	if b.identity == nil {
		return nil, fmt.Errorf("%w: identity client required", ErrInvalidConfig)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		cfg:      cfg,
		store:    b.store,
		identity: b.identity,
		logger:   logger,
		now:      now,
		sem:      semaphore.NewWeighted(1),
		hub:      newHub(logger),
		metrics:  metrics.New(cfg.Metrics.Enabled, cfg.Metrics.EnableLatencyHistograms),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	m.current.Store(&Session{Status: StatusRestoring})

	b.built = true
	return m, nil
}
