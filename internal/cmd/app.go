package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/config"
	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/metrics"
	"github.com/felixgeelhaar/switchboard/internal/route"
	"github.com/felixgeelhaar/switchboard/internal/session"
	"github.com/felixgeelhaar/switchboard/internal/telemetry"
	"github.com/felixgeelhaar/switchboard/internal/version"
)

// app is everything one command invocation works with.
type app struct {
	ctx      context.Context
	cc       *CommandContext
	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    credential.Store
	client   *api.Client
	manager  *session.Manager

	authorizer *route.Authorizer
	span       trace.Span
	cleanup    func()
}

const consoleLogName = "console.log"

var (
	activeMu sync.Mutex
	active   *app
)

func setActive(a *app) {
	activeMu.Lock()
	defer activeMu.Unlock()
	active = a
}

func takeActive() *app {
	activeMu.Lock()
	defer activeMu.Unlock()
	a := active
	active = nil
	return a
}

// appFrom returns the app opened for the running command.
func appFrom(cmd *cobra.Command) *app {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

func newApp(cmd *cobra.Command) (*app, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(cc)
	if err != nil {
		return nil, err
	}

	logOut, closeLog := logWriter(cmd, cfg)
	logger, flush := setupObservability(cmd.Context(), cfg, logOut)
	cleanup := func() {
		flush()
		closeLog()
	}
	registry, m := metrics.NewRegistry()

	store, err := openStore(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	client := api.NewClient(cfg.API.BaseURL, store,
		api.WithTimeout(cfg.API.Timeout.Std()),
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithUserAgent(version.GetInfo().UserAgent()),
	)
	manager := session.NewManager(client, store,
		session.WithLogger(logger),
		session.WithMetrics(m),
	)

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())

	logger.Debug("command started",
		"command", cmd.CommandPath(),
		"api", cfg.API.BaseURL,
		"config", cfg.Source)

	return &app{
		ctx:      ctx,
		cc:       cc,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		store:    store,
		client:   client,
		manager:  manager,
		span:     span,
		cleanup:  cleanup,
	}, nil
}

// logWriter picks the log destination. Full-screen commands log to a file
// next to the config so records do not tear the display.
func logWriter(cmd *cobra.Command, cfg *config.Config) (io.Writer, func()) {
	if cmd.Annotations["fullscreen"] != "true" {
		return cmd.ErrOrStderr(), func() {}
	}
	dir := filepath.Dir(cfg.Credentials.File)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, consoleLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { _ = f.Close() }
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(cc *CommandContext) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: cc.ConfigPath})
	if err != nil {
		return nil, err
	}
	if cc.APIURL != "" {
		cfg.API.BaseURL = cc.APIURL
	}
	if cc.LogLevel != "" {
		cfg.Logging.Level = cc.LogLevel
	}
	if cc.LogFormat != "" {
		cfg.Logging.Format = cc.LogFormat
	}
	if cc.Ephemeral {
		cfg.Credentials.Ephemeral = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore selects the credential store the config asks for.
func openStore(cfg *config.Config) (credential.Store, error) {
	if cfg.Credentials.Ephemeral {
		return credential.NewMemoryStore(), nil
	}
	var opts []credential.FileOption
	if p := cfg.Passphrase(); p != "" {
		opts = append(opts, credential.WithPassphrase(p))
	}
	return credential.OpenFileStore(cfg.Credentials.File, opts...)
}

// routes loads the route table on first use.
func (a *app) routes() (*route.Authorizer, error) {
	if a.authorizer != nil {
		return a.authorizer, nil
	}
	table, err := route.LoadTable(a.cfg.Routes.File)
	if err != nil {
		return nil, err
	}
	a.authorizer = route.NewAuthorizer(table,
		route.WithLogger(a.logger),
		route.WithMetrics(a.metrics))
	return a.authorizer, nil
}

// finish records the outcome of the command and releases resources.
func (a *app) finish(cmd *cobra.Command, err error, d time.Duration) {
	name := "switchboard"
	if cmd != nil {
		name = cmd.CommandPath()
	}
	a.metrics.ObserveCommand(name, err == nil, d)

	if err != nil {
		if sbErr, ok := errors.As(err); ok {
			a.metrics.ObserveError(string(sbErr.Code), "cmd")
		}
		telemetry.RecordError(a.span, err)
		a.logger.LogError(err)
	} else {
		telemetry.RecordSuccess(a.span, attribute.String("session.status", string(a.manager.State().Status)))
	}
	a.span.End()

	a.manager.Close()
	a.cleanup()
}
