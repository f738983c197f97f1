// Command sessionctl drives a session manager from the command line: it
// restores the saved session, runs one command and prints the outcome.
//
//	sessionctl [-config file] [-metrics] status
//	sessionctl [-config file] [-metrics] login <email> <password>
//	sessionctl [-config file] [-metrics] register <email> <password> <confirm>
//	sessionctl [-config file] [-metrics] logout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/metrics/export/prometheus"
)

const usage = `usage: sessionctl [-config file] [-metrics] <command> [args]

commands:
  status                              print the restored session
  login <email> <password>            sign in
  register <email> <password> <confirm>
                                      create an account and sign in
  logout                              sign out and clear stored credentials
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	var (
		configPath  = fs.String("config", "", "path to a YAML config file")
		showMetrics = fs.Bool("metrics", false, "print Prometheus metrics on exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmdArgs := fs.Args()
	if len(cmdArgs) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadCLIConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	level, _ := parseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("credential store unavailable", "error", err)
		return 1
	}
	defer cleanup()

	client, err := identity.NewClient(identity.Config{
		BaseURL:    cfg.Identity.BaseURL,
		Collection: cfg.Identity.Collection,
		RevokePath: cfg.Identity.RevokePath,
		Timeout:    cfg.Identity.Timeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("identity client config invalid", "error", err)
		return 1
	}

	builder := authsession.New().
		WithConfig(cfg.coreConfig(*showMetrics)).
		WithCredentialStore(store).
		WithIdentityClient(client).
		WithLogger(logger)
	if cfg.Session.Audit {
		builder = builder.WithAuditSink(authsession.NewJSONWriterSink(stderr))
	}
	manager, err := builder.Build()
	if err != nil {
		logger.Error("session manager config invalid", "error", err)
		return 1
	}
	defer manager.Close()

	if err := manager.Restore(ctx); err != nil && !errors.Is(err, authsession.ErrStorage) {
		logger.Error("restore interrupted", "error", err)
		return 1
	}

	code := execute(ctx, manager, cmdArgs, stdout, stderr)

	if *showMetrics {
		fmt.Fprint(stdout, prometheus.NewPrometheusExporter(manager).Render())
	}
	return code
}

func execute(ctx context.Context, m *authsession.Manager, args []string, stdout, stderr io.Writer) int {
	var (
		res authsession.Result
		err error
	)

	switch cmd := args[0]; {
	case cmd == "status" && len(args) == 1:
	case cmd == "login" && len(args) == 3:
		res, err = m.Login(ctx, args[1], args[2])
	case cmd == "register" && len(args) == 4:
		res, err = m.Register(ctx, authsession.AuthRequest{Email: args[1], Password: args[2], PasswordConfirm: args[3]})
	case cmd == "logout" && len(args) == 1:
		m.Logout(ctx)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "%s (%s)\n", authsession.UserMessage(err), authsession.CategoryOf(err))
		printSession(stdout, m.Session())
		return 1
	}
	if res.PersistErr != nil {
		fmt.Fprintln(stderr, authsession.UserMessage(res.PersistErr))
	}
	printSession(stdout, m.Session())
	return 0
}

func printSession(w io.Writer, s authsession.Session) {
	if !s.Authenticated() {
		fmt.Fprintf(w, "status: %s\n", s.Status)
		return
	}
	fmt.Fprintf(w, "status: %s\nuser: %s <%s>\n", s.Status, s.User.ID(), s.User.Email())
}

func buildStore(cfg cliConfig, logger *slog.Logger) (*credstore.Store, func(), error) {
	key, err := cfg.sealingKey()
	if err != nil {
		return nil, nil, err
	}
	sealer, err := credstore.NewSealer(key)
	if err != nil {
		return nil, nil, err
	}

	backend, cleanup, err := buildBackend(cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := credstore.NewStore(backend, sealer, credstore.Options{})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

func buildBackend(cfg storeConfig, logger *slog.Logger) (credstore.Backend, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case "memory":
		return credstore.NewMemoryBackend(), noop, nil

	case "file":
		b, err := credstore.NewFileBackend(cfg.Dir)
		return b, noop, err

	case "sqlite":
		b, err := credstore.OpenSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil

	case "redis":
		addr := cfg.Redis.Addr
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			logger.Warn("no redis address configured, using an in-process miniredis", "addr", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return credstore.NewRedisBackend(client, cfg.Redis.Prefix), func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
