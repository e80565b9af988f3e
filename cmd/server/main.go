// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/karaoke-hub/internal/api/connect"
	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
	"github.com/osa030/karaoke-hub/internal/api/router"
	"github.com/osa030/karaoke-hub/internal/api/ws"
	"github.com/osa030/karaoke-hub/internal/app/filter"
	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/app/session"
	"github.com/osa030/karaoke-hub/internal/app/session/registry"
	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/infra/config"
	"github.com/osa030/karaoke-hub/internal/infra/logger"
	"github.com/osa030/karaoke-hub/internal/infra/stomp"
	"github.com/osa030/karaoke-hub/internal/infra/store/memory"
	"github.com/osa030/karaoke-hub/internal/infra/store/redis"
	"github.com/osa030/karaoke-hub/internal/infra/store/sqlite"
	"github.com/osa030/karaoke-hub/internal/infra/youtube"
)

var (
	app        = kingpin.New("karaoke-server", "karaoke queue session hub")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	jsonLogs   = app.Flag("json-logs", "Write JSON log lines to stdout").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info", JSON: *jsonLogs}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		os.Exit(1)
	}
}

// run executes the main server logic so deferred cleanup runs on every return path.
func run(cfg *config.Config) error {
	ctx := context.Background()

	chain, err := filter.BuildChain(filterSettings(cfg))
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	// Connection records left by a previous process have no live socket behind them.
	if err := st.PurgeConnections(ctx); err != nil {
		return errors.Wrap(err, "failed to purge stale connections")
	}

	yt, err := youtube.New(ctx, youtube.Config{
		APIKey:       cfg.YouTube.APIKey,
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		RefreshToken: cfg.YouTube.RefreshToken,
		CacheTTL:     time.Duration(cfg.YouTube.CacheTTLSec) * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create YouTube client")
	}

	transport := ws.NewTransport(ws.Options{
		PingPeriod:   cfg.Transport.PingPeriod(),
		WriteTimeout: cfg.Transport.WriteTimeout(),
		ReadLimit:    int64(cfg.Transport.ReadLimit),
		SendBuffer:   cfg.Transport.SendBuffer,
	})

	hubOpts := []hub.Option{hub.WithSendTimeout(cfg.Transport.SendTimeout())}
	if cfg.Mirror.Enabled {
		mirror, err := stomp.Dial(stomp.Config{
			Addr:              cfg.Mirror.Addr,
			Login:             cfg.Mirror.Login,
			Passcode:          cfg.Mirror.Passcode,
			Host:              cfg.Mirror.Host,
			DestinationPrefix: cfg.Mirror.DestinationPrefix,
		})
		if err != nil {
			return errors.Wrap(err, "failed to connect STOMP mirror")
		}
		defer mirror.Close()
		hubOpts = append(hubOpts, hub.WithMirror(mirror))
	}

	h := hub.New(registry.NewConnectionRegistry(), st, transport, hubOpts...)
	sessionMgr := session.NewManager(st, h, yt, chain)

	sessionPath, sessionHandler := karaokev1.NewSessionServiceHandler(apiconnect.NewSessionService(sessionMgr, cfg))
	adminPath, adminHandler := karaokev1.NewAdminServiceHandler(
		apiconnect.NewAdminService(sessionMgr, h),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)

	gin.SetMode(gin.ReleaseMode)
	engine := router.New(router.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebSocket:      ws.NewHandler(transport, h, cfg.Server.AllowedOrigins),
		Services: map[string]http.Handler{
			sessionPath: sessionHandler,
			adminPath:   adminHandler,
		},
		Health: func() gin.H {
			s := h.Stats()
			return gin.H{"connections": s.Connections, "sessions": s.Sessions}
		},
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(engine, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s store=%s mirror=%t", cfg.Server.Addr, cfg.Store.Driver, cfg.Mirror.Enabled)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; close them first.
	h.Close()
	transport.CloseAll()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		zlog.Warn().Msg("Using in-memory store; sessions are lost on restart")
		return memory.New(), nil
	case config.DriverSQLite:
		zlog.Info().Msgf("Opening SQLite store: path=%s", cfg.SQLite.Path)
		st, err := sqlite.Open(cfg.SQLite.Path)
		return st, errors.Wrap(err, "failed to open sqlite store")
	case config.DriverRedis:
		zlog.Info().Msgf("Connecting to Redis store: addr=%s db=%d", cfg.Redis.Addr, cfg.Redis.DB)
		st, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		return st, errors.Wrap(err, "failed to open redis store")
	default:
		return nil, errors.Newf("unknown store driver: %s", cfg.Driver)
	}
}

func filterSettings(cfg *config.Config) map[string]filter.Settings {
	out := make(map[string]filter.Settings, len(cfg.Filters))
	for name, f := range cfg.Filters {
		out[name] = filter.Settings{Enabled: f.Enabled, Settings: f.Settings}
	}
	return out
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
