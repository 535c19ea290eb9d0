package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"kstor/internal/config"
	"kstor/internal/controller/auth"
	"kstor/internal/dispatch"
	"kstor/internal/logging"
	"kstor/internal/notify"
	"kstor/internal/server"
	"kstor/internal/session"
	"kstor/internal/store"
	"kstor/internal/store/memstore"
	"kstor/internal/store/pgstore"
	"kstor/internal/store/sqlstore"
)

// notifyCapacity is the per-topic pubsub backlog for the cache
// invalidation bus, matching node/server.go's unbuffered
// NewLocalNotificationService(0) construction.
const notifyCapacity = 0

// sweepIntervalSeconds is how often the session store's gocron job
// evicts expired sessions (internal/session.Store.StartSweeper); lazy
// expiry on Get keeps correctness regardless, this just bounds how long
// idle entries linger in memory.
const sweepIntervalSeconds = 60

const Version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "kstord"
	app.Usage = "KStor server"
	app.Version = Version

	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "if true, enable debug mode"},
		&cli.StringFlag{
			Name:  "config",
			Value: "config",
			Usage: "config name (will use $HOME/.kstor/{name}.yaml config file)",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "init",
			Usage:  "initialize a new server configuration",
			Action: initCommand,
		},
	}

	app.Action = runServer

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("kstord failed")
	}
}

func configDir() string {
	return config.DefaultDir()
}

func initCommand(c *cli.Context) error {
	dir := configDir()
	if err := config.SafeWriteConfigToFile(dir, c.String("config"), dir); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func runServer(c *cli.Context) error {
	dir := configDir()
	cfg, err := config.Load(dir, c.String("config"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	logging.Setup(cfg.LogLevel)
	if c.Bool("debug") {
		logging.Setup("debug")
	}
	if cfg.GraylogURL != "" {
		if err := logging.WithGraylog(cfg.GraylogURL, cfg.GraylogServiceName, cfg.GraylogInstance); err != nil {
			return cli.Exit(err, 1)
		}
	}

	repo, err := openRepo(cfg.Database)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer repo.Close()

	sessions := session.New(cfg.SessionIdleTimeout, cfg.SessionLifeTimeout)
	sessions.StartSweeper(sweepIntervalSeconds)
	defer sessions.StopSweeper()

	authCtrl := auth.New(repo, sessions)
	d := dispatch.New(repo, sessions, authCtrl)

	pool := server.NewPool(d, cfg.NWorkers, cfg.ShutdownGrace)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	socketPath := cfg.Socket
	if !filepath.IsAbs(socketPath) {
		socketPath = filepath.Join(dir, socketPath)
	}
	return pool.Run(ctx, socketPath)
}

// openRepo opens the repository named by dbPath and wraps it in the
// process-wide user/group cache (spec.md §5). A bare "memory" value
// opens an in-process store, useful for smoke testing kstord without a
// database file. A "postgres://" or "postgresql://" URL opens pgstore;
// anything else is treated as a sqlite3 file path and opens sqlstore,
// creating the file and running migrations if it does not already exist.
func openRepo(dbPath string) (store.Repository, error) {
	backing, err := openBackend(dbPath)
	if err != nil {
		return nil, err
	}
	return store.NewCachingRepository(backing, notify.NewBus(notifyCapacity)), nil
}

func openBackend(dbPath string) (store.Repository, error) {
	switch {
	case dbPath == "memory":
		return memstore.New(), nil
	case strings.HasPrefix(dbPath, "postgres://"), strings.HasPrefix(dbPath, "postgresql://"):
		return pgstore.Open(dbPath)
	default:
		return sqlstore.Open(dbPath)
	}
}
