package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/kmetija/internal/api"
	"github.com/erazemk/kmetija/internal/auth"
	"github.com/erazemk/kmetija/internal/config"
	"github.com/erazemk/kmetija/internal/db"
	"github.com/erazemk/kmetija/internal/imaging"
	"github.com/erazemk/kmetija/internal/jobs"
	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/notify"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/storage"
	"github.com/erazemk/kmetija/internal/store"
)

type options struct {
	configPath string
	dbPath     string
	addr       string
	logPath    string
	admin      string
	verbose    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:          "kmetija",
		Short:        "Farm inventory, marketplace and equipment lending server",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVarP(&opts.dbPath, "db", "d", "", "SQLite database path (default: kmetija.sqlite3)")
	pf.StringVarP(&opts.admin, "admin", "u", "", "admin username on first run (default: admin)")
	pf.StringVarP(&opts.logPath, "log", "l", "", "log file path (default: stdout/stderr only)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages")
	pf.StringVarP(&opts.addr, "addr", "a", "", "listen address (default: :8080)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			closeLog := setupLogger(cfg.Log, opts.verbose)
			defer closeLog.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveCmd(ctx, cfg)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Database.Path); err == nil {
				return fmt.Errorf("database file %s already exists", cfg.Database.Path)
			}
			database, password, err := initDatabase(cmd.Context(), cfg.Database.Path, cfg.Admin.Username)
			if err != nil {
				return err
			}
			database.Close()
			printInitResult(cfg.Database.Path, cfg.Admin.Username, password)
			return nil
		},
	}

	// Running without a subcommand serves.
	root.Args = cobra.NoArgs
	root.RunE = serve.RunE
	root.AddCommand(serve, initCmd)
	return root
}

// loadConfig reads the config file and environment, then applies flags on
// top.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logPath != "" {
		cfg.Log.Path = opts.logPath
	}
	if opts.admin != "" {
		cfg.Admin.Username = opts.admin
	}
	return cfg, nil
}

func serveCmd(ctx context.Context, cfg config.Config) error {
	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.Database.Path); errors.Is(err, os.ErrNotExist) {
		database, password, err := initDatabase(ctx, cfg.Database.Path, cfg.Admin.Username)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.Database.Path, cfg.Admin.Username, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.Database.Path)

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store.SetLocation(loc)

	hub := realtime.NewHub(cfg.Realtime.SendBuffer)
	hub.SetPingInterval(cfg.Realtime.PingInterval)

	var mailer notify.Mailer
	if cfg.Mail.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
		slog.Info("mail enabled", "host", cfg.Mail.Host, "from", cfg.Mail.From)
	}
	notifier := notify.New(database, hub, mailer, cfg.Mail.QueueSize)

	apiRouter := api.NewRouter(api.Deps{
		DB:       database,
		Signer:   auth.NewSigner(jwtSecret, cfg.Server.TokenTTL),
		Hub:      hub,
		Notifier: notifier,
		Storage: &storage.Service{
			DB: database,
			Images: imaging.Processor{
				MaxDimension: cfg.Images.MaxDimension,
				Quality:      cfg.Images.JPEGQuality,
				MaxBytes:     cfg.Images.MaxUploadBytes,
			},
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle(storage.URLPrefix, apiRouter)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	runner := &jobs.Runner{
		DB:           database,
		Notifier:     notifier,
		ExpiryWindow: cfg.Jobs.ExpiryWindowDays,
		Location:     loc,
	}
	sched := jobs.Schedule{
		Overdue:  cfg.Jobs.Overdue,
		Expiring: cfg.Jobs.Expiring,
		Purge:    cfg.Jobs.TokenPurge,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return runner.Run(ctx, sched)
	})

	if mailer != nil {
		g.Go(func() error {
			return notifier.Run(ctx)
		})
	}

	err = g.Wait()
	slog.Info("server stopped, closing database")
	return err
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(ctx context.Context, path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	if _, err := store.CreateUser(ctx, database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
