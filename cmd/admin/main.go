package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/taskhub/internal/admin"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/mail"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/internal/server/storage"
	"github.com/iudanet/taskhub/internal/server/storage/boltdb"
	"github.com/iudanet/taskhub/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	dbPath := flag.String("db", "taskhub.db", "Path to SQLite database")
	boltPath := flag.String("bolt", "", "Path to bbolt session store (empty: sessions in SQLite)")
	verbose := flag.Bool("v", false, "Log service events to stderr")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	term := admin.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		admin.New(term, nil, nil, nil).PrintUsage()
		os.Exit(1)
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, term, logger, *dbPath, *boltPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, term admin.IO, logger *slog.Logger, dbPath, boltPath string, args []string) error {
	db, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	var sessionStore storage.SessionStorage = db
	if boltPath != "" {
		bolt, err := boltdb.New(ctx, boltPath)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer func() {
			if err := bolt.Close(); err != nil {
				logger.Error("Failed to close session store", slog.Any("error", err))
			}
		}()
		sessionStore = bolt
	}

	sessions := session.NewService(sessionStore, logger)

	// Токены утилите не нужны, ключ только удовлетворяет конструктор
	tokens, err := jwt.NewService("taskhub-admin", 0)
	if err != nil {
		return err
	}
	accounts := auth.NewService(db, sessions, tokens, mail.NewLogMailer(logger), logger)

	return admin.New(term, accounts, sessions, db).Run(ctx, args[0], args[1:])
}

func printVersion() {
	fmt.Printf("TaskHub Admin\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
