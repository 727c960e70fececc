package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/subcommands"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/logger"
	"github.com/household-ledger/internal/session"
	"github.com/household-ledger/internal/store"
)

var identity struct {
	uid    string
	name   string
	email  string
	config string
}

// cliLog is set once the configuration has been loaded.
var cliLog = slog.Default()

var errNoUID = errors.New("a uid is required, pass -uid or set LEDGER_UID")

// withSession logs the user in, runs fn and closes the session. Errors are
// printed to stderr and turned into a failing exit status.
func withSession(ctx context.Context, fn func(ctx context.Context, m *session.Manager) error) subcommands.ExitStatus {
	if err := runSession(ctx, fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runSession(ctx context.Context, fn func(ctx context.Context, m *session.Manager) error) error {
	if identity.uid == "" {
		return errNoUID
	}
	cfg, err := config.LoadConfig(identity.config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// stdout carries command output only.
	log := logger.NewLoggerWithWriter(cfg, os.Stderr)
	cliLog = log

	m, err := session.NewManager(log, cfg.Membership, func(ctx context.Context, mode string) (*store.Stores, error) {
		return store.Open(ctx, log, cfg, mode)
	})
	if err != nil {
		return err
	}
	defer m.Close(context.WithoutCancel(ctx))

	actor := ledger.Member{UID: identity.uid, DisplayName: identity.name, Email: identity.email}
	if _, err := m.Login(ctx, actor); err != nil {
		return err
	}
	return fn(ctx, m)
}

func printSnapshot(w io.Writer, s session.Snapshot) {
	fmt.Fprintf(w, "user:    %s (%s store)\n", s.UID, s.Mode)
	fmt.Fprintf(w, "active:  %s\n", s.ActiveLedgerID)
	if s.Ledger != nil {
		fmt.Fprintf(w, "ledger:  %s, %d member(s)\n", s.Ledger.Name, len(s.Ledger.Members))
		if s.Ledger.ScheduledDeleteAt != nil {
			fmt.Fprintf(w, "deletes: %s\n", s.Ledger.ScheduledDeleteAt.Format("2006-01-02 15:04"))
		}
	}
	fmt.Fprintf(w, "categories: %v\n", s.Categories)
	for _, e := range s.SavedLedgers {
		marker := " "
		if e.ID == s.ActiveLedgerID {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s  %s\n", marker, e.ID, e.Alias)
	}
}
