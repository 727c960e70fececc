package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/recurring"
	"github.com/household-ledger/internal/session"
	"github.com/shopspring/decimal"
)

var (
	sessionCommands = []subcommands.Command{&resolveCmd{}, &switchCmd{}, &watchCmd{}}
	ledgerCommands  = []subcommands.Command{&createCmd{}, &joinCmd{}, &leaveCmd{}, &aliasCmd{}, &categoryCmd{}}
	entryCommands   = []subcommands.Command{&addCmd{}, &templatesCmd{}, &dueCmd{}}
)

// oneArg returns the single positional argument or an error naming it.
func oneArg(f *flag.FlagSet, name string) (string, error) {
	if f.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one <%s> argument", name)
	}
	return f.Arg(0), nil
}

type resolveCmd struct{}

func (*resolveCmd) Name() string     { return "resolve" }
func (*resolveCmd) Synopsis() string { return "sign in and show the active ledger and saved ledgers" }
func (*resolveCmd) Usage() string {
	return `ledgerctl -uid <uid> resolve
`
}
func (*resolveCmd) SetFlags(*flag.FlagSet) {}

func (*resolveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		printSnapshot(os.Stdout, m.State().Snapshot())
		return nil
	})
}

type switchCmd struct{}

func (*switchCmd) Name() string     { return "switch" }
func (*switchCmd) Synopsis() string { return "make a saved ledger the active one" }
func (*switchCmd) Usage() string {
	return `ledgerctl -uid <uid> switch <ledger-id>
`
}
func (*switchCmd) SetFlags(*flag.FlagSet) {}

func (*switchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := oneArg(f, "ledger-id")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		if err := m.Switch(ctx, id); err != nil {
			return err
		}
		printSnapshot(os.Stdout, m.State().Snapshot())
		return nil
	})
}

type watchCmd struct{}

func (*watchCmd) Name() string { return "watch" }
func (*watchCmd) Synopsis() string {
	return "print the session state every time the active ledger changes"
}
func (*watchCmd) Usage() string {
	return `ledgerctl -uid <uid> watch

  Runs until interrupted.
`
}
func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		updates, unsubscribe := m.State().Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				fmt.Fprintf(os.Stdout, "--- version %d\n", snap.Version)
				printSnapshot(os.Stdout, snap)
			}
		}
	})
}

type createCmd struct {
	name string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a ledger and make it active" }
func (*createCmd) Usage() string {
	return `ledgerctl -uid <uid> create [-n <name>]
`
}
func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "n", "", "ledger name, a placeholder is used when empty")
}

func (c *createCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		l, err := m.Create(ctx, c.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created %s (%s)\n", l.ID, l.Name)
		return nil
	})
}

type joinCmd struct{}

func (*joinCmd) Name() string     { return "join" }
func (*joinCmd) Synopsis() string { return "join a ledger shared with you by id" }
func (*joinCmd) Usage() string {
	return `ledgerctl -uid <uid> join <ledger-id>
`
}
func (*joinCmd) SetFlags(*flag.FlagSet) {}

func (*joinCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := oneArg(f, "ledger-id")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		joined, err := m.Join(ctx, id)
		if err != nil {
			return err
		}
		if !joined {
			return fmt.Errorf("ledger %s does not exist", id)
		}
		fmt.Fprintf(os.Stdout, "joined %s\n", id)
		return nil
	})
}

type leaveCmd struct {
	timeout time.Duration
}

func (*leaveCmd) Name() string { return "leave" }
func (*leaveCmd) Synopsis() string {
	return "leave a ledger; the last member leaving schedules its deletion"
}
func (*leaveCmd) Usage() string {
	return `ledgerctl -uid <uid> leave [-wait <duration>] <ledger-id>
`
}
func (c *leaveCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.timeout, "wait", 30*time.Second, "how long to wait for the store to confirm")
}

func (c *leaveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := oneArg(f, "ledger-id")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		pending := m.Leave(ctx, id)
		if pending.ReplacementID != "" {
			fmt.Fprintf(os.Stdout, "switching to %s\n", pending.ReplacementID)
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		active, err := pending.Wait(waitCtx)
		if err != nil {
			return fmt.Errorf("leave %s: %w", id, err)
		}
		fmt.Fprintf(os.Stdout, "left %s, active ledger is %s\n", id, active)
		return nil
	})
}

type aliasCmd struct{}

func (*aliasCmd) Name() string     { return "alias" }
func (*aliasCmd) Synopsis() string { return "rename your saved entry for a ledger" }
func (*aliasCmd) Usage() string {
	return `ledgerctl -uid <uid> alias <ledger-id> <alias>
`
}
func (*aliasCmd) SetFlags(*flag.FlagSet) {}

func (*aliasCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "expected <ledger-id> <alias>")
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		return m.Rename(ctx, f.Arg(0), f.Arg(1))
	})
}

type categoryCmd struct {
	remove bool
}

func (*categoryCmd) Name() string     { return "category" }
func (*categoryCmd) Synopsis() string { return "add or remove a category of the active ledger" }
func (*categoryCmd) Usage() string {
	return `ledgerctl -uid <uid> category [-rm] <name>
`
}
func (c *categoryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.remove, "rm", false, "remove the category instead of adding it")
}

func (c *categoryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name, err := oneArg(f, "name")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		coord, err := m.Coordinator()
		if err != nil {
			return err
		}
		active := m.State().Snapshot().ActiveLedgerID
		var l *ledger.Ledger
		if c.remove {
			l, err = coord.RemoveCategory(ctx, m.Actor(), active, name)
		} else {
			l, err = coord.AddCategory(ctx, m.Actor(), active, name)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "categories: %v\n", l.Categories)
		return nil
	})
}

type addCmd struct {
	amount   string
	txType   string
	category string
	desc     string
	rewards  string
	date     string
	every    int
	day      int
	runs     int
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record a transaction in the active ledger" }
func (*addCmd) Usage() string {
	return `ledgerctl -uid <uid> add -a <amount> -c <category> [-t expense|income] [-d <desc>] [-date YYYY-MM-DD] [-every <months> [-day <n>] [-runs <n>]]

  With -every the transaction also starts a recurring template.
`
}
func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "a", "", "amount")
	f.StringVar(&c.txType, "t", "expense", "expense or income")
	f.StringVar(&c.category, "c", "", "category")
	f.StringVar(&c.desc, "d", "", "description")
	f.StringVar(&c.rewards, "r", "0", "rewards earned")
	f.StringVar(&c.date, "date", "", "transaction date, defaults to today")
	f.IntVar(&c.every, "every", 0, "repeat every n months")
	f.IntVar(&c.day, "day", 0, "day of month for repeats, defaults to the transaction day")
	f.IntVar(&c.runs, "runs", 0, "number of repeats, 0 for open-ended")
}

func (c *addCmd) input() (ledger.TransactionInput, error) {
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return ledger.TransactionInput{}, fmt.Errorf("invalid amount %q", c.amount)
	}
	rewards, err := decimal.NewFromString(c.rewards)
	if err != nil {
		return ledger.TransactionInput{}, fmt.Errorf("invalid rewards %q", c.rewards)
	}
	txType, err := shared.ParseTransactionType(c.txType)
	if err != nil {
		return ledger.TransactionInput{}, err
	}
	on := schedule.Today(time.Local)
	if c.date != "" {
		if on, err = schedule.Parse(c.date); err != nil {
			return ledger.TransactionInput{}, err
		}
	}
	return ledger.TransactionInput{
		Amount:      amount,
		Type:        txType,
		Category:    c.category,
		Description: c.desc,
		Rewards:     rewards,
		Date:        on,
	}, nil
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	input, err := c.input()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	var recurrence *service.RecurrenceInput
	if c.every > 0 {
		day := c.day
		if day == 0 {
			day = input.Date.Day()
		}
		recurrence = &service.RecurrenceInput{IntervalMonths: c.every, ExecuteDay: day}
		if c.runs > 0 {
			recurrence.TotalRuns = &c.runs
		}
	}

	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		coord, err := m.Coordinator()
		if err != nil {
			return err
		}
		stores, err := m.Stores()
		if err != nil {
			return err
		}
		engine := recurring.NewEngine(cliLog, stores.Ledgers, stores.Templates, stores.Transactions)
		txs := service.NewTransactionService(cliLog, coord, stores.Transactions, engine)

		tx, tpl, err := txs.CreateTransaction(ctx, m.Actor(), m.State().Snapshot().ActiveLedgerID, input, recurrence)
		if tx != nil {
			fmt.Fprintf(os.Stdout, "recorded %s %s %s on %s\n", tx.ID, tx.Type, tx.Amount, tx.Date)
		}
		if tpl != nil {
			fmt.Fprintf(os.Stdout, "template %s next runs on %s\n", tpl.ID, tpl.NextRunAt)
		}
		return err
	})
}

type templatesCmd struct{}

func (*templatesCmd) Name() string     { return "templates" }
func (*templatesCmd) Synopsis() string { return "list the recurring templates of the active ledger" }
func (*templatesCmd) Usage() string {
	return `ledgerctl -uid <uid> templates
`
}
func (*templatesCmd) SetFlags(*flag.FlagSet) {}

func (*templatesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		stores, err := m.Stores()
		if err != nil {
			return err
		}
		engine := recurring.NewEngine(cliLog, stores.Ledgers, stores.Templates, stores.Transactions)
		tpls, err := engine.List(ctx, m.Actor(), m.State().Snapshot().ActiveLedgerID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tAMOUNT\tEVERY\tNEXT\tLEFT\tSTATUS")
		for _, t := range tpls {
			left := "-"
			if t.RemainingRuns != nil {
				left = fmt.Sprint(*t.RemainingRuns)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dm/day %d\t%s\t%s\t%s\n",
				t.ID, t.Title, t.Amount, t.IntervalMonths, t.ExecuteDay, t.NextRunAt, left, t.Status)
		}
		return w.Flush()
	})
}

type dueCmd struct{}

func (*dueCmd) Name() string     { return "due" }
func (*dueCmd) Synopsis() string { return "fire every due template of the active ledger" }
func (*dueCmd) Usage() string {
	return `ledgerctl -uid <uid> due
`
}
func (*dueCmd) SetFlags(*flag.FlagSet) {}

func (*dueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, func(ctx context.Context, m *session.Manager) error {
		stores, err := m.Stores()
		if err != nil {
			return err
		}
		engine := recurring.NewEngine(cliLog, stores.Ledgers, stores.Templates, stores.Transactions)
		ledgerID := m.State().Snapshot().ActiveLedgerID
		if _, err := engine.List(ctx, m.Actor(), ledgerID); err != nil {
			return err
		}

		result, err := engine.DueCheck(ctx, ledgerID, engine.Today())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "checked %d, fired %d, failed %d\n", result.Checked, len(result.Fired), result.Failed)
		if result.Failed > 0 {
			return errors.New("some templates failed to fire")
		}
		return nil
	})
}
