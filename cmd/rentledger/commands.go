package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/binding"
	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/feed/redisfeed"
	"github.com/xraph/rentledger/identity"
	"github.com/xraph/rentledger/notify"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
	"github.com/xraph/rentledger/workflow"
)

func periodCmd() *cobra.Command {
	var at, since string

	cmd := &cobra.Command{
		Use:   "period",
		Short: "Print the billing period key and label",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if at != "" {
				t, err := parseDate(at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			clock := period.Clock(func() time.Time { return now })

			out := cmd.OutOrStdout()
			key := clock.Current()
			fmt.Fprintf(out, "%s\t%s\n", key, key.Label())

			if since != "" {
				joined, err := parseDate(since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				fmt.Fprintf(out, "days stayed\t%d\n", clock.DaysSince(&joined))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "instant to evaluate, RFC 3339 or YYYY-MM-DD (default now)")
	cmd.Flags().StringVar(&since, "since", "", "joining date, RFC 3339 or YYYY-MM-DD")
	return cmd
}

type simulateOptions struct {
	tenant    string
	rent      string
	method    string
	room      string
	redisAddr string
	delay     time.Duration
	timeout   time.Duration
}

func simulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Pay one month of rent against a seeded ledger and print the live views",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulate(ctx, cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.tenant, "tenant", envOr("RENTLEDGER_TENANT", "tenant-demo"), "tenant identity")
	f.StringVar(&opts.rent, "rent", envOr("RENTLEDGER_RENT", "5000"), "monthly rent in rupees")
	f.StringVar(&opts.method, "method", payment.MethodUPI, "payment method")
	f.StringVar(&opts.room, "room", "204", "room number of the seeded profile")
	f.StringVar(&opts.redisAddr, "redis", os.Getenv("REDIS_ADDRESS"), "Redis address for the change feed (in-process when empty)")
	f.DurationVar(&opts.delay, "delay", workflow.DefaultProcessingDelay, "simulated gateway delay")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for the views to settle")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	logger := slog.Default()

	rent, err := types.ParseMoney(opts.rent, rentledger.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("--rent: %w", err)
	}

	s := memory.New()
	joined := time.Now().AddDate(0, 0, -30)
	if err := s.PutProfile(ctx, &profile.Profile{
		TenantID:    opts.tenant,
		MonthlyRent: &rent,
		RoomNumber:  opts.room,
		JoiningDate: &joined,
	}); err != nil {
		return err
	}

	hub := feed.NewHub(feed.WithLogger(logger))
	defer hub.Close()

	var pub feed.Publisher = hub
	if opts.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		defer client.Close()

		bridge := redisfeed.NewBridge(client, hub, []string{feed.ResourcePayments}, redisfeed.WithLogger(logger))
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer bridge.Stop()
		pub = redisfeed.NewPublisher(client)
	}

	l := rentledger.New(s,
		rentledger.WithLogger(logger),
		rentledger.WithPublisher(pub),
	)
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.Stop()

	ident := identity.Static(opts.tenant)
	presets := []binding.Preset{binding.RentStatus(), binding.QuickStats(), binding.PaymentsPage()}
	bindings := make([]*binding.Binding, 0, len(presets))

	var settled sync.WaitGroup
	for _, p := range presets {
		b := binding.New(l, hub, ident, p, binding.WithLogger(logger))

		var once sync.Once
		settled.Add(1)
		b.OnUpdate(func(v binding.View) {
			if v.Summary.Settled {
				once.Do(settled.Done)
			}
		})

		if err := b.Activate(ctx); err != nil {
			return err
		}
		defer b.Deactivate()
		bindings = append(bindings, b)
	}

	fmt.Fprintln(out, "before payment:")
	if err := printViews(out, bindings); err != nil {
		return err
	}

	w := workflow.New(l, notify.LogSink(logger),
		workflow.WithProcessingDelay(opts.delay),
		workflow.WithLogger(logger),
		workflow.WithPlugins(l.Plugins()),
	)
	if err := w.SelectMethod(opts.method); err != nil {
		return err
	}
	receipt, err := w.Submit(ctx, opts.tenant, &rent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "paid %s via %s (%s)\n", receipt.Amount, receipt.Method, receipt.TransactionRef)

	done := make(chan struct{})
	go func() {
		settled.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(opts.timeout):
		return fmt.Errorf("views did not settle within %s", opts.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Fprintln(out, "after payment:")
	return printViews(out, bindings)
}

func printViews(out io.Writer, bindings []*binding.Binding) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, b := range bindings {
		if err := enc.Encode(b.View()); err != nil {
			return err
		}
	}
	return nil
}

func watchCmd() *cobra.Command {
	var (
		addr      string
		prefix    string
		resources []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Log change signals from the Redis feed until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				return fmt.Errorf("--redis is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, addr, prefix, resources)
		},
	}

	cmd.Flags().StringVar(&addr, "redis", os.Getenv("REDIS_ADDRESS"), "Redis address")
	cmd.Flags().StringVar(&prefix, "prefix", envOr("RENTLEDGER_FEED_PREFIX", redisfeed.DefaultPrefix), "channel prefix")
	cmd.Flags().StringSliceVar(&resources, "resource", []string{feed.ResourcePayments}, "resources to watch")
	return cmd
}

func runWatch(ctx context.Context, addr, prefix string, resources []string) error {
	logger := slog.Default()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	hub := feed.NewHub(feed.WithLogger(logger))
	defer hub.Close()

	for _, r := range resources {
		if _, err := hub.Subscribe(r, func(sig feed.Signal) {
			logger.Info("change",
				"resource", sig.Resource,
				"op", string(sig.Op),
				"tenant_id", sig.TenantID,
				"at", sig.At,
			)
		}); err != nil {
			return err
		}
	}

	lost := make(chan error, 1)
	bridge := redisfeed.NewBridge(client, hub, resources,
		redisfeed.WithPrefix(prefix),
		redisfeed.WithLogger(logger),
		redisfeed.WithOnLost(func(err error) {
			select {
			case lost <- err:
			default:
			}
		}),
	)
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer bridge.Stop()

	logger.Info("watching change feed", "redis", addr, "resources", resources)

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return err
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}
