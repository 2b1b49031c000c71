package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"chatgate/internal/adapter/repo"
	"chatgate/internal/domain"
	"chatgate/internal/governor"
	"chatgate/internal/infra"
	"chatgate/internal/keylock"
	"chatgate/internal/quota"
)

const usage = `userplan manages registered chat users.

Usage:
  userplan register    --user ID --plan PLAN [--force]
  userplan plan        --user ID --plan PLAN
  userplan reset-usage --user ID
  userplan show        --user ID
  userplan list

The store is selected with STORE_DRIVER / STORE_PATH / DATABASE_URL and
plans with PLANS_FILE / PLAN_LIMITS, as for the gateway.
`

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	store  domain.UserStore
	policy *quota.Policy
	gov    *governor.Governor
	now    time.Time
	out    io.Writer
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return nil
	}
	name, rest := args[0], args[1:]

	var (
		userID string
		plan   string
		force  bool
	)
	flagSet := pflag.NewFlagSet("userplan "+name, pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&userID, "user", "u", "", "chat user id")
	flagSet.StringVarP(&plan, "plan", "p", "", "plan tier")
	flagSet.BoolVar(&force, "force", false, "overwrite an existing registration")
	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}
	userID = strings.TrimSpace(userID)

	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger("cli").Level(zerolog.WarnLevel).With().Str("cmd", "userplan").Logger()

	store, closeStore, err := repo.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	policy, err := quota.LoadPolicy(cfg.PlansFile, cfg.PlanLimits)
	if err != nil {
		return err
	}
	c := &command{
		store:  store,
		policy: policy,
		gov:    governor.New(store, policy, keylock.New(1), governor.Options{Location: cfg.Location}, logger),
		now:    time.Now(),
		out:    out,
	}

	if name != "list" && userID == "" {
		return errors.New("--user is required")
	}
	switch name {
	case "register":
		return c.register(ctx, userID, plan, force)
	case "plan":
		return c.changePlan(ctx, userID, plan)
	case "reset-usage":
		return c.resetUsage(ctx, userID)
	case "show":
		return c.show(ctx, userID)
	case "list":
		return c.list(ctx)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) checkPlan(raw string) (domain.Plan, error) {
	plan := domain.NormalizePlan(raw)
	if plan == "" {
		return "", errors.New("--plan is required")
	}
	if _, err := c.policy.Allowance(plan); err != nil {
		return "", fmt.Errorf("%w (configured: %v)", err, c.policy.Plans())
	}
	return plan, nil
}

func (c *command) register(ctx context.Context, userID, rawPlan string, force bool) error {
	plan, err := c.checkPlan(rawPlan)
	if err != nil {
		return err
	}
	_, err = c.store.Get(ctx, userID)
	switch {
	case err == nil && !force:
		return fmt.Errorf("user %s is already registered; use --force to reset it", userID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	}
	if err := c.store.Put(ctx, domain.NewUserRecord(userID, plan, c.now)); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %s on plan %s\n", userID, plan)
	return nil
}

func (c *command) changePlan(ctx context.Context, userID, rawPlan string) error {
	plan, err := c.checkPlan(rawPlan)
	if err != nil {
		return err
	}
	rec, err := c.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	previous := rec.Plan
	rec.Plan = plan
	rec.UpdatedAt = c.now.UTC()
	if err := c.store.Put(ctx, *rec); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "user %s moved from %s to %s\n", userID, previous, plan)
	return nil
}

func (c *command) resetUsage(ctx context.Context, userID string) error {
	rec, err := c.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	rec.DailyUsageCount = 0
	rec.UpdatedAt = c.now.UTC()
	if err := c.store.Put(ctx, *rec); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "usage of %s reset\n", userID)
	return nil
}

func (c *command) show(ctx context.Context, userID string) error {
	d, err := c.gov.Usage(ctx, userID, c.now)
	if err != nil {
		return err
	}
	if d.State == governor.StateUnregistered {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	fmt.Fprintf(c.out, "user=%s plan=%s date=%s used=%d allowance=%d remaining=%d\n",
		userID, d.Plan, d.Date, d.Used, d.Allowance, d.Remaining)
	return nil
}

func (c *command) list(ctx context.Context) error {
	records, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tPLAN\tUSED\tLAST USED\tTURNS")
	for _, id := range ids {
		rec := records[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", id, rec.Plan, rec.DailyUsageCount, rec.LastUsedDate, len(rec.RecentTurns))
	}
	return tw.Flush()
}
