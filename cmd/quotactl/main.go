package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studyquota/internal/cache"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"github.com/smallbiznis/studyquota/internal/migration"
	"github.com/smallbiznis/studyquota/internal/observability"
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	"github.com/smallbiznis/studyquota/internal/quota"
	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/pkg/db"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type CLI struct {
	Limits       LimitsCmd       `cmd:"" help:"Print the configured feature limits."`
	Usage        UsageCmd        `cmd:"" help:"Show a user's usage in the current windows."`
	Migrate      MigrateCmd      `cmd:"" help:"Apply database migrations."`
	GrantPremium GrantPremiumCmd `cmd:"" name:"grant-premium" help:"Mark a user premium until a given time."`

	Format  string        `help:"Output format (yaml, json)." enum:"yaml,json" default:"yaml"`
	Timeout time.Duration `help:"Timeout for store operations." default:"10s"`
}

type LimitsCmd struct{}

func (c *LimitsCmd) Run(cli *CLI) error {
	limits, err := config.LoadFeatureLimits(config.Load())
	if err != nil {
		return err
	}
	return render(os.Stdout, cli.Format, limits.All())
}

type UsageCmd struct {
	User string `required:"" help:"User id."`
	At   string `help:"Evaluate at this RFC3339 instant instead of now."`
}

type usageOutput struct {
	UserID    string                     `json:"userId" yaml:"userId"`
	At        time.Time                  `json:"at" yaml:"at"`
	IsPremium bool                       `json:"isPremium" yaml:"isPremium"`
	Counts    map[string]int             `json:"counts" yaml:"counts"`
	Limits    []quotadomain.FeatureLimit `json:"limits" yaml:"limits"`
	ResetsAt  map[string]time.Time       `json:"resetsAt" yaml:"resetsAt"`
}

func (c *UsageCmd) Run(cli *CLI) error {
	at := time.Now().UTC()
	if raw := strings.TrimSpace(c.At); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		at = parsed.UTC()
	}

	var svc quotadomain.Service
	return withApp(cli, []fx.Option{fx.Populate(&svc)}, func(ctx context.Context) error {
		snapshot, err := svc.Snapshot(ctx, c.User, at)
		if err != nil {
			return err
		}
		out := usageOutput{
			UserID:    snapshot.UserID,
			At:        at,
			IsPremium: snapshot.IsPremium,
			Counts:    snapshot.Counts,
			Limits:    snapshot.Limits,
			ResetsAt:  make(map[string]time.Time, len(snapshot.ResetsAt)),
		}
		for cadence, resetsAt := range snapshot.ResetsAt {
			out.ResetsAt[string(cadence)] = resetsAt
		}
		return render(os.Stdout, cli.Format, out)
	})
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	var conn *gorm.DB
	return withApp(cli, []fx.Option{fx.Populate(&conn)}, func(ctx context.Context) error {
		if err := migration.Apply(conn.WithContext(ctx)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "migrations applied (%s)\n", conn.Dialector.Name())
		return nil
	})
}

type GrantPremiumCmd struct {
	User  string `required:"" help:"User id."`
	Until string `required:"" help:"RFC3339 instant or a duration from now (e.g. 720h)."`
}

func (c *GrantPremiumCmd) Run(cli *CLI) error {
	until, err := parseUntil(c.Until, time.Now().UTC())
	if err != nil {
		return err
	}

	var svc entitlementdomain.Service
	return withApp(cli, []fx.Option{fx.Populate(&svc)}, func(ctx context.Context) error {
		ent, err := svc.GrantPremium(ctx, c.User, until)
		if err != nil {
			return err
		}
		return render(os.Stdout, cli.Format, ent)
	})
}

func parseUntil(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --until %q: expected RFC3339 or duration", raw)
	}
	return t.UTC(), nil
}

// withApp starts the data layer, runs fn and stops everything again.
func withApp(cli *CLI, extra []fx.Option, fn func(ctx context.Context) error) error {
	opts := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Decorate(func(cfg logger.Config) logger.Config {
			cfg.OutputPaths = []string{"stderr"}
			cfg.Level = "warn"
			return cfg
		}),
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		cache.Module,
		clock.Module,
		entitlement.Module,
		quota.Module,
	}
	app := fx.New(append(opts, extra...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cli.Timeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	ctx, runCancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer runCancel()
	return fn(ctx)
}

func render(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("quotactl"),
		kong.Description("Inspect and operate the studyquota usage store."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
