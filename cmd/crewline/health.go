package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crewline/crewline"
	"github.com/crewline/crewline/history"
)

type healthCheck struct {
	name string
	fn   func(context.Context) error
}

// runHealth probes every configured collaborator concurrently: the LLM
// backend, the Redis cache tier and the run-history database. It prints
// one line per check and exits non-zero when any of them fails.
func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 10*time.Second, "Overall probe deadline")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	eng, err := crewline.New(crewline.WithConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to assemble engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	checks := buildChecks(eng)
	results := make([]error, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check.fn(ctx)
			return results[i]
		})
	}
	failed := g.Wait() != nil

	for i, check := range checks {
		if results[i] != nil {
			fmt.Printf("FAIL  %-12s %v\n", check.name, results[i])
		} else {
			fmt.Printf("ok    %s\n", check.name)
		}
	}

	if failed {
		os.Exit(1)
	}
}

func buildChecks(eng *crewline.Engine) []healthCheck {
	checks := []healthCheck{
		{
			name: "llm",
			fn: func(ctx context.Context) error {
				status, err := eng.Provider().HealthCheck(ctx)
				if err != nil {
					return err
				}
				if !status.Healthy {
					return fmt.Errorf("unhealthy: %s", status.Error)
				}
				return nil
			},
		},
	}

	if rdb := eng.Redis(); rdb != nil {
		checks = append(checks, healthCheck{
			name: "redis",
			fn: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}

	if gs, ok := eng.History().(*history.GormStore); ok {
		checks = append(checks, healthCheck{
			name: "history db",
			fn: func(ctx context.Context) error {
				sqlDB, err := gs.DB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		})
	}

	return checks
}
