package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-signal-bus/adapters/inmemory"
	"github.com/next-trace/scg-signal-bus/config"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/handlers"
	"github.com/next-trace/scg-signal-bus/orm"
)

var demoKeys = []struct {
	entity signal.EntityType
	id     string
}{
	{handlers.EntityTestPlan, "plan-1"},
	{handlers.EntityTestCase, "case-1"},
	{handlers.EntityTestCase, "case-3"},
	{handlers.EntityTestCaseRun, "run-1"},
}

type demoResult struct {
	Notifications int
	ChangeLog     map[string]int
	BulkUpdated   int
	BulkCreated   int
}

func newDemoCmd(f *rootFlags) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Drive a mutation sequence through the pipeline with an in-memory broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve()
			if err != nil {
				return err
			}

			cfg.Store = config.Store{Driver: "sqlite3", DSN: filepath.Join(dir, "signald-demo.db")}
			cfg.Broker = config.Broker{Kind: config.BrokerMemory}
			// sqlite serializes writers; change-log writes must not run inside the emitting transaction
			cfg.Dispatch.Sync = false

			logger := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			res, runErr := runDemo(cmd.Context(), a)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
			defer cancel()

			if err := a.close(ctx); err != nil && runErr == nil {
				runErr = err
			}

			if runErr != nil {
				return runErr
			}

			printDemo(cmd.OutOrStdout(), res)

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory for the demo sqlite database")

	return cmd
}

// runDemo saves, bulk-updates, bulk-creates and deletes test-management
// entities and reports what the handlers produced.
func runDemo(ctx context.Context, a *app) (demoResult, error) {
	res := demoResult{ChangeLog: map[string]int{}}
	s := a.store

	plan := &orm.Model{Type: handlers.EntityTestPlan, ID: "plan-1", Fields: map[string]any{
		"name":               "Release 2.0 regression",
		handlers.NotifyField: "owner@example.com",
	}}
	if _, err := s.Save(ctx, plan); err != nil {
		return res, err
	}

	plan.Fields["name"] = "Release 2.0 regression (final)"
	if _, err := s.Save(ctx, plan); err != nil {
		return res, err
	}

	for i := 1; i <= 3; i++ {
		c := &orm.Model{Type: handlers.EntityTestCase, ID: fmt.Sprintf("case-%d", i), Fields: map[string]any{
			"summary":            fmt.Sprintf("case %d", i),
			"status":             "PROPOSED",
			handlers.NotifyField: "qa@example.com",
		}}
		if _, err := s.Save(ctx, c); err != nil {
			return res, err
		}
	}

	n, err := orm.NewManager(s, handlers.EntityTestCase).Filter("case-1", "case-2").
		Update(ctx, map[string]any{"status": "CONFIRMED"})
	if err != nil {
		return res, err
	}

	res.BulkUpdated = n

	res.BulkCreated, err = orm.NewManager(s, handlers.EntityTestCaseRun).Query().BulkCreate(ctx, []*orm.Model{
		{ID: "run-1", Fields: map[string]any{"case": "case-1"}},
		{ID: "run-2", Fields: map[string]any{"case": "case-2"}},
	})
	if err != nil {
		return res, err
	}

	if err := s.Delete(ctx, &orm.Model{Type: handlers.EntityTestCase, ID: "case-3"}); err != nil {
		return res, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.wait(waitCtx); err != nil {
		return res, err
	}

	if pub, ok := a.publisher.(*inmemory.Publisher); ok {
		res.Notifications = len(pub.Messages())
	}

	for _, key := range demoKeys {
		snaps, err := s.ChangeLog(ctx, key.entity, key.id)
		if err != nil {
			return res, err
		}

		res.ChangeLog[string(key.entity)+":"+key.id] = len(snaps)
	}

	return res, nil
}

func printDemo(w io.Writer, res demoResult) {
	fmt.Fprintf(w, "notifications published: %d\n", res.Notifications)
	fmt.Fprintf(w, "bulk updated: %d, bulk created (unsignalled): %d\n", res.BulkUpdated, res.BulkCreated)

	for _, key := range demoKeys {
		k := string(key.entity) + ":" + key.id
		fmt.Fprintf(w, "changelog %s: %d\n", k, res.ChangeLog[k])
	}
}
