// Package main provides the statecore CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/statecore/internal/cache"
	"github.com/joss/statecore/internal/config"
	"github.com/joss/statecore/internal/detach"
	"github.com/joss/statecore/internal/durable"
	"github.com/joss/statecore/internal/history"
	"github.com/joss/statecore/internal/metrics"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/relation"
	"github.com/joss/statecore/internal/render"
	"github.com/joss/statecore/internal/session"
)

var version = "0.1.0"

// app wires the store components for one CLI invocation.
type app struct {
	db        *durable.SQLite
	queue     *detach.Queue
	metrics   *metrics.Metrics
	sessions  *session.Manager
	history   *history.Manager
	relations *relation.Store
	renderer  *render.Renderer
}

// newApp opens the durable store and wires the managers.
func newApp(ctx context.Context) (*app, error) {
	env := config.Get()

	if err := config.EnsureDir(config.Home()); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	db, err := durable.Open(env.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	m := metrics.New()
	h := obs.New("statecore", m)
	queue := detach.NewQueue(h.For("detach"), env.QueueDepth, int64(env.QueueWorkers))
	queue.Start(ctx)

	mem := cache.NewMemory()
	return &app{
		db:        db,
		queue:     queue,
		metrics:   m,
		sessions:  session.NewManager(mem, db, queue, h.For("session")),
		history:   history.NewManager(mem, db, queue, h.For("history")),
		relations: relation.NewStore(db, h.For("relation")),
		renderer:  render.New(env.Pretty),
	}, nil
}

// close drains pending detached writes and releases the store.
func (a *app) close() {
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.queue.Drain(drainCtx)
	a.queue.Stop()
	a.db.Close()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "statecore",
		Short: "Dual-tier session and conversation-state store",
		Long: `statecore: session lifecycle and append-only message history over a
fast cache tier and a durable record-of-truth store.

Use 'statecore serve' to run the store with its metrics endpoint.
Use 'statecore session' and 'statecore history' to inspect state.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(relationCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
