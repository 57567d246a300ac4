package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/statecore/internal/config"
	"github.com/joss/statecore/internal/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the store with its metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			env := config.Get()
			srv := metrics.NewServer(a.metrics, env.MetricsPort)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("start metrics server: %w", err)
			}
			fmt.Printf("statecore serving, metrics on :%d\n", env.MetricsPort)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			fmt.Println("shutting down")
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			return srv.Stop(stopCtx)
		},
	}
}
