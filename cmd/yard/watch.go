package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/notify"
	"github.com/zulandar/modelyard/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		flags    clientFlags
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report registry changes on a schedule",
		Long: "Polls the model registry on a cron schedule and reports newly registered, deployed and " +
			"removed models. Reports also go to the configured Slack and Discord webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, &flags, schedule)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", "5-field cron expression (overrides watch.schedule)")
	return cmd
}

func runWatch(cmd *cobra.Command, flags *clientFlags, schedule string) error {
	e, err := flags.load(cmd)
	if err != nil {
		return err
	}
	if schedule == "" {
		schedule = e.cfg.Watch.Schedule
	}
	s, err := e.session("", nil)
	if err != nil {
		return err
	}
	n, err := notify.FromConfig(e.cfg.Notify, e.log)
	if err != nil {
		return err
	}
	w, err := watch.New(watch.Opts{
		Source:   s.Registry,
		Notifier: n,
		Schedule: schedule,
		Logger:   e.log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	next, _ := watch.NextDuration(schedule, time.Now())
	fmt.Fprintf(out, "Watching %s on %q (next poll in %s). Ctrl+C to stop.\n", e.client.BaseURL(), schedule, next.Round(time.Second))
	for ev := range w.Run(ctx) {
		printEvent(out, ev)
	}
	return nil
}

func printEvent(w io.Writer, ev console.Event) {
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(w, "[%s] %s %s: %s\n", ts, ev.Kind, ev.JobID, ev.Message)
}
