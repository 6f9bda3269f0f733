// Command kproc boots the kernel core on a simulated machine and runs an
// interactive console over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viant/kproc"
)

func main() {
	configURL := flag.String("config", "", "configuration URL (file, mem:// or any afs scheme)")
	demo := flag.Int("demo", 0, "spawn n processes, run 3 quanta and exit")
	run := flag.Bool("run", false, "drive the timer in the background")
	flag.Parse()

	config := kproc.DefaultConfig()
	if *configURL != "" {
		var err error
		if config, err = kproc.LoadConfig(context.Background(), *configURL); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	level, _ := config.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("module", "kproc")

	srv, err := kproc.New(kproc.WithConfig(config), kproc.WithLogger(logger))
	if err != nil {
		logger.Error("failed to boot", "error", err)
		os.Exit(1)
	}
	rt := srv.Runtime()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	}()

	c := newConsole(rt, config, os.Stdout)
	if *demo > 0 {
		if err = c.demo(*demo); err != nil {
			logger.Error("demo failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if *run {
		if err = rt.Start(context.Background()); err != nil {
			logger.Error("failed to start timer", "error", err)
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		c.run(os.Stdin)
		close(done)
	}()
	select {
	case <-done:
	case <-sigChan:
		fmt.Println()
	}
	logger.Info("shutting down", "ticks", rt.Stats().Ticks)
}
