/*
hellodog opens a window and renders a small textured scene through an
offscreen pass followed by a post-processing pass.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine"
	"github.com/spaghettifunk/hellodog/engine/core"
)

func main() {
	if err := run(); err != nil {
		core.LogFatal("%+v", err)
	}
}

func run() error {
	config, err := engine.LoadApplicationConfig()
	if err != nil {
		return err
	}
	if err := core.SetLogLevel(config.LogLevel); err != nil {
		return err
	}

	e, err := engine.New(config)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A signal cancels loading or ends the frame loop; the main goroutine
	// does the cleanup.
	go func() {
		select {
		case sig := <-sigCh:
			core.LogInfo("Received %s, stopping.", sig)
			cancel()
			e.Stop()
		case <-ctx.Done():
		}
	}()

	if err := e.Initialize(ctx); err != nil {
		return errors.CombineErrors(err, e.Shutdown())
	}

	err = e.Run()
	return errors.CombineErrors(err, e.Shutdown())
}
