/*
Package main is the entry point for the peerchat application.

It is responsible for loading configuration, initializing the global
logging system, wiring the event bus, connection registry, chat service,
and terminal UI together, starting the transport in the configured role
(server or client), and handling operating system interrupt signals for a
clean shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"peerchat/internal/app/chat"
	"peerchat/internal/app/ui"
	"peerchat/internal/configs"
	"peerchat/internal/netx"
	"peerchat/internal/pkg/events"
	"peerchat/internal/pkg/logx"
)

func main() {
	cfg, err := configs.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "peerchat: %v\n", err)
		os.Exit(1)
	}

	if err := logx.Init(cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "peerchat: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logx.Info("Configuration loaded successfully",
		"host", cfg.Host,
		"port", cfg.Port,
		"serve", cfg.Serve,
		"ssl", cfg.SSL,
	)

	// Cancelled on SIGINT/SIGTERM, and by stop() once the UI exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	registry := netx.NewRegistry(bus)
	appUI := ui.New(bus)
	chat.NewService(cfg, bus, registry, appUI)
	network := netx.NewNetwork(cfg, registry, bus)

	netErr := make(chan error, 1)
	go func() {
		err := network.Run(ctx)
		netErr <- err
		if err != nil {
			// Startup fault: release the terminal so it can be reported.
			appUI.Quit()
		}
	}()

	// A signal should end the UI, not just the transport.
	go func() {
		<-ctx.Done()
		appUI.Quit()
	}()

	uiErr := appUI.Run()

	// The UI has released the terminal; wind down the transport and bus.
	stop()
	err = <-netErr
	bus.Close()

	if err != nil {
		logx.Error(err, "Transport ended with error.")
		fmt.Fprintf(os.Stderr, "peerchat: %v\n", err)
		os.Exit(1)
	}
	if uiErr != nil {
		logx.Error(uiErr, "Terminal UI ended with error.")
		fmt.Fprintf(os.Stderr, "peerchat: %v\n", uiErr)
		os.Exit(1)
	}
}
