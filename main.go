// Package main provides the entry point for the push-to-talk voice relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/Raikerian/go-voicerelay/internal/app"
	"github.com/Raikerian/go-voicerelay/internal/config"
	"github.com/Raikerian/go-voicerelay/internal/infrastructure"
	"github.com/Raikerian/go-voicerelay/internal/observe"
	"github.com/Raikerian/go-voicerelay/internal/trigger"
	"github.com/Raikerian/go-voicerelay/internal/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,
		observe.Module,

		// Application modules
		trigger.Module,
		voice.Module,

		fx.Supply(*configPath),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
	)
	if err := application.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build application: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	err := application.Start(startCtx)
	cancelStart()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start application: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal arrives or the application shuts itself down
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)
	case <-application.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
