// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Raikerian/go-voicerelay/internal/config"
	"github.com/Raikerian/go-voicerelay/internal/voice"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture/opus"
	"github.com/Raikerian/go-voicerelay/pkg/voice/playback"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Err reports a dependency graph error found while building the application.
func (a *Application) Err() error {
	return a.app.Err()
}

// Start runs the OnStart hooks.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Done is signalled when the application asks to shut itself down, for
// example when the trigger source closes.
func (a *Application) Done() <-chan os.Signal {
	return a.app.Done()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// LifecycleParams holds the components started with the application.
type LifecycleParams struct {
	fx.In
	LC         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Cfg        *config.Config
	Logger     *zap.Logger
	Capture    *opus.Service
	Stream     *playback.Stream
	Runner     *voice.Runner
}

// registerLifecycleHooks runs the capture pump, the playback drain and the
// voice runner in one errgroup for the application lifetime.
func registerLifecycleHooks(params LifecycleParams) {
	var (
		cancel context.CancelFunc
		group  *errgroup.Group
		output io.WriteCloser
	)
	logger := params.Logger

	params.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting application: starting capture, playback and voice runner")

			out, err := openOutput(params.Cfg.Playback.OutputPath)
			if err != nil {
				return err
			}
			output = out

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			group, runCtx = errgroup.WithContext(runCtx)

			group.Go(func() error {
				return stopOnError(params, "Capture service", params.Capture.Run(runCtx))
			})
			group.Go(func() error {
				err := playback.Drain(runCtx, params.Stream, output, params.Cfg.Voice.TickInterval)
				return stopOnError(params, "Playback drain", err)
			})
			group.Go(func() error {
				if err := params.Runner.Run(runCtx); err != nil {
					return stopOnError(params, "Voice runner", err)
				}
				if runCtx.Err() == nil {
					logger.Info("Trigger finished, shutting down")
					_ = params.Shutdowner.Shutdown()
				}
				return nil
			})

			logger.Info("Application started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application")
			if cancel == nil {
				return nil
			}
			cancel()

			done := make(chan error, 1)
			go func() { done <- group.Wait() }()

			var err error
			select {
			case err = <-done:
			case <-ctx.Done():
				err = fmt.Errorf("timed out waiting for voice components: %w", ctx.Err())
			}

			if cerr := params.Capture.Close(); cerr != nil {
				logger.Warn("Failed to close capture service", zap.Error(cerr))
			}
			if cerr := output.Close(); cerr != nil {
				logger.Warn("Failed to close playback output", zap.Error(cerr))
			}

			if err != nil {
				logger.Error("Application stopped with error", zap.Error(err))
				return err
			}
			logger.Info("Application stopped successfully",
				zap.Uint64("playback_dropped_samples", params.Stream.Dropped()),
				zap.Int("capture_dropped_packets", params.Capture.Dropped()))
			return nil
		},
	})
}

// stopOnError asks the application to exit when a component failed.
func stopOnError(params LifecycleParams, component string, err error) error {
	if err == nil {
		return nil
	}
	params.Logger.Error(component+" failed", zap.Error(err))
	_ = params.Shutdowner.Shutdown(fx.ExitCode(1))
	return fmt.Errorf("%s: %w", component, err)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput opens the raw playback file, or discards audio when path is empty.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback output: %w", err)
	}
	return f, nil
}
