// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes Fx container events and prints into a zap logger
// using structured fields. Successful wiring steps go to Debug so a normal
// start only shows lifecycle milestones.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates an fxevent.Logger backed by logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// NewFxPrinter creates an fx.Printer backed by logger.
func NewFxPrinter(logger *zap.Logger) fx.Printer {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (p *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		p.logger.Debug("OnStart hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		p.hookResult("OnStart", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		p.logger.Debug("OnStop hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStopExecuted:
		p.hookResult("OnStop", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		p.result("Supplied", e.Err, zap.String("type", e.TypeName), moduleField(e.ModuleName))
	case *fxevent.Provided:
		p.result("Provided", e.Err,
			zap.Strings("types", e.OutputTypeNames),
			zap.String("constructor", e.ConstructorName),
			moduleField(e.ModuleName))
	case *fxevent.Decorated:
		p.result("Decorated", e.Err,
			zap.Strings("types", e.OutputTypeNames),
			zap.String("decorator", e.DecoratorName),
			moduleField(e.ModuleName))
	case *fxevent.Invoking:
		p.logger.Debug("Invoking", zap.String("function", e.FunctionName), moduleField(e.ModuleName))
	case *fxevent.Invoked:
		p.result("Invoked", e.Err, zap.String("function", e.FunctionName), moduleField(e.ModuleName))
	case *fxevent.Stopping:
		p.logger.Info("Received signal", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		p.milestone("Stopped", e.Err)
	case *fxevent.RollingBack:
		p.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		p.milestone("Rolled back", e.Err)
	case *fxevent.Started:
		p.milestone("Started", e.Err)
	case *fxevent.LoggerInitialized:
		p.result("Logger initialized", e.Err, zap.String("constructor", e.ConstructorName))
	default:
		p.logger.Debug("Unhandled Fx event", zap.String("event", fmt.Sprintf("%T", event)))
	}
}

// Printf implements fx.Printer.
func (p *FxLoggerAdapter) Printf(format string, args ...any) {
	p.logger.Info(fmt.Sprintf(format, args...))
}

func (p *FxLoggerAdapter) hookResult(hook, callee, caller, runtime string, err error) {
	fields := []zap.Field{zap.String("callee", callee), zap.String("caller", caller)}
	if err != nil {
		p.logger.Error(hook+" hook failed", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Debug(hook+" hook executed", append(fields, zap.String("runtime", runtime))...)
}

// result logs a wiring step at Debug, or at Error when it failed.
func (p *FxLoggerAdapter) result(msg string, err error, fields ...zap.Field) {
	if err != nil {
		p.logger.Error(msg+" failed", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Debug(msg, fields...)
}

// milestone logs an application lifecycle step at Info.
func (p *FxLoggerAdapter) milestone(msg string, err error) {
	if err != nil {
		p.logger.Error(msg+" with error", zap.Error(err))
		return
	}
	p.logger.Info(msg)
}

func moduleField(name string) zap.Field {
	if name == "" {
		return zap.Skip()
	}
	return zap.String("module", name)
}
