package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Worker defines a background job.
type Worker interface {
	Start(ctx context.Context)
	Name() string
}

// specParser accepts six-field expressions (with seconds) and descriptors
// such as @daily.
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// BaseWorker provides common scheduling infrastructure.
type BaseWorker struct {
	name string
	log  *slog.Logger
}

func NewBaseWorker(name string, log *slog.Logger) BaseWorker {
	return BaseWorker{
		name: name,
		log:  log.With("worker", name),
	}
}

// Name returns the worker name.
func (w *BaseWorker) Name() string {
	return w.name
}

// Schedule runs work once, then on every tick of spec until ctx is
// cancelled. A tick that fires while the previous run is still going is
// skipped. Schedule blocks until in-flight work has finished.
func (w *BaseWorker) Schedule(ctx context.Context, spec string, work func(context.Context) error) {
	logger := cronLogger{log: w.log}
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { w.run(ctx, work) }); err != nil {
		w.log.Error("invalid schedule", "spec", spec, "err", err)
		return
	}

	w.log.Info("worker started", "schedule", spec)

	// Run immediately on start
	w.run(ctx, work)

	c.Start()
	<-ctx.Done()
	w.log.Info("worker stopping")
	<-c.Stop().Done()
}

func (w *BaseWorker) run(ctx context.Context, work func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	if err := work(ctx); err != nil {
		w.log.Error("worker error", "err", err)
	}
}

// ValidateSchedule reports whether spec parses.
func ValidateSchedule(spec string) error {
	_, err := specParser.Parse(spec)
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
