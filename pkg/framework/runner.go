package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name used in logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner supervises the goroutines of a process: the link reply worker,
// bridge pipes and transports. When any of them returns, the others are
// canceled.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	lock    sync.Mutex
	errs    AggregatedError
	count   int
	closers []io.Closer
	exitCh  chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{ctx: ctx, cancel: cancel, exitCh: make(chan struct{})}
}

// Context is canceled when the runner stops.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// HandleSignals stops the runner on Ctrl-C or SIGTERM. A second signal
// makes Wait return immediately.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-r.ctx.Done():
			signal.Stop(sigCh)
			return
		}
		glog.Info("stop requested")
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// CloseOnExit registers closers called in reverse order after all
// runnables returned.
func (r *Runner) CloseOnExit(closers ...io.Closer) *Runner {
	r.lock.Lock()
	r.closers = append(r.closers, closers...)
	r.lock.Unlock()
	return r
}

// Go spawns Runnables.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		r.lock.Lock()
		name := strconv.Itoa(r.count)
		r.count++
		r.lock.Unlock()
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		r.wg.Add(1)
		go r.run(name, runner)
	}
	return r
}

func (r *Runner) run(name string, runner Runnable) {
	defer r.wg.Done()
	glog.V(4).Infof("Runner[%s] started", name)
	err := runner.Run(r.ctx)
	if err != nil && !isCanceled(err) {
		glog.Errorf("Runner[%s] failed: %v", name, err)
	}
	glog.V(4).Infof("Runner[%s] stopped", name)
	r.lock.Lock()
	r.errs.Add(err)
	r.lock.Unlock()
	r.cancel()
}

// Stop cancels all runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Wait waits until all Runnables stop, closes the registered closers and
// aggregates errors.
func (r *Runner) Wait() error {
	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-r.exitCh:
		return errForcedExit
	case <-doneCh:
	}
	r.cancel()

	r.lock.Lock()
	defer r.lock.Unlock()
	for n := len(r.closers) - 1; n >= 0; n-- {
		r.errs.Add(r.closers[n].Close())
	}
	r.closers = nil
	return r.errs.Aggregate()
}

// RunWithContext runs a func which doesn't accept a context.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled and must make fn
// return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWithContextCloser closes closer either on cancel or after fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeFn := func() { once.Do(func() { closer.Close() }) }
	err := RunWithContextCancel(ctx, closeFn, fn)
	closeFn()
	return err
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
