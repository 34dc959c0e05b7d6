package deploy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/specialistvlad/stepship/internal/clock"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/listener"
)

// DefaultPollInterval is how often the tracker asks for a fresh snapshot.
const DefaultPollInterval = time.Second

// ErrDeploymentFailed is returned when the deployment ends in the failed
// status.
var ErrDeploymentFailed = errors.New("deployment failed")

// Tracker follows a deployment on the status feed until it reaches a
// terminal status.
//
// Snapshots arrive from two goroutines, the push forwarder and the poller,
// over one channel. A single loop consumes them, so listener callbacks are
// never concurrent.
type Tracker struct {
	Feed         Feed
	Clock        clock.Clock
	PollInterval time.Duration

	// DefaultOutputs is reported on completion when the deployment carries
	// no outputs of its own.
	DefaultOutputs map[string]string
}

// Track blocks until the deployment completes, fails or ctx is cancelled.
// It returns the last snapshot seen.
func (t *Tracker) Track(ctx context.Context, deploymentID string, l listener.DeployListener) (status.DeployData, error) {
	if l == nil {
		l = listener.Nop{}
	}
	clk := t.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := t.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := ctxlog.FromContext(ctx).With("deployment", deploymentID)

	sub, err := t.Feed.Subscribe(ctx, EntityDeployment, deploymentID, FieldData)
	if err != nil {
		return status.DeployData{}, fmt.Errorf("subscribe to deployment %s: %w", deploymentID, err)
	}
	var closeOnce sync.Once
	closeSub := func() {
		closeOnce.Do(func() {
			if err := sub.Close(); err != nil {
				logger.Debug("Closing subscription failed.", "error", err)
			}
		})
	}
	defer closeSub()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	stop := func() {
		cancel()
		wg.Wait()
		closeSub()
	}
	defer stop()

	snapshots := make(chan status.DeployData)
	send := func(d status.DeployData) bool {
		select {
		case snapshots <- d:
			return true
		case <-runCtx.Done():
			return false
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case d := <-sub.Updates():
				if !send(d) {
					return
				}
			case <-runCtx.Done():
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		ticker := clk.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d, ok, err := sub.Fetch(runCtx)
				if err != nil {
					logger.Debug("Poll failed.", "error", err)
					continue
				}
				if ok && !send(d) {
					return
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	var current status.DeployData
	for {
		select {
		case d := <-snapshots:
			current = status.Merge(current, d)
			l.OnDeployProgress(current)
			if !current.Status.IsTerminal() {
				continue
			}
			stop()
			logger.Debug("Deployment reached a terminal status.", "status", current.Status)
			return current, t.finish(current, l)
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}

func (t *Tracker) finish(d status.DeployData, l listener.DeployListener) error {
	if d.Status == status.Failed {
		msg := d.Error
		if msg == "" {
			msg = "Deployment failed"
		}
		l.OnDeployError(msg)
		return fmt.Errorf("%w: %s", ErrDeploymentFailed, msg)
	}

	outputs := d.Outputs
	if len(outputs) == 0 {
		outputs = maps.Clone(t.DefaultOutputs)
	}
	l.OnDeployEnd(outputs)
	return nil
}
