package demo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	exitcodes "github.com/twitter/tracereq/common/errors"
	"github.com/twitter/tracereq/dispatcher"
	"github.com/twitter/tracereq/scheduler"
	"github.com/twitter/tracereq/source/memory"
)

func newDispatcher(n int64, mc memory.Config) (*dispatcher.Dispatcher, *scheduler.Scheduler) {
	sched := scheduler.NewScheduler(scheduler.Config{SliceSize: 50}, nil)
	d := dispatcher.NewDispatcher(dispatcher.Config{BackgroundDelay: 10 * time.Millisecond},
		memory.Synthetic("t", n, 0, 1, mc), sched, nil)
	return d, sched
}

func TestRunWorkload(t *testing.T) {
	d, sched := newDispatcher(5000, memory.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := Workload{Foreground: 5, Background: 5, Block: 100, Span: 1000, CancelEvery: 5, Seed: 7}
	res, err := Run(ctx, d, w)
	assert.Nil(t, err)
	assert.Equal(t, 8, res.OK)
	assert.Equal(t, 2, res.Cancelled)
	assert.Equal(t, 0, res.Failed)
	assert.True(t, res.Passes >= 2 && res.Passes <= 10, res.String())
	assert.True(t, res.Events >= 8*100+2*50, res.String())

	d.Shutdown()
	assert.Nil(t, sched.AwaitTermination(ctx))
}

func TestRunWorkloadFailure(t *testing.T) {
	d, _ := newDispatcher(5000, memory.Config{FailAtRank: 10})
	defer d.Shutdown()
	res, err := Run(context.Background(), d, Workload{Foreground: 1, Block: 100, Span: 1})
	assert.Nil(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, memory.ErrInjected, errors.Cause(res.FirstFailure))
}

func TestRunWorkloadTimeout(t *testing.T) {
	d, _ := newDispatcher(200000, memory.Config{EventsPerSecond: 1000})
	defer d.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, d, Workload{Foreground: 1, Block: 100000, Span: 1})
	assert.Equal(t, context.DeadlineExceeded, err)
}

func execCLI(args ...string) (string, error) {
	out := &bytes.Buffer{}
	c := NewCLI(out).(*cli)
	c.rootCmd.SetArgs(args)
	err := c.Exec()
	return out.String(), err
}

func TestConfigsCommand(t *testing.T) {
	out, err := execCLI("configs", "--log_level", "error")
	assert.Nil(t, err)
	assert.Contains(t, out, "interactive:")
	assert.Contains(t, out, "SchedulerJSONConfig: Type: sliced, SliceSize: 1000")
}

func TestRunCommand(t *testing.T) {
	out, err := execCLI("run", "--log_level", "error", "--config", "interactive",
		"--foreground", "3", "--background", "2", "--block", "200", "--span", "2000")
	assert.Nil(t, err)
	assert.Contains(t, out, "ok: 5, failed: 0, cancelled: 0, events: 1000")

	_, err = execCLI("run", "--log_level", "error", "--config", "nope")
	assert.Equal(t, exitcodes.ConfigFailureExitCode, exitcodes.ExitCodeOf(err))

	_, err = execCLI("run", "--log_level", "loud")
	assert.NotNil(t, err)
}
