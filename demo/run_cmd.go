package demo

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/tracereq/common"
	exitcodes "github.com/twitter/tracereq/common/errors"
	"github.com/twitter/tracereq/common/stats"
	"github.com/twitter/tracereq/config"
	"github.com/twitter/tracereq/dispatcher"
	"github.com/twitter/tracereq/scheduler"
)

type runCmd struct {
	configName string
	workload   Workload
	timeout    time.Duration
	printStats bool
}

func (c *runCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run",
		Short: "Submits a workload and reports how the requests completed",
	}
	r.Flags().StringVar(&c.configName, "config", "default", "configuration name, see the configs command")
	r.Flags().IntVar(&c.workload.Foreground, "foreground", 10, "number of foreground requests")
	r.Flags().IntVar(&c.workload.Background, "background", 10, "number of background requests")
	r.Flags().Int64Var(&c.workload.Block, "block", 1000, "events requested by each request")
	r.Flags().Int64Var(&c.workload.Span, "span", 10000, "requests start at a random index below span")
	r.Flags().IntVar(&c.workload.CancelEvery, "cancel_every", 0, "every Nth request cancels itself halfway, 0 disables")
	r.Flags().Int64Var(&c.workload.Seed, "seed", 1, "seed of the random request windows")
	r.Flags().DurationVar(&c.timeout, "timeout", time.Minute, "cancel outstanding requests after this long")
	r.Flags().BoolVar(&c.printStats, "stats", false, "print the collected stats")
	return r
}

func (c *runCmd) run(cl *cli, cmd *cobra.Command, args []string) error {
	configs, err := config.GetConfigs(c.configName)
	if err != nil {
		return exitcodes.NewError(err, exitcodes.ConfigFailureExitCode)
	}
	log.Infof("Running with %s", configs)

	schedConfig, err := configs.Scheduler.CreateSchedulerConfig()
	if err != nil {
		return exitcodes.NewError(err, exitcodes.ConfigFailureExitCode)
	}
	dispConfig, err := configs.Dispatcher.CreateDispatcherConfig()
	if err != nil {
		return exitcodes.NewError(err, exitcodes.ConfigFailureExitCode)
	}
	src, err := configs.Source.CreateSource()
	if err != nil {
		return exitcodes.NewError(err, exitcodes.ConfigFailureExitCode)
	}
	if schedConfig.DebugMode {
		return exitcodes.NewError(errors.New("the demo needs a running scheduler loop"), exitcodes.ConfigFailureExitCode)
	}

	stat := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry).Precision(time.Millisecond)
	sched := scheduler.NewScheduler(schedConfig, stat.Scope("scheduler"))
	d := dispatcher.NewDispatcher(dispConfig, src, sched, stat.Scope("dispatcher"))

	var res Result
	var g run.Group
	{
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		g.Add(func() error {
			var err error
			res, err = Run(ctx, d, c.workload)
			return err
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))
	}
	runErr := g.Run()

	d.Shutdown()
	drainCtx, cancel := context.WithTimeout(context.Background(), common.DefaultDrainTimeout)
	defer cancel()
	if err := sched.AwaitTermination(drainCtx); err != nil {
		log.Errorf("Scheduler did not drain: %v", err)
	}

	fmt.Fprintf(cl.out, "%s\n", res)
	if c.printStats {
		fmt.Fprintf(cl.out, "%s\n", stat.Render(true))
	}

	switch {
	case runErr != nil:
		if _, ok := runErr.(run.SignalError); ok {
			return exitcodes.NewError(runErr, exitcodes.InterruptedExitCode)
		}
		if errors.Cause(runErr) == context.DeadlineExceeded {
			return exitcodes.NewError(errors.Wrapf(runErr, "workload did not finish within %s", c.timeout),
				exitcodes.RequestTimeoutExitCode)
		}
		return runErr
	case res.Failed > 0:
		return exitcodes.NewError(errors.Wrapf(res.FirstFailure, "%d requests failed", res.Failed),
			exitcodes.RequestFailedExitCode)
	case c.workload.CancelEvery == 0 && res.Cancelled > 0:
		return exitcodes.NewError(errors.Errorf("%d requests were cancelled", res.Cancelled),
			exitcodes.RequestCancelledExitCode)
	}
	return nil
}
