// Command kernelsim boots the scheduler core, runs a demonstration
// workload, and prints the resulting thread execution trace.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nmxmxh/corekernel/kernel/sched"
)

type Options struct {
	General struct {
		MLFQS    bool   `long:"mlfqs" description:"Use the multi-level feedback queue scheduler instead of strict priority with donation"`
		Ticks    int    `long:"ticks" default:"200" description:"Number of timer ticks to simulate"`
		Pages    int    `long:"pages" default:"64" description:"Number of pages available for thread stacks"`
		Scenario string `long:"scenario" default:"donation" description:"Demonstration scenario to run: donation, priority, nice"`
		Metrics  string `long:"metrics-addr" optional:"yes" optional-value:"127.0.0.1:9090" description:"If set, serve Prometheus metrics on this address instead of exiting"`
		Verbose  bool   `short:"v" long:"verbose" description:"Enable debug-level logging"`
	} `group:"General Options"`
}

func main() {
	log.SetFlags(0)

	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("kernelsim: invalid arguments: %s", err)
	}

	logger := newLogger(opts.General.Verbose)
	defer logger.Sync()

	k := sched.New(sched.BootConfig{
		PolicyMLFQS:  opts.General.MLFQS,
		PageCapacity: opts.General.Pages,
	}, logger)

	if err := k.Start(); err != nil {
		logger.Fatal("failed to start idle thread", zap.Error(err))
	}

	if opts.General.Metrics != "" {
		go serveMetrics(k, opts.General.Metrics, logger)
	}

	trace := newTrace()
	if err := runScenario(k, opts.General.Scenario, trace); err != nil {
		logger.Fatal("scenario failed", zap.Error(err))
	}

	for i := 0; i < opts.General.Ticks; i++ {
		k.Tick()
	}

	fmt.Println(strings.Join(trace.lines, "\n"))

	if opts.General.Metrics != "" {
		select {} // keep serving /metrics until killed
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("kernelsim: failed to build logger: %s", err)
	}
	return logger
}

func serveMetrics(k *sched.Kernel, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(k.Registry(), promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

// trace records a human-readable execution log for the demo scenario.
type trace struct {
	lines []string
}

func newTrace() *trace { return &trace{} }

func (t *trace) log(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func runScenario(k *sched.Kernel, name string, tr *trace) error {
	switch name {
	case "donation":
		return runDonationScenario(k, tr)
	case "priority":
		return runPriorityScenario(k, tr)
	case "nice":
		return runNiceScenario(k, tr)
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

// yieldUntil repeatedly yields the calling thread (the simulation
// driver) so every other ready thread gets a turn, until cond reports
// true. A scenario with more than one worker thread must not wait on a
// raw channel as its only synchronization: once the driver is resumed
// mid-scenario it is no longer on the ready list, and if it then blocks
// outside a scheduler call instead of yielding, any thread still
// waiting its turn is never dispatched again.
func yieldUntil(k *sched.Kernel, cond func() bool) {
	for !cond() {
		k.Yield()
	}
}

// runDonationScenario demonstrates priority donation: a low-priority
// thread holds a lock a high-priority thread then blocks on, raising
// the low-priority thread's effective priority until it releases.
// "low" runs at the driver's own priority, so after taking the lock it
// yields back to the driver, which then creates "high".
func runDonationScenario(k *sched.Kernel, tr *trace) error {
	var l sched.Lock
	l.Init(k)

	finished := 0

	_, err := k.Create("low", sched.PriDefault, func(t *sched.Thread, _ any) {
		l.Acquire()
		tr.log("low: acquired lock at effective priority %d", t.EffectivePriority())
		k.Yield()
		tr.log("low: releasing lock at effective priority %d", t.EffectivePriority())
		l.Release()
		finished++
	}, nil)
	if err != nil {
		return err
	}

	_, err = k.Create("high", sched.PriMax-1, func(t *sched.Thread, _ any) {
		l.Acquire()
		tr.log("high: acquired lock at priority %d", t.EffectivePriority())
		l.Release()
		finished++
	}, nil)
	if err != nil {
		return err
	}

	yieldUntil(k, func() bool { return finished == 2 })
	return nil
}

// runPriorityScenario demonstrates strict priority preemption without
// donation: threads of increasing priority are created and each should
// run to completion before the one that created it resumes.
func runPriorityScenario(k *sched.Kernel, tr *trace) error {
	finished := 0
	for i, pri := range []int{sched.PriDefault, sched.PriDefault + 5, sched.PriDefault + 10} {
		name := fmt.Sprintf("worker-%d", i)
		_, err := k.Create(name, pri, func(t *sched.Thread, _ any) {
			tr.log("%s: running at priority %d", t.Name(), t.EffectivePriority())
			finished++
		}, nil)
		if err != nil {
			return err
		}
	}
	yieldUntil(k, func() bool { return finished == 3 })
	return nil
}

// runNiceScenario shows how niceness sets MLFQS priority: each thread
// sets its niceness once and logs the priority it then runs at. Under
// --mlfqs, SetNice recomputes priority at once, so the nice=-10 thread
// logs a higher priority than the nice=10 one; without --mlfqs both log
// their creation priority. Neither thread keeps running after its log
// line.
func runNiceScenario(k *sched.Kernel, tr *trace) error {
	finished := 0
	for _, nice := range []int{-10, 10} {
		n := nice
		_, err := k.Create(fmt.Sprintf("nice-%d", n), sched.PriDefault, func(t *sched.Thread, _ any) {
			k.SetNice(n)
			tr.log("thread with nice=%d starts at priority %d", n, t.EffectivePriority())
			finished++
		}, nil)
		if err != nil {
			return err
		}
	}
	yieldUntil(k, func() bool { return finished == 2 })
	return nil
}
