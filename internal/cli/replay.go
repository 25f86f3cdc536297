package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/govm/internal/config"
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/internal/scheduler"
	"github.com/me/govm/internal/script"
	"github.com/me/govm/internal/store"
	"github.com/me/govm/pkg/model"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	configPath string
	async      bool
	maxTicks   int
	journal    string
	quiet      bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Run an instruction script through a local scheduler",
		Long: `Replay feeds each batch of the script to a local scheduler ahead of one
tick and keeps ticking until nothing is left in flight. By default every
package completes right after the tick that launched it, so the trace is
deterministic. With --async, packages run on local kernels in real time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}
			cfg := config.Default()
			if opts.configPath != "" {
				if cfg, err = config.Load(opts.configPath); err != nil {
					return err
				}
			}
			if opts.journal == "" {
				opts.journal = cfg.Journal.Path
			}
			sum, err := runReplay(cmd.Context(), cmd.OutOrStdout(), s, cfg, opts)
			if sum != nil {
				sum.print(cmd.OutOrStdout())
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file with the unit topology (default: one cpu unit)")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Run packages on local kernels instead of completing them after each tick")
	cmd.Flags().IntVar(&opts.maxTicks, "max-ticks", 10000, "Give up after this many ticks")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "Write the dispatch journal to this SQLite file")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print only the summary")
	return cmd
}

// traceJournal collects the packages launched during the current tick and
// forwards every record to an optional durable journal.
type traceJournal struct {
	next     scheduler.Journal
	tick     []*model.PackageRecord
	launched int
	failed   int
	idle     int
}

func (j *traceJournal) RecordLaunch(ctx context.Context, rec *model.PackageRecord) error {
	j.tick = append(j.tick, rec)
	j.launched++
	if j.next != nil {
		return j.next.RecordLaunch(ctx, rec)
	}
	return nil
}

func (j *traceJournal) RecordRelease(ctx context.Context, id string, tick uint64, failure string) error {
	if failure != "" {
		j.failed++
	}
	if j.next != nil {
		return j.next.RecordRelease(ctx, id, tick, failure)
	}
	return nil
}

func (j *traceJournal) RecordIdle(ctx context.Context, ev *model.IdleEvent) error {
	j.idle++
	if j.next != nil {
		return j.next.RecordIdle(ctx, ev)
	}
	return nil
}

func (j *traceJournal) drain() []*model.PackageRecord {
	out := j.tick
	j.tick = nil
	return out
}

type replaySummary struct {
	ticks        uint64
	instructions int
	packages     int
	failed       int
	idle         int
	elapsed      time.Duration
}

func (s *replaySummary) print(w io.Writer) {
	fmt.Fprintf(w, "%s instructions, %s packages (%s failed) in %s ticks, %s idle events, %s\n",
		humanize.Comma(int64(s.instructions)), humanize.Comma(int64(s.packages)), humanize.Comma(int64(s.failed)),
		humanize.Comma(int64(s.ticks)), humanize.Comma(int64(s.idle)), s.elapsed.Round(time.Millisecond))
}

// runReplay drives a scheduler over s until it is idle. Each launched
// package is written to out as one line.
func runReplay(ctx context.Context, out io.Writer, s *script.Script, cfg config.Config, opts replayOptions) (*replaySummary, error) {
	start := time.Now()
	trace := &traceJournal{}

	if opts.journal != "" {
		st, err := store.NewSQLiteStore(opts.journal, logger)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		trace.next = st
	}

	reg := executor.NewRegistry(logger)
	var manual []*executor.ManualExecutor
	kernels := executor.NewKernels()
	for _, u := range cfg.Units {
		if opts.async {
			local := executor.NewLocalExecutor(u.Type, kernels, logger)
			defer local.Close()
			reg.Register(local)
			continue
		}
		m := executor.NewManualExecutor(u.Type)
		manual = append(manual, m)
		reg.Register(m)
	}

	sched, err := scheduler.New(scheduler.Config{
		Units:               cfg.Units,
		MaxWaitingPerObject: cfg.Scheduler.MaxWaitingPerObject,
		MaxInbound:          cfg.Scheduler.MaxInbound,
	}, reg, logger, scheduler.WithJournal(trace))
	if err != nil {
		return nil, err
	}

	sum := &replaySummary{instructions: s.Len()}
	finish := func() *replaySummary {
		sum.ticks = sched.Snapshot().Tick
		sum.packages = trace.launched
		sum.failed = trace.failed
		sum.idle = trace.idle
		sum.elapsed = time.Since(start)
		return sum
	}

	for i := 0; ; i++ {
		if i >= opts.maxTicks {
			return finish(), fmt.Errorf("not idle after %d ticks", opts.maxTicks)
		}
		if i < len(s.Ticks) {
			sched.Receive(s.Ticks[i].Messages)
		} else if sched.Idle() {
			break
		}
		if err := sched.Tick(ctx); err != nil {
			return finish(), err
		}
		if !opts.quiet {
			tick := sched.Snapshot().Tick
			for _, rec := range trace.drain() {
				fmt.Fprintf(out, "tick %-4d %-10s %s\n", tick, rec.Unit, strings.Join(rec.InstructionIDs, " "))
			}
		} else {
			trace.drain()
		}

		if opts.async {
			time.Sleep(cfg.Scheduler.TickInterval)
			continue
		}
		for _, m := range manual {
			m.CompleteAll()
		}
	}
	return finish(), nil
}
