package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// drainResult is what one pass over a cursor produced
type drainResult struct {
	ids    []graphd.ID
	slices int  // budget slices used
	eof    bool // the iterator ran out
	cursor string
}

// drain pulls up to limit results (0 for all), giving the iterator a
// fresh budget of step units whenever it suspends. After maxSlices
// suspensions it stops and freezes the iterator instead.
func (s *session) drain(ctx context.Context, text string, step int64, limit, maxSlices int) (*drainResult, error) {
	env, err := s.env()
	if err != nil {
		return nil, err
	}
	it, err := iterator.Thaw(ctx, env, text)
	if err != nil {
		return nil, err
	}
	defer it.Finish()

	res := &drainResult{slices: 1}
	b := iterator.Budget(step)
loop:
	for limit == 0 || len(res.ids) < limit {
		if err := env.CheckDeadline(ctx); err != nil {
			return nil, err
		}
		id, err := it.Next(&b)
		switch {
		case err == nil:
			res.ids = append(res.ids, id)
		case iterator.IsNo(err):
			res.eof = true
			break loop
		case iterator.IsMore(err):
			if maxSlices > 0 && res.slices >= maxSlices {
				break loop
			}
			res.slices++
			b = iterator.Budget(step)
		default:
			return nil, err
		}
	}

	if !res.eof {
		if res.cursor, err = it.Freeze(iterator.FlagAll); err != nil {
			return nil, fmt.Errorf("failed to freeze: %w", err)
		}
	}
	s.logger.Info("cursor drained",
		zap.String("kind", it.Kind()),
		zap.Int("results", len(res.ids)),
		zap.Int("slices", res.slices),
		zap.Bool("eof", res.eof),
		zap.Int64("work", env.Work()))
	return res, nil
}

func newRunCommand(s *session) *cobra.Command {
	var (
		step      int64
		limit     int
		maxSlices int
	)
	cmd := &cobra.Command{
		Use:   "run CURSOR",
		Short: "Thaw a cursor and print its results.",
		Args:  cobra.ExactArgs(1),
		RunE: s.runE(func(cmd *cobra.Command, args []string) error {
			res, err := s.drain(cmd.Context(), args[0], step, limit, maxSlices)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.stdout, NewTableFormatter().FormatPrimitives(s.store, res.ids))
			if res.cursor != "" {
				fmt.Fprintf(s.stdout, "\nresume: %s\n", res.cursor)
			}
			return nil
		}),
	}
	cmd.Flags().Int64Var(&step, "budget", 10000, "Budget per slice, in cost units.")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many results (0 for all).")
	cmd.Flags().IntVar(&maxSlices, "slices", 0, "Stop after this many budget slices (0 for no limit).")
	return cmd
}

func newFreezeCommand(s *session) *cobra.Command {
	var (
		step  int64
		after int
	)
	cmd := &cobra.Command{
		Use:   "freeze CURSOR",
		Short: "Advance a cursor by some results and print the resumable cursor.",
		Args:  cobra.ExactArgs(1),
		RunE: s.runE(func(cmd *cobra.Command, args []string) error {
			res, err := s.drain(cmd.Context(), args[0], step, after, 0)
			if err != nil {
				return err
			}
			if res.eof {
				fmt.Fprintf(s.stdout, "exhausted after %d results\n", len(res.ids))
				return nil
			}
			fmt.Fprintln(s.stdout, res.cursor)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&step, "budget", 10000, "Budget per slice, in cost units.")
	cmd.Flags().IntVar(&after, "after", 1, "Results to consume before freezing.")
	return cmd
}

func newStatsCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stats CURSOR",
		Short: "Run statistics on a cursor and print the estimates.",
		Args:  cobra.ExactArgs(1),
		RunE: s.runE(func(cmd *cobra.Command, args []string) error {
			env, err := s.env()
			if err != nil {
				return err
			}
			it, err := iterator.Thaw(cmd.Context(), env, args[0])
			if err != nil {
				return err
			}
			defer it.Finish()

			slices := 0
			for {
				slices++
				b := iterator.Budget(s.tuning.StatsBudget)
				err := it.Statistics(&b)
				if err == nil {
					break
				}
				if !iterator.IsMore(err) {
					return err
				}
			}
			set, err := it.Freeze(iterator.FlagSet)
			if err != nil {
				return fmt.Errorf("failed to freeze: %w", err)
			}
			fmt.Fprintln(s.stdout, NewTableFormatter().FormatStats(it, set, slices))
			return nil
		}),
	}
}
