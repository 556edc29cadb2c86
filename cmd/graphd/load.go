package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wbrown/janus-graphd/graphd"
)

// record is one line of a load file. GUID falls back to a name-derived
// GUID, and Name falls back to the decimal id.
type record struct {
	ID    uint64  `json:"id"`
	GUID  string  `json:"guid,omitempty"`
	Name  string  `json:"name,omitempty"`
	Type  *uint64 `json:"type,omitempty"`
	Right *uint64 `json:"right,omitempty"`
	Left  *uint64 `json:"left,omitempty"`
	Scope *uint64 `json:"scope,omitempty"`
}

func (r record) primitive() (*graphd.Primitive, error) {
	if !graphd.ID(r.ID).Valid() {
		return nil, fmt.Errorf("invalid id %d", r.ID)
	}
	var guid graphd.GUID
	switch {
	case r.GUID != "":
		g, err := graphd.ParseGUID(r.GUID)
		if err != nil {
			return nil, err
		}
		guid = g
	case r.Name != "":
		guid = graphd.NewGUID(r.Name)
	default:
		guid = graphd.NewGUID(strconv.FormatUint(r.ID, 10))
	}

	p := graphd.NewPrimitive(graphd.ID(r.ID), guid)
	links := [graphd.NLinkages]*uint64{
		graphd.LinkType:  r.Type,
		graphd.LinkRight: r.Right,
		graphd.LinkLeft:  r.Left,
		graphd.LinkScope: r.Scope,
	}
	for l, target := range links {
		if target == nil {
			continue
		}
		if !graphd.ID(*target).Valid() {
			return nil, fmt.Errorf("id %d: invalid %s target %d", r.ID, graphd.Linkage(l), *target)
		}
		p.SetLink(graphd.Linkage(l), graphd.ID(*target))
	}
	return p, nil
}

const loadBatch = 1000

func newLoadCommand(s *session, stdin io.Reader) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Load primitives from a JSON-lines file (- for stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: s.runE(func(cmd *cobra.Command, args []string) error {
			in := stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}
			n, err := s.load(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.stdout, "loaded %d primitives, horizon %s\n", n, s.store.Horizon())
			return nil
		}),
	}
}

func (s *session) load(in io.Reader) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var (
		batch []*graphd.Primitive
		total int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.store.Add(batch...); err != nil {
			return fmt.Errorf("failed to add primitives: %w", err)
		}
		total += len(batch)
		s.logger.Debug("batch written", zap.Int("size", len(batch)), zap.Int("total", total))
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line++
		text := sc.Bytes()
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		var r record
		if err := json.Unmarshal(text, &r); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := r.primitive()
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, p)
		if len(batch) >= loadBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, fmt.Errorf("failed to read input: %w", err)
	}
	return total, flush()
}
