package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wbrown/janus-graphd/graphd"
)

// TestGraphConfig specifies what kind of test graph to build
type TestGraphConfig struct {
	NumTypes   int    // Number of type primitives sources are spread over
	NumTargets int    // Number of link targets
	NumSources int    // Number of typed sources pointing at targets
	OutputPath string // Where to store the database
}

// DefaultGraphConfig returns a small graph for profiling
// Size: 5 types, 50 targets, 5,000 sources
func DefaultGraphConfig() TestGraphConfig {
	return TestGraphConfig{
		NumTypes:   5,
		NumTargets: 50,
		NumSources: 5000,
		OutputPath: "testdata/graph_default.db",
	}
}

// MediumGraphConfig returns a medium-sized graph for profiling
// Size: 20 types, 1,000 targets, 200,000 sources
func MediumGraphConfig() TestGraphConfig {
	return TestGraphConfig{
		NumTypes:   20,
		NumTargets: 1000,
		NumSources: 200000,
		OutputPath: "testdata/graph_medium.db",
	}
}

// LargeGraphConfig returns a large graph for stress testing
func LargeGraphConfig() TestGraphConfig {
	return TestGraphConfig{
		NumTypes:   100,
		NumTargets: 20000,
		NumSources: 5000000,
		OutputPath: "testdata/graph_large.db",
	}
}

// Id layout of a test graph: types first, then targets, then sources
func (c TestGraphConfig) typeID(i int) graphd.ID   { return graphd.ID(i) }
func (c TestGraphConfig) targetID(i int) graphd.ID { return graphd.ID(c.NumTypes + i) }
func (c TestGraphConfig) sourceID(i int) graphd.ID {
	return graphd.ID(c.NumTypes + c.NumTargets + i)
}

// TargetType is the type all targets carry
func (c TestGraphConfig) TargetType() graphd.ID { return c.typeID(0) }

// generateGraph creates the primitives of a test graph. Source i has
// type i%NumTypes, points left at target i%NumTargets and right at a
// target spread by a different stride. Every tenth source has no left.
func generateGraph(c TestGraphConfig) []*graphd.Primitive {
	prims := make([]*graphd.Primitive, 0, c.NumTypes+c.NumTargets+c.NumSources)
	for i := 0; i < c.NumTypes; i++ {
		prims = append(prims, graphd.NewPrimitive(c.typeID(i), graphd.NewGUID(fmt.Sprintf("type/%d", i))))
	}
	for i := 0; i < c.NumTargets; i++ {
		p := graphd.NewPrimitive(c.targetID(i), graphd.NewGUID(fmt.Sprintf("target/%d", i)))
		prims = append(prims, p.SetLink(graphd.LinkType, c.TargetType()))
	}
	for i := 0; i < c.NumSources; i++ {
		p := graphd.NewPrimitive(c.sourceID(i), graphd.NewGUID(fmt.Sprintf("source/%d", i)))
		p.SetLink(graphd.LinkType, c.typeID(i%c.NumTypes))
		if i%10 != 0 {
			p.SetLink(graphd.LinkLeft, c.targetID(i%c.NumTargets))
		}
		p.SetLink(graphd.LinkRight, c.targetID((i*7+3)%c.NumTargets))
		prims = append(prims, p)
	}
	return prims
}

// WriteTestGraph writes a test graph into store in batches
func WriteTestGraph(store Store, c TestGraphConfig) (int, error) {
	if c.NumTypes < 1 || c.NumTargets < 1 {
		return 0, fmt.Errorf("test graph needs at least one type and one target")
	}
	prims := generateGraph(c)

	// Badger transactions grow with every index entry; keep them small
	batchSize := 5000
	for start := 0; start < len(prims); start += batchSize {
		end := start + batchSize
		if end > len(prims) {
			end = len(prims)
		}
		if err := store.Add(prims[start:end]...); err != nil {
			return start, fmt.Errorf("failed to add batch %d-%d: %w", start, end, err)
		}
	}
	return len(prims), nil
}

// BuildTestGraph creates a pre-populated BadgerDB for benchmarking
func BuildTestGraph(c TestGraphConfig) (*BadgerStore, error) {
	if err := os.RemoveAll(c.OutputPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store, err := NewBadgerStore(c.OutputPath)
	if err != nil {
		return nil, err
	}
	if _, err := WriteTestGraph(store, c); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// TestGraphStats reports index sizes of a built graph, one line per entry
func TestGraphStats(store Store, c TestGraphConfig) ([]string, error) {
	target := c.targetID(0)
	fanIn, err := store.FanInCount(graphd.LinkLeft, target)
	if err != nil {
		return nil, err
	}
	typed, err := store.FanInCount(graphd.LinkType, c.typeID(1%c.NumTypes))
	if err != nil {
		return nil, err
	}
	vip, err := store.VIPCount(graphd.LinkLeft, target, c.typeID(1%c.NumTypes))
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("horizon: %s", store.Horizon()),
		fmt.Sprintf("left fan-in of target %s: %d", target, fanIn),
		fmt.Sprintf("instances of type %s: %d", c.typeID(1%c.NumTypes), typed),
		fmt.Sprintf("vip left=%s type=%s: %d", target, c.typeID(1%c.NumTypes), vip),
	}, nil
}
