package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-graphd/graphd"
)

func TestWriteTestGraph(t *testing.T) {
	c := TestGraphConfig{NumTypes: 3, NumTargets: 4, NumSources: 40}

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			n, err := WriteTestGraph(store, c)
			require.NoError(t, err)
			assert.Equal(t, 47, n)
			assert.Equal(t, graphd.ID(47), store.Horizon())

			lines, err := TestGraphStats(store, c)
			require.NoError(t, err)
			assert.Equal(t, []string{
				"horizon: 47",
				"left fan-in of target 3: 8",
				"instances of type 1: 13",
				"vip left=3 type=1: 3",
			}, lines)
		})
	}

	_, err := WriteTestGraph(NewMemoryStore(), TestGraphConfig{})
	assert.Error(t, err)
}
