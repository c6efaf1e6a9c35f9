package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeStageData(t *testing.T) {
	current := map[string]interface{}{
		"posts":  []interface{}{"a", "b"},
		"source": "reddit",
	}
	update := map[string]interface{}{
		"posts":  []interface{}{"c"},
		"source": "twitter",
		"done":   true,
	}

	merged, err := MergeStageData(current, update)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c"}, merged["posts"])
	assert.Equal(t, "twitter", merged["source"], "newer scalar wins")
	assert.Equal(t, true, merged["done"])
}

func TestMergeStageDataNilCurrent(t *testing.T) {
	merged, err := MergeStageData(nil, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", merged["k"])
}

func TestMergeStageDataEmptyUpdate(t *testing.T) {
	current := map[string]interface{}{"k": "v"}
	merged, err := MergeStageData(current, nil)
	require.NoError(t, err)
	assert.Equal(t, current, merged)
}
