package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMany_SkipsMalformedItems(t *testing.T) {
	items := []RawDefinition{
		{Text: []byte("name: alpha\nsteps: []"), Locator: "alpha.yaml"},
		{Text: []byte("description: no name here"), Locator: "broken.yaml"},
		{Text: []byte("name: beta"), Locator: "beta.yaml"},
	}

	result := NewLoader(testLogger()).LoadMany(items)

	require.Len(t, result, 2)
	assert.Equal(t, "alpha.yaml", result["alpha"].SourceLocator)
	assert.Equal(t, "beta.yaml", result["beta"].SourceLocator)
}

func TestLoadMany_LastDefinitionWins(t *testing.T) {
	items := []RawDefinition{
		{Text: []byte("name: dup\ndescription: first"), Locator: "1.yaml"},
		{Text: []byte("name: other"), Locator: "2.yaml"},
		{Text: []byte("name: dup\ndescription: second"), Locator: "3.yaml"},
	}

	// ordering must hold regardless of how many run in parallel
	for _, n := range []int{1, 2, 8} {
		result := NewLoader(testLogger(), WithConcurrency(n)).LoadMany(items)
		require.Len(t, result, 2)
		assert.Equal(t, "second", result["dup"].Description)
		assert.Equal(t, "3.yaml", result["dup"].SourceLocator)
	}
}

func TestLoadMany_Large(t *testing.T) {
	var items []RawDefinition
	for i := range 50 {
		items = append(items, RawDefinition{
			Text:    []byte(fmt.Sprintf("name: wf-%d", i)),
			Locator: fmt.Sprintf("%d.yaml", i),
		})
	}
	items = append(items, RawDefinition{Text: []byte(": : :"), Locator: "junk.yaml"})

	result := NewLoader(testLogger(), WithConcurrency(3)).LoadMany(items)
	assert.Len(t, result, 50)
}

func TestLoadMany_Empty(t *testing.T) {
	result := NewLoader(testLogger()).LoadMany(nil)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}
