package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFogRegions(t *testing.T) {
	regions, err := ParseFogRegions(`[{"type":"reveal","points":[{"x":1,"y":2}],"brush_width":40}]`)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, FogReveal, regions[0].Type)
	assert.Equal(t, 40.0, regions[0].BrushWidth)
}

func TestParseFogRegionsEmpty(t *testing.T) {
	regions, err := ParseFogRegions("")
	require.NoError(t, err)
	assert.NotNil(t, regions)
	assert.Empty(t, regions)

	regions, err = ParseFogRegions("[]")
	require.NoError(t, err)
	assert.NotNil(t, regions)
	assert.Empty(t, regions)
}

func TestParseFogRegionsRejectsBadShape(t *testing.T) {
	_, err := ParseFogRegions(`{"not":"an array"}`)
	assert.Error(t, err)

	_, err = ParseFogRegions(`[{"type":"melt","points":[{"x":1,"y":2}],"brush_width":40}]`)
	assert.Error(t, err, "unknown region type must not parse silently")

	_, err = ParseFogRegions(`[{"type":"reveal","points":[],"brush_width":40}]`)
	assert.Error(t, err, "empty point list is malformed")

	_, err = ParseFogRegions(`[{"type":"reveal","points":[{"x":1,"y":2}],"brush_width":0}]`)
	assert.Error(t, err, "zero brush width is malformed")
}

func TestEncodeFogRegionsRoundTrip(t *testing.T) {
	in := []FogRegion{
		{Type: FogReveal, Points: []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, BrushWidth: 40},
		{Type: FogHide, Points: []Point{{X: 5, Y: 6}}, BrushWidth: 20},
	}
	encoded, err := EncodeFogRegions(in)
	require.NoError(t, err)

	out, err := ParseFogRegions(encoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeFogRegionsNil(t *testing.T) {
	encoded, err := EncodeFogRegions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)
}

func TestParseInventoryRejectsBadItems(t *testing.T) {
	_, err := ParseInventory(`[{"name":"","quantity":1}]`)
	assert.Error(t, err)

	_, err = ParseInventory(`[{"name":"rope","quantity":-1}]`)
	assert.Error(t, err)

	items, err := ParseInventory(`[{"name":"rope","quantity":2,"notes":"50ft"}]`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rope", items[0].Name)
}

func TestDiceResultsRoundTrip(t *testing.T) {
	encoded := EncodeDiceResults([]int{3, 17, 20})
	results, err := ParseDiceResults(encoded)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 17, 20}, results)

	results, err = ParseDiceResults("")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSizeMultiplier(t *testing.T) {
	assert.Equal(t, 0.5, SizeMultiplier(SizeTiny))
	assert.Equal(t, 1.0, SizeMultiplier(SizeMedium))
	assert.Equal(t, 4.0, SizeMultiplier(SizeGargantuan))
	assert.Equal(t, 1.0, SizeMultiplier("unknown"), "unknown sizes render as medium")
	assert.False(t, ValidSize("unknown"))
}
