package scene_test

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"testing"

	"whiteboard/internal/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(id string, x float64, version int64) scene.Element {
	return scene.Element{ID: id, Type: "rectangle", X: x, Y: 10, Width: 100, Height: 50, Version: version}
}

func ids(elements []scene.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.ID
	}
	return out
}

func TestContentChanged_IgnoresTransientFields(t *testing.T) {
	base := []scene.Element{rect("a", 1, 1)}
	next := scene.CloneElements(base)
	next[0].Version = 7
	next[0].VersionNonce = 99
	next[0].Updated = 1700000000
	next[0].Extra = map[string]json.RawMessage{"seed": json.RawMessage(`42`)}

	assert.False(t, scene.ContentChanged(next, base))
}

func TestContentChanged_DetectsGeometryStyleAndDeletion(t *testing.T) {
	base := []scene.Element{rect("a", 1, 1)}

	moved := scene.CloneElements(base)
	moved[0].X = 2
	assert.True(t, scene.ContentChanged(moved, base))

	styled := scene.CloneElements(base)
	styled[0].StrokeColor = "#ff0000"
	assert.True(t, scene.ContentChanged(styled, base))

	deleted := scene.CloneElements(base)
	deleted[0].IsDeleted = true
	assert.True(t, scene.ContentChanged(deleted, base))

	added := append(scene.CloneElements(base), rect("b", 5, 1))
	assert.True(t, scene.ContentChanged(added, base))
}

func TestContentChanged_FailsOpenOnUnprojectableElement(t *testing.T) {
	base := []scene.Element{rect("a", 1, 1)}
	broken := scene.CloneElements(base)
	broken[0].X = math.NaN()

	assert.True(t, scene.ContentChanged(broken, broken))
}

func TestMerge_Idempotent(t *testing.T) {
	x := []scene.Element{rect("a", 1, 3), rect("b", 2, 1), rect("c", 3, 8)}

	merged := scene.Merge(x, x)

	assert.ElementsMatch(t, ids(x), ids(merged))
	assert.False(t, scene.ContentChanged(merged, x))
	assert.False(t, scene.VersionsDiffer(merged, x))
}

func TestMerge_VersionMonotonicLocalWinsTie(t *testing.T) {
	local := []scene.Element{rect("a", 1, 5), rect("b", 1, 2), rect("c", 1, 4)}
	remote := []scene.Element{rect("a", 9, 3), rect("b", 9, 6), rect("c", 9, 4)}

	res := scene.MergeDetailed(local, remote)

	byID := map[string]scene.Element{}
	for _, e := range res.Elements {
		byID[e.ID] = e
	}
	assert.Equal(t, int64(5), byID["a"].Version)
	assert.Equal(t, float64(1), byID["a"].X)
	assert.Equal(t, int64(6), byID["b"].Version)
	assert.Equal(t, float64(9), byID["b"].X)
	// tie keeps local
	assert.Equal(t, float64(1), byID["c"].X)

	assert.Equal(t, 1, res.LocalAhead)
	assert.Equal(t, []string{"a"}, res.Ahead)
	assert.Equal(t, 1, res.RemoteWins)
	assert.Equal(t, 0, res.RemoteAdded)
}

func TestMerge_KeepsLocalOnlyAndAppendsRemoteOnly(t *testing.T) {
	local := []scene.Element{rect("a", 1, 1), rect("local-only", 1, 1)}
	remote := []scene.Element{rect("remote-only", 1, 1), rect("a", 1, 1)}

	res := scene.MergeDetailed(local, remote)

	assert.Equal(t, []string{"a", "local-only", "remote-only"}, ids(res.Elements))
	assert.Equal(t, 1, res.LocalAhead)
	assert.Equal(t, []string{"local-only"}, res.Ahead)
	assert.Equal(t, 1, res.RemoteAdded)
}

func TestMerge_TombstonePropagates(t *testing.T) {
	local := []scene.Element{rect("a", 1, 1)}
	gone := rect("a", 1, 2)
	gone.IsDeleted = true

	merged := scene.Merge(local, []scene.Element{gone})

	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsDeleted)
	assert.Empty(t, scene.Live(merged))
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	local := []scene.Element{{ID: "a", Points: [][2]float64{{0, 0}, {1, 1}}, Version: 2}}
	merged := scene.Merge(local, nil)
	merged[0].Points[0][0] = 42

	assert.Equal(t, float64(0), local[0].Points[0][0])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, scene.Validate(scene.Empty(), 0))
	assert.NoError(t, scene.Validate(scene.Scene{ViewState: json.RawMessage(`{"zoom":1}`)}, 0))
	assert.NoError(t, scene.Validate(scene.Scene{ViewState: json.RawMessage(`null`)}, 0))

	err := scene.Validate(scene.Scene{ViewState: json.RawMessage(`[1,2]`)}, 0)
	assert.ErrorIs(t, err, scene.ErrInvalidViewState)

	err = scene.Validate(scene.Scene{Elements: []scene.Element{rect("a", 1, 1), rect("a", 2, 1)}}, 0)
	assert.ErrorIs(t, err, scene.ErrDuplicateElement)

	err = scene.Validate(scene.Scene{Elements: []scene.Element{{Type: "line"}}}, 0)
	assert.ErrorIs(t, err, scene.ErrMissingElementID)

	many := make([]scene.Element, 4)
	for i := range many {
		many[i] = rect(strings.Repeat("x", i+1), 0, 1)
	}
	err = scene.Validate(scene.Scene{Elements: many}, 3)
	assert.ErrorIs(t, err, scene.ErrTooManyElements)
}

func TestElementJSON_RoundTripsUnknownFields(t *testing.T) {
	raw := `{"id":"a","type":"arrow","x":1,"y":2,"width":3,"height":4,"angle":0,"version":3,"isDeleted":false,"groupIds":["g1"],"seed":7}`

	var e scene.Element
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, "arrow", e.Type)
	assert.Equal(t, int64(3), e.Version)
	require.Contains(t, e.Extra, "groupIds")

	out, err := json.Marshal(e)
	require.NoError(t, err)

	var back map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &back))
	keys := make([]string, 0, len(back))
	for k := range back {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Contains(t, keys, "groupIds")
	assert.Contains(t, keys, "seed")
	assert.JSONEq(t, `["g1"]`, string(back["groupIds"]))
}
