package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtt-engine/internal/model"
)

func TestUpsertMapIsIdempotent(t *testing.T) {
	s := NewMapStore()
	m := model.GameMap{ID: "m1", Name: "Cave", SortOrder: 0}

	s.UpsertMap(m)
	s.UpsertMap(m) // feed와 낙관적 적용이 겹치는 경우
	assert.Len(t, s.Maps(), 1)

	m.Name = "Deep Cave"
	s.UpsertMap(m)
	got, ok := s.MapByID("m1")
	require.True(t, ok)
	assert.Equal(t, "Deep Cave", got.Name)
	assert.Len(t, s.Maps(), 1)
}

func TestMapsSortedBySortOrder(t *testing.T) {
	s := NewMapStore()
	s.UpsertMap(model.GameMap{ID: "b", SortOrder: 2})
	s.UpsertMap(model.GameMap{ID: "a", SortOrder: 1})

	maps := s.Maps()
	require.Len(t, maps, 2)
	assert.Equal(t, "a", maps[0].ID)
	assert.Equal(t, "b", maps[1].ID)
}

func TestSetActiveMapResetsViewport(t *testing.T) {
	s := NewMapStore()
	s.UpsertMap(model.GameMap{ID: "m1"})
	s.UpsertMap(model.GameMap{ID: "m2"})
	s.SetActiveMap("m1")
	s.SetViewport(Viewport{X: 100, Y: 50, Zoom: 2.5})

	s.SetActiveMap("m2")
	v := s.Viewport()
	assert.Equal(t, 1.0, v.Zoom)
	assert.True(t, v.AutoFit)
	assert.Zero(t, v.X)
	assert.Zero(t, v.Y)
}

func TestSetActiveMapSameIDKeepsViewport(t *testing.T) {
	s := NewMapStore()
	s.UpsertMap(model.GameMap{ID: "m1"})
	s.SetActiveMap("m1")
	s.SetViewport(Viewport{X: 100, Y: 50, Zoom: 2.5})

	s.SetActiveMap("m1")
	v := s.Viewport()
	assert.Equal(t, 2.5, v.Zoom, "re-activating the same map must not reset the viewport")
}

func TestRemoveMapCascades(t *testing.T) {
	s := NewMapStore()
	s.UpsertMap(model.GameMap{ID: "m1"})
	s.SetActiveMap("m1")
	s.UpsertNPCInstance(model.NPCInstance{ID: "n1", MapID: "m1"})
	s.SelectToken(TokenRef{Type: TokenNPC, ID: "n1"})

	s.RemoveMap("m1")
	assert.Empty(t, s.NPCInstances(), "instances on a removed map are dropped")
	assert.Nil(t, s.SelectedToken(), "selection of a dropped instance is cleared")
	assert.Empty(t, s.ActiveMapID())
}

func TestRemoveCharacterClearsSelection(t *testing.T) {
	s := NewMapStore()
	s.UpsertCharacter(model.Character{ID: "c1"})
	s.SelectToken(TokenRef{Type: TokenCharacter, ID: "c1"})

	s.RemoveCharacter("c1")
	assert.Nil(t, s.SelectedToken())
}

func TestMoveCharacter(t *testing.T) {
	s := NewMapStore()
	s.UpsertCharacter(model.Character{ID: "c1", X: 1, Y: 2})

	assert.True(t, s.MoveCharacter("c1", 10, 20))
	c, _ := s.CharacterByID("c1")
	assert.Equal(t, 10.0, c.X)
	assert.Equal(t, 20.0, c.Y)

	assert.False(t, s.MoveCharacter("nope", 0, 0))
}

func TestRemoveNPCTemplateLeavesInstances(t *testing.T) {
	s := NewMapStore()
	tid := "t1"
	s.UpsertMap(model.GameMap{ID: "m1"})
	s.UpsertNPCTemplate(model.NPCTemplate{ID: tid})
	s.UpsertNPCInstance(model.NPCInstance{ID: "n1", MapID: "m1", TemplateID: &tid})

	s.RemoveNPCTemplate(tid)
	assert.Len(t, s.NPCInstances(), 1, "placed instances survive template deletion")
}

func TestTokenLocks(t *testing.T) {
	s := NewMapStore()
	ref := TokenRef{Type: TokenCharacter, ID: "c1"}

	assert.Empty(t, s.TokenLockedBy(ref))
	s.LockToken(ref, "alice")
	assert.Equal(t, "alice", s.TokenLockedBy(ref))
	s.UnlockToken(ref)
	assert.Empty(t, s.TokenLockedBy(ref))
}
