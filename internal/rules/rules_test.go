package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vtt-engine/internal/model"
)

func TestFogModeFor(t *testing.T) {
	assert.Equal(t, FogTranslucent, FogModeFor(true))
	assert.Equal(t, FogOpaque, FogModeFor(false))
}

func TestCanSeeNPCInstance(t *testing.T) {
	hidden := model.NPCInstance{ID: "a", Hidden: true}
	visible := model.NPCInstance{ID: "b", Hidden: false}

	assert.True(t, CanSeeNPCInstance(true, hidden), "GM sees hidden npcs")
	assert.True(t, CanSeeNPCInstance(true, visible))
	assert.False(t, CanSeeNPCInstance(false, hidden))
	assert.True(t, CanSeeNPCInstance(false, visible))

	got := VisibleNPCInstances(false, []model.NPCInstance{hidden, visible})
	assert.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestCanSeeDiceRoll(t *testing.T) {
	cases := []struct {
		name       string
		visibility string
		username   string
		isGM       bool
		want       bool
	}{
		{"public to anyone", model.DicePublic, "alice", false, true},
		{"public to gm", model.DicePublic, "gm", true, true},
		{"gm_only to gm", model.DiceGMOnly, "gm", true, true},
		{"gm_only hidden from player", model.DiceGMOnly, "alice", false, false},
		{"gm_only hidden from non-gm roller", model.DiceGMOnly, "bob", false, false},
		{"self visible to roller", model.DiceSelf, "bob", false, true},
		{"self hidden from others", model.DiceSelf, "alice", false, false},
		{"self hidden from gm", model.DiceSelf, "gm", true, false},
		{"unknown visibility hidden", "whisper", "bob", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roll := model.DiceRoll{Username: "bob", Visibility: tc.visibility}
			assert.Equal(t, tc.want, CanSeeDiceRoll(roll, tc.username, tc.isGM))
		})
	}
}

func TestCanSeeInitiativeEntry(t *testing.T) {
	pub := model.InitiativeEntry{Visibility: model.InitiativePublic}
	gmOnly := model.InitiativeEntry{Visibility: model.InitiativeGMOnly}

	assert.True(t, CanSeeInitiativeEntry(false, pub))
	assert.False(t, CanSeeInitiativeEntry(false, gmOnly))
	assert.True(t, CanSeeInitiativeEntry(true, gmOnly))

	got := VisibleInitiativeEntries(false, []model.InitiativeEntry{pub, gmOnly})
	assert.Len(t, got, 1)
}

func TestCanMoveCharacter(t *testing.T) {
	owner := "alice"
	claimed := model.Character{IsClaimed: true, ClaimedByUsername: &owner}
	unclaimed := model.Character{}

	assert.True(t, CanMoveCharacter("alice", false, claimed))
	assert.False(t, CanMoveCharacter("bob", false, claimed))
	assert.False(t, CanMoveCharacter("alice", false, unclaimed))
	assert.True(t, CanMoveCharacter("anyone", true, claimed), "GM moves any token")
	assert.True(t, CanMoveCharacter("anyone", true, unclaimed))
}

func TestCanMoveNPC(t *testing.T) {
	assert.True(t, CanMoveNPC(true, false))
	assert.False(t, CanMoveNPC(false, false))
	assert.True(t, CanMoveNPC(false, true), "session toggle opens npc edits to players")
}

func TestGMOnlyGates(t *testing.T) {
	assert.True(t, CanEditMap(true))
	assert.False(t, CanEditMap(false))
	assert.True(t, CanPaintFog(true))
	assert.False(t, CanPaintFog(false))
}
