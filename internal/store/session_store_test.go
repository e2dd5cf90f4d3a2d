package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtt-engine/internal/model"
)

func TestSetSessionSyncsGMFlag(t *testing.T) {
	s := NewSessionStore()
	s.SetCurrentUser("alice", false)

	gm := "alice"
	s.SetSession(&model.Session{ID: "s1", CurrentGMUsername: &gm})
	u := s.CurrentUser()
	require.NotNil(t, u)
	assert.True(t, u.IsGM, "session row says alice is GM")

	other := "bob"
	s.SetSession(&model.Session{ID: "s1", CurrentGMUsername: &other})
	assert.False(t, s.CurrentUser().IsGM)

	s.SetSession(&model.Session{ID: "s1"})
	assert.False(t, s.CurrentUser().IsGM)
}

func TestUpsertPlayerIdempotent(t *testing.T) {
	s := NewSessionStore()
	p := model.SessionPlayer{ID: "p1", Username: "alice"}

	s.UpsertPlayer(p)
	s.UpsertPlayer(p)
	assert.Len(t, s.Players(), 1)

	p.InitiativeModifier = 3
	s.UpsertPlayer(p)
	got, ok := s.PlayerByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, 3, got.InitiativeModifier)
}

func TestTouchPlayer(t *testing.T) {
	s := NewSessionStore()
	s.UpsertPlayer(model.SessionPlayer{ID: "p1", Username: "alice"})

	at := time.Now()
	s.TouchPlayer("alice", at)
	got, _ := s.PlayerByUsername("alice")
	assert.Equal(t, at, got.LastSeen)
}

func TestHandoutsSorted(t *testing.T) {
	s := NewSessionStore()
	s.UpsertHandout(model.Handout{ID: "h2", SortOrder: 2})
	s.UpsertHandout(model.Handout{ID: "h1", SortOrder: 1})

	handouts := s.Handouts()
	require.Len(t, handouts, 2)
	assert.Equal(t, "h1", handouts[0].ID)
}

func TestStatusTransitions(t *testing.T) {
	s := NewSessionStore()
	assert.Equal(t, StatusDisconnected, s.Status())
	s.SetStatus(StatusConnecting)
	s.SetStatus(StatusConnected)
	assert.Equal(t, StatusConnected, s.Status())
	s.SetStatus(StatusReconnecting)
	assert.Equal(t, StatusReconnecting, s.Status())
}

func TestResetClearsEverything(t *testing.T) {
	s := NewSessionStore()
	s.SetSession(&model.Session{ID: "s1"})
	s.SetCurrentUser("alice", true)
	s.UpsertPlayer(model.SessionPlayer{ID: "p1", Username: "alice"})
	s.UpsertHandout(model.Handout{ID: "h1"})
	s.SetStatus(StatusConnected)

	s.Reset()
	assert.Nil(t, s.Session())
	assert.Nil(t, s.CurrentUser())
	assert.Empty(t, s.Players())
	assert.Empty(t, s.Handouts())
	assert.Equal(t, StatusDisconnected, s.Status())
}
