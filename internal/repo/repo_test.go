package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vtt-engine/internal/database"
	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

var dbSeq int

func openTestDB(t *testing.T, withInitiative bool) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:repo%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	if withInitiative {
		require.NoError(t, database.MigrateInitiative(db))
	}
	return db
}

func seedSession(t *testing.T, r *Repo) *model.Session {
	t.Helper()
	s := &model.Session{ID: "sess-1", JoinCode: "ABCD2345", Name: "Table"}
	require.NoError(t, r.CreateSession(context.Background(), s))
	return s
}

func TestWritesEmitChangeFeedEvents(t *testing.T) {
	db := openTestDB(t, true)
	bus := realtime.NewLoopbackBus()
	client := bus.Client("writer")
	r := New(db, client, zerolog.Nop())
	ctx := context.Background()

	watcher, err := bus.Client("watcher").Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer watcher.Close()

	seedSession(t, r)
	m := &model.GameMap{ID: "m1", SessionID: "sess-1", Name: "Cave", Width: 10, Height: 10}
	require.NoError(t, r.CreateMap(ctx, m))

	ev := waitChange(t, watcher) // session insert
	assert.Equal(t, realtime.TableSessions, ev.Table)

	ev = waitChange(t, watcher)
	assert.Equal(t, realtime.TableMaps, ev.Table)
	assert.Equal(t, realtime.OpInsert, ev.Op)
	var row model.GameMap
	require.NoError(t, json.Unmarshal(ev.Row, &row))
	assert.Equal(t, "m1", row.ID)

	require.NoError(t, r.DeleteMap(ctx, "sess-1", "m1"))
	ev = waitChange(t, watcher)
	assert.Equal(t, realtime.OpDelete, ev.Op)
	var deleted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(ev.Row, &deleted))
	assert.Equal(t, "m1", deleted.ID)
}

func waitChange(t *testing.T, sub realtime.Subscription) realtime.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.Changes():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
		return realtime.ChangeEvent{}
	}
}

func TestSessionByCodeNormalizes(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	s, err := r.SessionByCode(ctx, "abcd-2345")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)

	_, err = r.SessionByCode(ctx, "ZZZZ9999")
	assert.True(t, vtterr.IsNotFound(err))
}

func TestIsDuplicateKeyOnJoinCodeCollision(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	err := r.CreateSession(ctx, &model.Session{ID: "sess-2", JoinCode: "ABCD2345", Name: "Other"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err), "join_code unique violation must be recognized")

	assert.False(t, IsDuplicateKey(nil))
	assert.False(t, IsDuplicateKey(vtterr.Backend(nil, "connection refused")))
}

func TestClaimGMCompareAndSet(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	won, err := r.ClaimGM(ctx, "sess-1", "alice")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.ClaimGM(ctx, "sess-1", "bob")
	require.NoError(t, err)
	assert.False(t, won, "set gm must not be overwritten")

	require.NoError(t, r.ReleaseGM(ctx, "sess-1", "alice"))
	won, err = r.ClaimGM(ctx, "sess-1", "bob")
	require.NoError(t, err)
	assert.True(t, won)
}

func TestGMRoleSyncsPlayerRows(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)
	require.NoError(t, r.CreatePlayer(ctx, &model.SessionPlayer{
		ID: "p1", SessionID: "sess-1", Username: "alice", IsGM: true, LastSeen: time.Now(),
	}))
	require.NoError(t, r.CreatePlayer(ctx, &model.SessionPlayer{
		ID: "p2", SessionID: "sess-1", Username: "bob", LastSeen: time.Now(),
	}))

	won, err := r.ClaimGM(ctx, "sess-1", "alice")
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, r.ReleaseGM(ctx, "sess-1", "alice"))
	p, err := r.PlayerByUsername(ctx, "sess-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.IsGM, "released gm must lose the player row flag")

	won, err = r.ClaimGM(ctx, "sess-1", "bob")
	require.NoError(t, err)
	require.True(t, won)
	p, err = r.PlayerByUsername(ctx, "sess-1", "bob")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsGM, "claiming gm must set the player row flag")
}

func TestClaimCharacterCompareAndSet(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	c := &model.Character{ID: "c1", SessionID: "sess-1", Name: "Hero"}
	require.NoError(t, r.CreateCharacter(ctx, c))

	won, err := r.ClaimCharacter(ctx, "sess-1", "c1", "alice")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.ClaimCharacter(ctx, "sess-1", "c1", "bob")
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, r.ReleaseCharacter(ctx, "sess-1", "c1", "alice"))
	got, err := r.CharacterByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, got.IsClaimed)
	assert.Nil(t, got.ClaimedByUsername)
}

func TestRecentChatMessagesOldestFirst(t *testing.T) {
	db := openTestDB(t, true)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		m := &model.ChatMessage{
			ID:        fmt.Sprintf("m-%d", i),
			SessionID: "sess-1",
			Username:  "alice",
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, r.CreateChatMessage(ctx, m))
	}

	msgs, err := r.RecentChatMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m-0", msgs[0].ID, "history is returned oldest-first")
	assert.Equal(t, "m-2", msgs[2].ID)
}

func TestInitiativeUndefinedTable(t *testing.T) {
	db := openTestDB(t, false)
	r := New(db, nil, zerolog.Nop())
	ctx := context.Background()
	seedSession(t, r)

	_, err := r.InitiativeEntriesBySession(ctx, "sess-1")
	assert.ErrorIs(t, err, vtterr.ErrFeatureUnavailable)

	err = r.CreateInitiativeEntry(ctx, &model.InitiativeEntry{ID: "e1", SessionID: "sess-1"})
	assert.ErrorIs(t, err, vtterr.ErrFeatureUnavailable)
}
