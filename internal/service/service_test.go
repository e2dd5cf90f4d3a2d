package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vtt-engine/internal/database"
	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

var dbSeq int

// openTestDB 공유 인메모리 sqlite. 커넥션 풀을 1로 제한해 같은 DB를 보게 한다
func openTestDB(t *testing.T, withInitiative bool) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", dbSeq)
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

type harness struct {
	db     *gorm.DB
	bus    *realtime.LoopbackBus
	stores *store.Set
	svcs   *Services
}

func newHarness(t *testing.T, db *gorm.DB, bus *realtime.LoopbackBus, clientID string) *harness {
	t.Helper()
	stores := store.NewSet()
	client := bus.Client(clientID)
	r := repo.New(db, client, zerolog.Nop())
	return &harness{
		db:     db,
		bus:    bus,
		stores: stores,
		svcs:   New(r, stores, client, zerolog.Nop()),
	}
}

func newGMHarness(t *testing.T) (*harness, *model.Session) {
	t.Helper()
	db := openTestDB(t, true)
	bus := realtime.NewLoopbackBus()
	h := newHarness(t, db, bus, "gm-client")
	sess, err := h.svcs.Session.CreateSession(context.Background(), "Test Table", "gm")
	require.NoError(t, err)
	require.NoError(t, h.svcs.Session.LoadSessionData(context.Background(), sess.ID))
	return h, sess
}

// --- 세션 수명주기 ---

func TestCreateSessionMakesCreatorGM(t *testing.T) {
	h, sess := newGMHarness(t)

	assert.NotEmpty(t, sess.JoinCode)
	require.NotNil(t, sess.CurrentGMUsername)
	assert.Equal(t, "gm", *sess.CurrentGMUsername)
	assert.True(t, h.stores.Session.CurrentUser().IsGM)

	players := h.stores.Session.Players()
	require.Len(t, players, 1)
	assert.True(t, players[0].IsGM)
}

func TestCreateSessionValidation(t *testing.T) {
	db := openTestDB(t, true)
	h := newHarness(t, db, realtime.NewLoopbackBus(), "c1")

	_, err := h.svcs.Session.CreateSession(context.Background(), "", "gm")
	assert.True(t, vtterr.IsValidation(err))

	_, err = h.svcs.Session.CreateSession(context.Background(), "Table", "  ")
	assert.True(t, vtterr.IsValidation(err))
}

func TestJoinSessionByCode(t *testing.T) {
	h, sess := newGMHarness(t)

	player := newHarness(t, h.db, h.bus, "player-client")
	// 하이픈/소문자 입력도 통한다
	code := strings.ToLower(sess.JoinCode[:4] + "-" + sess.JoinCode[4:])
	joined, err := player.svcs.Session.JoinSession(context.Background(), code, "alice")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, joined.ID)
	assert.False(t, player.stores.Session.CurrentUser().IsGM)
	assert.Len(t, player.stores.Session.Players(), 2)
}

func TestJoinSessionUnknownCode(t *testing.T) {
	db := openTestDB(t, true)
	h := newHarness(t, db, realtime.NewLoopbackBus(), "c1")

	_, err := h.svcs.Session.JoinSession(context.Background(), "ABCD2345", "alice")
	assert.True(t, vtterr.IsNotFound(err))

	_, err = h.svcs.Session.JoinSession(context.Background(), "not a code", "alice")
	assert.True(t, vtterr.IsValidation(err))
}

func TestRejoinDoesNotDuplicatePlayer(t *testing.T) {
	h, sess := newGMHarness(t)

	player := newHarness(t, h.db, h.bus, "player-client")
	_, err := player.svcs.Session.JoinSession(context.Background(), sess.JoinCode, "alice")
	require.NoError(t, err)
	_, err = player.svcs.Session.JoinSession(context.Background(), sess.JoinCode, "alice")
	require.NoError(t, err)

	assert.Len(t, player.stores.Session.Players(), 2, "rejoin must not insert a second row")
}

func TestClaimGMLosesRace(t *testing.T) {
	h, sess := newGMHarness(t)
	require.NoError(t, h.svcs.Session.ReleaseGM(context.Background()))

	a := newHarness(t, h.db, h.bus, "a")
	b := newHarness(t, h.db, h.bus, "b")
	_, err := a.svcs.Session.JoinSession(context.Background(), sess.JoinCode, "alice")
	require.NoError(t, err)
	_, err = b.svcs.Session.JoinSession(context.Background(), sess.JoinCode, "bob")
	require.NoError(t, err)

	require.NoError(t, a.svcs.Session.ClaimGM(context.Background()))
	err = b.svcs.Session.ClaimGM(context.Background())
	assert.True(t, vtterr.IsPermission(err), "second claimant must get a permission error")
	assert.True(t, a.stores.Session.CurrentUser().IsGM)
	assert.False(t, b.stores.Session.CurrentUser().IsGM)
}

func TestGMHandoffUpdatesPlayerRows(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()

	a := newHarness(t, h.db, h.bus, "alice-client")
	_, err := a.svcs.Session.JoinSession(ctx, sess.JoinCode, "alice")
	require.NoError(t, err)

	require.NoError(t, h.svcs.Session.ReleaseGM(ctx))
	require.NoError(t, a.svcs.Session.ClaimGM(ctx))

	var rows []model.SessionPlayer
	require.NoError(t, h.db.Where("session_id = ?", sess.ID).Order("username ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].Username)
	assert.True(t, rows[0].IsGM, "new gm's player row must carry the flag")
	assert.Equal(t, "gm", rows[1].Username)
	assert.False(t, rows[1].IsGM, "released gm's player row must be cleared")
}

func TestCreateSessionFailsFastOnBackendOutage(t *testing.T) {
	db := openTestDB(t, true)
	bus := realtime.NewLoopbackBus()
	h := newHarness(t, db, bus, "c1")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = h.svcs.Session.CreateSession(context.Background(), "Table", "gm")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "attempts", "outage must not be retried as a code collision")
}

func TestLeaveSessionReleasesEverything(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	c, err := h.svcs.Characters.CreateCharacter(ctx, "Hero", "", "")
	require.NoError(t, err)
	require.NoError(t, h.svcs.Characters.ClaimCharacter(ctx, c.ID))

	require.NoError(t, h.svcs.Session.LeaveSession(ctx))
	assert.Nil(t, h.stores.Session.Session())
	assert.Equal(t, store.StatusDisconnected, h.stores.Session.Status())

	// DB에서도 클레임과 GM이 풀려 있어야 한다
	var got model.Character
	require.NoError(t, h.db.First(&got, "id = ?", c.ID).Error)
	assert.False(t, got.IsClaimed)
}

// --- 맵/포그 ---

func TestFirstMapAutoActivates(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m1, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	assert.Equal(t, m1.ID, h.stores.Map.ActiveMapID())

	m2, err := h.svcs.Maps.CreateMap(ctx, "Forest", "", 1000, 800)
	require.NoError(t, err)
	assert.Equal(t, m1.ID, h.stores.Map.ActiveMapID(), "second map must not steal activation")

	require.NoError(t, h.svcs.Maps.SetActiveMap(ctx, m2.ID))
	assert.Equal(t, m2.ID, h.stores.Map.ActiveMapID())
}

func TestDeleteActiveMapClearsPointer(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	require.NoError(t, h.svcs.Maps.DeleteMap(ctx, m.ID))

	assert.Empty(t, h.stores.Map.ActiveMapID())
	got, err := h.svcs.Session.CreateHandout(ctx, "x", model.HandoutText, "y") // 세션은 살아 있다
	require.NoError(t, err)
	require.NotNil(t, got)

	var dbSess model.Session
	require.NoError(t, h.db.First(&dbSess, "id = ?", sess.ID).Error)
	assert.Nil(t, dbSess.ActiveMapID)
}

func TestFogStrokeAppendAndReset(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)

	require.NoError(t, h.svcs.Maps.BeginFogStroke(m.ID, model.FogReveal, 40))
	h.svcs.Maps.AddFogPoint(10, 10)
	h.svcs.Maps.AddFogPoint(20, 20)
	require.NoError(t, h.svcs.Maps.EndFogStroke(ctx))

	got, _ := h.stores.Map.MapByID(m.ID)
	regions, err := model.ParseFogRegions(got.FogData)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Len(t, regions[0].Points, 2)

	require.NoError(t, h.svcs.Maps.RevealAllFog(ctx, m.ID))
	got, _ = h.stores.Map.MapByID(m.ID)
	assert.Equal(t, "[]", got.FogData)
	assert.Equal(t, model.FogStateRevealed, got.FogDefaultState)

	require.NoError(t, h.svcs.Maps.ResetFog(ctx, m.ID))
	got, _ = h.stores.Map.MapByID(m.ID)
	assert.Equal(t, model.FogStateFogged, got.FogDefaultState)
}

func TestFogPaintingIsGMOnly(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()
	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)

	player := newHarness(t, h.db, h.bus, "p")
	_, err = player.svcs.Session.JoinSession(ctx, sess.JoinCode, "alice")
	require.NoError(t, err)

	err = player.svcs.Maps.BeginFogStroke(m.ID, model.FogReveal, 40)
	assert.True(t, vtterr.IsPermission(err))
	err = player.svcs.Maps.AppendFogRegion(ctx, m.ID, model.FogRegion{
		Type: model.FogReveal, Points: []model.Point{{X: 1, Y: 1}}, BrushWidth: 40,
	})
	assert.True(t, vtterr.IsPermission(err))
}

// --- 캐릭터 ---

func TestMoveCharacterRollsBackOnWriteFailure(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	c, err := h.svcs.Characters.CreateCharacter(ctx, "Hero", "", "")
	require.NoError(t, err)
	require.NoError(t, h.svcs.Characters.MoveCharacter(ctx, c.ID, 5, 5))

	// 내구 쓰기를 강제로 실패시킨다
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = h.svcs.Characters.MoveCharacter(ctx, c.ID, 99, 99)
	require.Error(t, err)

	got, ok := h.stores.Map.CharacterByID(c.ID)
	require.True(t, ok)
	assert.Equal(t, 5.0, got.X, "failed move must revert to the captured position")
	assert.Equal(t, 5.0, got.Y)
}

func TestPlayerCannotMoveUnclaimedCharacter(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()

	c, err := h.svcs.Characters.CreateCharacter(ctx, "Hero", "", "")
	require.NoError(t, err)

	player := newHarness(t, h.db, h.bus, "p")
	_, err = player.svcs.Session.JoinSession(ctx, sess.JoinCode, "alice")
	require.NoError(t, err)

	err = player.svcs.Characters.MoveCharacter(ctx, c.ID, 1, 1)
	assert.True(t, vtterr.IsPermission(err))

	require.NoError(t, player.svcs.Characters.ClaimCharacter(ctx, c.ID))
	assert.NoError(t, player.svcs.Characters.MoveCharacter(ctx, c.ID, 1, 1))
}

func TestClaimCharacterRace(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()

	c, err := h.svcs.Characters.CreateCharacter(ctx, "Hero", "", "")
	require.NoError(t, err)

	a := newHarness(t, h.db, h.bus, "a")
	b := newHarness(t, h.db, h.bus, "b")
	_, err = a.svcs.Session.JoinSession(ctx, sess.JoinCode, "alice")
	require.NoError(t, err)
	_, err = b.svcs.Session.JoinSession(ctx, sess.JoinCode, "bob")
	require.NoError(t, err)

	require.NoError(t, a.svcs.Characters.ClaimCharacter(ctx, c.ID))
	err = b.svcs.Characters.ClaimCharacter(ctx, c.ID)
	assert.True(t, vtterr.IsPermission(err), "loser of the claim race gets a permission error")
}

// --- NPC ---

func TestPlaceInstanceSequenceNaming(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	tpl, err := h.svcs.NPCs.CreateTemplate(ctx, "Goblin", "goblin.png", model.SizeSmall, "sneaky")
	require.NoError(t, err)

	first, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m.ID, 1, 1)
	require.NoError(t, err)
	second, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m.ID, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, "Goblin-1", first.Name)
	assert.Equal(t, "Goblin-2", second.Name)
	assert.Equal(t, "goblin.png", first.TokenURL, "token copied at placement")
	assert.Equal(t, model.SizeSmall, first.Size)

	m2, err := h.svcs.Maps.CreateMap(ctx, "Camp", "", 1000, 800)
	require.NoError(t, err)
	onOther, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m2.ID, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, "Goblin-1", onOther.Name, "sequence restarts on each map")
}

func TestTemplateDeleteLeavesInstances(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	tpl, err := h.svcs.NPCs.CreateTemplate(ctx, "Goblin", "", "", "")
	require.NoError(t, err)
	inst, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m.ID, 1, 1)
	require.NoError(t, err)

	require.NoError(t, h.svcs.NPCs.DeleteTemplate(ctx, tpl.ID))
	_, ok := h.stores.Map.NPCInstanceByID(inst.ID)
	assert.True(t, ok, "instances survive template deletion")

	var count int64
	require.NoError(t, h.db.Model(&model.NPCInstance{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRenameInstancePropagatesToInitiative(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	tpl, err := h.svcs.NPCs.CreateTemplate(ctx, "Goblin", "", "", "")
	require.NoError(t, err)
	inst, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m.ID, 1, 1)
	require.NoError(t, err)

	entries, err := h.svcs.Initiative.RollNPCBatch(ctx, []string{inst.ID}, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, h.svcs.NPCs.RenameInstance(ctx, inst.ID, "Boss Goblin"))

	var entry model.InitiativeEntry
	require.NoError(t, h.db.First(&entry, "id = ?", entries[0].ID).Error)
	assert.Equal(t, "Boss Goblin", entry.SourceName)

	got, ok := h.stores.Initiative.EntryByID(entries[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Boss Goblin", got.SourceName)
}

// --- 이니셔티브 ---

func TestRollPlayerUsesStoredModifier(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svcs.Initiative.SetPlayerModifier(ctx, 3))
	e, err := h.svcs.Initiative.RollPlayer(ctx)
	require.NoError(t, err)

	require.NotNil(t, e.RollValue)
	require.NotNil(t, e.Total)
	assert.GreaterOrEqual(t, *e.RollValue, 1)
	assert.LessOrEqual(t, *e.RollValue, 20)
	assert.Equal(t, *e.RollValue+3, *e.Total)
	assert.Equal(t, model.InitiativePublic, e.Visibility)
	assert.Equal(t, model.PhaseFast, e.Phase)

	assert.NotEmpty(t, h.stores.Initiative.RollLog(), "roll is audited")
}

func TestRollNPCBatchHiddenIsGMOnly(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	m, err := h.svcs.Maps.CreateMap(ctx, "Cave", "", 1000, 800)
	require.NoError(t, err)
	tpl, err := h.svcs.NPCs.CreateTemplate(ctx, "Goblin", "", "", "")
	require.NoError(t, err)
	inst, err := h.svcs.NPCs.PlaceInstance(ctx, tpl.ID, m.ID, 1, 1)
	require.NoError(t, err)
	require.NoError(t, h.svcs.NPCs.SetInstanceHidden(ctx, inst.ID, true))

	entries, err := h.svcs.Initiative.RollNPCBatch(ctx, []string{inst.ID}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.InitiativeGMOnly, entries[0].Visibility)
}

func TestUpdateEntrySetsManualOverride(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	e, err := h.svcs.Initiative.RollPlayer(ctx)
	require.NoError(t, err)

	updated, err := h.svcs.Initiative.UpdateEntry(ctx, e.ID, map[string]any{"phase": model.PhaseSlow})
	require.NoError(t, err)
	assert.True(t, updated.ManualOverride)
	assert.Equal(t, model.PhaseSlow, updated.Phase)

	_, err = h.svcs.Initiative.UpdateEntry(ctx, e.ID, map[string]any{"phase": "middling"})
	assert.True(t, vtterr.IsValidation(err))
}

func TestInitiativeUnavailableWithoutTables(t *testing.T) {
	db := openTestDB(t, false) // 이니셔티브 테이블 없는 백엔드
	bus := realtime.NewLoopbackBus()
	h := newHarness(t, db, bus, "gm-client")
	ctx := context.Background()

	sess, err := h.svcs.Session.CreateSession(ctx, "Table", "gm")
	require.NoError(t, err)
	require.NoError(t, h.svcs.Session.LoadSessionData(ctx, sess.ID))

	assert.False(t, h.stores.Initiative.Enabled())
	_, err = h.svcs.Initiative.RollPlayer(ctx)
	assert.ErrorIs(t, err, vtterr.ErrFeatureUnavailable)
}

// --- 채팅/주사위 ---

func TestSendMessageValidation(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	_, err := h.svcs.Chat.SendMessage(ctx, "   ")
	assert.True(t, vtterr.IsValidation(err))

	_, err = h.svcs.Chat.SendMessage(ctx, strings.Repeat("x", 2001))
	assert.True(t, vtterr.IsValidation(err))

	m, err := h.svcs.Chat.SendMessage(ctx, "hello table")
	require.NoError(t, err)
	assert.Equal(t, "gm", m.Username)
	assert.Len(t, h.stores.Chat.Messages(), 1)
}

func TestSendDiceRoll(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	d, err := h.svcs.Chat.SendDiceRoll(ctx, "2d6+1", []int{4, 5}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, model.DicePublic, d.Visibility)

	results, err := model.ParseDiceResults(d.Results)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, results)

	_, err = h.svcs.Chat.SendDiceRoll(ctx, "d20", []int{7}, 7, "whisper")
	assert.True(t, vtterr.IsValidation(err))
}

func TestLoadSessionDataFiltersDiceVisibility(t *testing.T) {
	h, sess := newGMHarness(t)
	ctx := context.Background()

	_, err := h.svcs.Chat.SendDiceRoll(ctx, "d20", []int{12}, 12, model.DiceGMOnly)
	require.NoError(t, err)
	_, err = h.svcs.Chat.SendDiceRoll(ctx, "d20", []int{8}, 8, model.DicePublic)
	require.NoError(t, err)

	player := newHarness(t, h.db, h.bus, "p")
	_, err = player.svcs.Session.JoinSession(ctx, sess.JoinCode, "alice")
	require.NoError(t, err)

	assert.Len(t, player.stores.Chat.Rolls(), 1, "gm_only roll is filtered out on load")
	assert.Len(t, h.stores.Chat.Rolls(), 2)
}

// --- 핸드아웃 ---

func TestHandoutKindShapes(t *testing.T) {
	h, _ := newGMHarness(t)
	ctx := context.Background()

	text, err := h.svcs.Session.CreateHandout(ctx, "Lore", model.HandoutText, "old tales")
	require.NoError(t, err)
	require.NotNil(t, text.Body)
	assert.Nil(t, text.ImageURL)

	img, err := h.svcs.Session.CreateHandout(ctx, "Map scrap", model.HandoutImage, "https://x/scrap.png")
	require.NoError(t, err)
	require.NotNil(t, img.ImageURL)
	assert.Nil(t, img.Body)

	_, err = h.svcs.Session.CreateHandout(ctx, "Bad", "video", "x")
	assert.True(t, vtterr.IsValidation(err))

	assert.Len(t, h.stores.Session.Handouts(), 2)
}
