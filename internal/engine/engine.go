// Package engine 실시간 채널 2종을 수신해 로컬 스토어에 반영하는 동기화 루프.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/rules"
	"vtt-engine/internal/store"
)

const defaultRetryInterval = time.Second

// Engine 구독 → 적용 루프. 연결 상태 머신은 세션 스토어 status에 기록된다.
// 끊김 후 재구독에 성공하면 resync 콜백으로 전체 스냅샷을 다시 읽는다
// (끊긴 동안의 feed 이벤트는 유실되므로).
type Engine struct {
	stores *store.Set
	sub    realtime.Subscriber
	resync func(ctx context.Context) error
	log    zerolog.Logger

	// RetryInterval 재구독 대기 시간. 0이면 기본값
	RetryInterval time.Duration

	mu         sync.Mutex
	needResync bool
}

// New 엔진 생성. resync는 재연결 직후 호출되는 전체 재적재 콜백이다
func New(stores *store.Set, sub realtime.Subscriber, resync func(ctx context.Context) error, log zerolog.Logger) *Engine {
	return &Engine{stores: stores, sub: sub, resync: resync, log: log}
}

// Run ctx가 끝날 때까지 구독하고 수신 이벤트를 스토어에 적용한다.
// 구독 에러가 나면 reconnecting으로 전환하고 재시도한다.
func (e *Engine) Run(ctx context.Context, sessionID string) {
	first := true
	for {
		if ctx.Err() != nil {
			e.stores.Session.SetStatus(store.StatusDisconnected)
			return
		}
		if first {
			e.stores.Session.SetStatus(store.StatusConnecting)
		} else {
			e.stores.Session.SetStatus(store.StatusReconnecting)
		}

		sub, err := e.sub.Subscribe(ctx, sessionID)
		if err != nil {
			e.log.Warn().Err(err).Msg("[Sync] subscribe failed")
			e.markResync()
			first = false
			if !e.wait(ctx) {
				e.stores.Session.SetStatus(store.StatusDisconnected)
				return
			}
			continue
		}

		e.stores.Session.SetStatus(store.StatusConnected)
		if e.takeResync() && e.resync != nil {
			if err := e.resync(ctx); err != nil {
				e.log.Error().Err(err).Msg("[Sync] resync failed")
				e.markResync()
				sub.Close()
				first = false
				if !e.wait(ctx) {
					e.stores.Session.SetStatus(store.StatusDisconnected)
					return
				}
				continue
			}
			e.log.Info().Str("session_id", sessionID).Msg("[Sync] resync complete")
		}

		err = e.pump(ctx, sessionID, sub)
		sub.Close()
		if err == nil {
			// ctx 종료
			e.stores.Session.SetStatus(store.StatusDisconnected)
			return
		}
		e.log.Warn().Err(err).Msg("[Sync] stream error, reconnecting")
		e.markResync()
		first = false
		if !e.wait(ctx) {
			e.stores.Session.SetStatus(store.StatusDisconnected)
			return
		}
	}
}

// pump 단일 구독의 수신 루프. 스트림 에러면 그 에러를, ctx 종료면 nil을 반환한다
func (e *Engine) pump(ctx context.Context, sessionID string, sub realtime.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Changes():
			if !ok {
				return context.Canceled
			}
			e.ApplyChange(ev)
		case env, ok := <-sub.Events():
			if !ok {
				return context.Canceled
			}
			e.ApplyEvent(sessionID, env)
		case err := <-sub.Errors():
			return err
		}
	}
}

func (e *Engine) markResync() {
	e.mu.Lock()
	e.needResync = true
	e.mu.Unlock()
}

func (e *Engine) takeResync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.needResync {
		return false
	}
	e.needResync = false
	return true
}

func (e *Engine) wait(ctx context.Context) bool {
	d := e.RetryInterval
	if d <= 0 {
		d = defaultRetryInterval
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (e *Engine) currentUser() (username string, isGM bool) {
	if u := e.stores.Session.CurrentUser(); u != nil {
		return u.Username, u.IsGM
	}
	return "", false
}

type rowID struct {
	ID string `json:"id"`
}

// ApplyChange change-feed 이벤트 1건을 스토어에 반영한다.
// 모든 적용은 id 기준 upsert/삭제라 중복/순서 역전에 안전하다.
func (e *Engine) ApplyChange(ev realtime.ChangeEvent) {
	if ev.Op == realtime.OpDelete {
		var row rowID
		if err := json.Unmarshal(ev.Row, &row); err != nil || row.ID == "" {
			e.log.Warn().Str("table", ev.Table).Msg("[Sync] bad delete row")
			return
		}
		e.applyDelete(ev.Table, row.ID)
		return
	}

	switch ev.Table {
	case realtime.TableSessions:
		var s model.Session
		if json.Unmarshal(ev.Row, &s) == nil {
			e.applySessionRow(&s)
		}
	case realtime.TableSessionPlayers:
		var p model.SessionPlayer
		if json.Unmarshal(ev.Row, &p) == nil {
			e.stores.Session.UpsertPlayer(p)
		}
	case realtime.TableMaps:
		var m model.GameMap
		if json.Unmarshal(ev.Row, &m) == nil {
			e.stores.Map.UpsertMap(m)
		}
	case realtime.TableCharacters:
		var c model.Character
		if json.Unmarshal(ev.Row, &c) == nil {
			e.applyCharacterRow(c)
		}
	case realtime.TableNPCTemplates:
		var t model.NPCTemplate
		if json.Unmarshal(ev.Row, &t) == nil {
			e.stores.Map.UpsertNPCTemplate(t)
		}
	case realtime.TableNPCInstances:
		var inst model.NPCInstance
		if json.Unmarshal(ev.Row, &inst) == nil {
			// 모르는 맵의 인스턴스는 로드 범위 밖이다
			if e.stores.Map.KnownMap(inst.MapID) {
				e.stores.Map.UpsertNPCInstance(inst)
			}
		}
	case realtime.TableHandouts:
		var h model.Handout
		if json.Unmarshal(ev.Row, &h) == nil {
			e.stores.Session.UpsertHandout(h)
		}
	case realtime.TableChatMessages:
		var m model.ChatMessage
		if json.Unmarshal(ev.Row, &m) == nil {
			e.stores.Chat.AppendMessage(m)
		}
	case realtime.TableDiceRolls:
		var d model.DiceRoll
		if json.Unmarshal(ev.Row, &d) == nil {
			username, isGM := e.currentUser()
			if rules.CanSeeDiceRoll(d, username, isGM) {
				e.stores.Chat.AppendRoll(d)
			}
		}
	case realtime.TableInitiativeEntries:
		var entry model.InitiativeEntry
		if json.Unmarshal(ev.Row, &entry) == nil {
			e.stores.Initiative.UpsertEntry(entry)
		}
	case realtime.TableInitiativeRollLogs:
		var l model.InitiativeRollLog
		if json.Unmarshal(ev.Row, &l) == nil {
			e.stores.Initiative.AddRollLog(l)
		}
	default:
		e.log.Debug().Str("table", ev.Table).Msg("[Sync] unknown table, ignored")
	}
}

func (e *Engine) applyDelete(table, id string) {
	switch table {
	case realtime.TableSessions:
		// 세션 자체가 사라짐. 전체 초기화
		e.stores.ResetAll()
	case realtime.TableSessionPlayers:
		e.stores.Session.RemovePlayer(id)
	case realtime.TableMaps:
		e.stores.Map.RemoveMap(id)
	case realtime.TableCharacters:
		e.removeCharacter(id)
	case realtime.TableNPCTemplates:
		e.stores.Map.RemoveNPCTemplate(id)
	case realtime.TableNPCInstances:
		e.stores.Map.RemoveNPCInstance(id)
	case realtime.TableHandouts:
		e.stores.Session.RemoveHandout(id)
	case realtime.TableInitiativeEntries:
		e.stores.Initiative.RemoveEntry(id)
	}
}

// applySessionRow 세션 행 갱신은 파생 상태 2가지를 함께 동기화한다:
// 활성 맵, 현재 유저의 GM 플래그.
func (e *Engine) applySessionRow(s *model.Session) {
	e.stores.Session.SetSession(s)
	if s.ActiveMapID != nil && *s.ActiveMapID != "" {
		e.stores.Map.SetActiveMap(*s.ActiveMapID)
	} else {
		e.stores.Map.ClearActiveMap()
	}
	if u := e.stores.Session.CurrentUser(); u != nil {
		e.stores.Session.SetGMFlag(s.CurrentGMUsername != nil && *s.CurrentGMUsername == u.Username)
	}
}

// applyCharacterRow 캐릭터 갱신 시 내 클레임 상태도 따라간다
func (e *Engine) applyCharacterRow(c model.Character) {
	e.stores.Map.UpsertCharacter(c)
	u := e.stores.Session.CurrentUser()
	if u == nil {
		return
	}
	if c.IsClaimed && c.ClaimedByUsername != nil && *c.ClaimedByUsername == u.Username {
		id := c.ID
		e.stores.Session.SetClaimedCharacter(&id)
	} else if u.CharacterID != nil && *u.CharacterID == c.ID {
		// 내 캐릭터였는데 클레임이 풀렸다
		e.stores.Session.SetClaimedCharacter(nil)
	}
}

func (e *Engine) removeCharacter(id string) {
	e.stores.Map.RemoveCharacter(id)
	if u := e.stores.Session.CurrentUser(); u != nil && u.CharacterID != nil && *u.CharacterID == id {
		e.stores.Session.SetClaimedCharacter(nil)
	}
}

// ApplyEvent broadcast 이벤트 1건을 스토어에 반영한다.
// 발신자 자신은 구독 단계에서 이미 걸러졌다.
func (e *Engine) ApplyEvent(sessionID string, env realtime.Envelope) {
	if env.SessionID != "" && env.SessionID != sessionID {
		e.log.Warn().Str("got", env.SessionID).Msg("[Sync] envelope for wrong session, dropped")
		return
	}

	switch env.Type {
	case realtime.EventTokenMove:
		var p realtime.TokenMovePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if p.TokenType == string(store.TokenNPC) {
			e.stores.Map.MoveNPCInstance(p.TokenID, p.X, p.Y)
		} else {
			e.stores.Map.MoveCharacter(p.TokenID, p.X, p.Y)
		}
	case realtime.EventTokenLock:
		var p realtime.TokenLockPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		e.stores.Map.LockToken(store.TokenRef{Type: store.TokenType(p.TokenType), ID: p.TokenID}, p.Username)
	case realtime.EventTokenUnlock:
		var p realtime.TokenLockPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		e.stores.Map.UnlockToken(store.TokenRef{Type: store.TokenType(p.TokenType), ID: p.TokenID})
	case realtime.EventActiveMap:
		var p realtime.ActiveMapPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if p.MapID != "" {
			e.stores.Map.SetActiveMap(p.MapID)
		}
	case realtime.EventChatMessage:
		var p realtime.ChatMessagePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		e.stores.Chat.AppendMessage(p.Message)
	case realtime.EventDiceRoll:
		var p realtime.DiceRollPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		username, isGM := e.currentUser()
		if rules.CanSeeDiceRoll(p.Roll, username, isGM) {
			e.stores.Chat.AppendRoll(p.Roll)
		}
	default:
		e.log.Debug().Str("type", string(env.Type)).Msg("[Sync] unknown event type, ignored")
	}
}
