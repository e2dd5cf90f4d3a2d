// Package realtime 세션 단위 실시간 채널 2종을 제공한다.
//
//  1. change-feed: 내구 저장소의 행 단위 변경 알림 (INSERT/UPDATE/DELETE).
//     커밋된 쓰기마다 발행되며, 발행자 자신에게도 되돌아온다.
//  2. broadcast: 저지연 휘발성 팬아웃 (토큰 이동, 활성 맵 전환, 채팅/주사위).
//     발행자 자신은 수신하지 않는다 (낙관적 업데이트를 이미 적용했으므로).
//
// 같은 논리적 변경이 두 채널로 모두 도착할 수 있고 순서 보장도 없다.
// 수신측 스토어의 id 기준 upsert 멱등성이 중복을 흡수한다.
package realtime

import (
	"encoding/json"

	"vtt-engine/internal/model"
)

// Change-feed가 나르는 테이블 이름
const (
	TableSessions           = "sessions"
	TableSessionPlayers     = "session_players"
	TableMaps               = "maps"
	TableCharacters         = "characters"
	TableNPCTemplates       = "npc_templates"
	TableNPCInstances       = "npc_instances"
	TableHandouts           = "handouts"
	TableChatMessages       = "chat_messages"
	TableDiceRolls          = "dice_rolls"
	TableInitiativeEntries  = "initiative_entries"
	TableInitiativeRollLogs = "initiative_roll_logs"
)

// Op 행 변경 종류
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent change-feed 메시지. Row는 INSERT/UPDATE면 전체 행,
// DELETE면 최소한 id를 담은 JSON이다.
type ChangeEvent struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Row   json.RawMessage `json:"row"`
}

// NewChangeEvent 행을 직렬화해 change-feed 이벤트를 만든다
func NewChangeEvent(table string, op Op, row any) (ChangeEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{Table: table, Op: op, Row: raw}, nil
}

// EventType broadcast 이벤트 종류
type EventType string

const (
	EventTokenMove   EventType = "token_move"
	EventTokenLock   EventType = "token_lock"
	EventTokenUnlock EventType = "token_unlock"
	EventActiveMap   EventType = "active_map"
	EventChatMessage EventType = "chat_message"
	EventDiceRoll    EventType = "dice_roll"
)

// Envelope broadcast 메시지 봉투. 채널 자체가 세션 스코프지만
// 토픽 일관성 검증을 위해 SessionID를 함께 나른다.
type Envelope struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	SenderID  string          `json:"sender_id"`
	Payload   json.RawMessage `json:"payload"`
}

// TokenMovePayload 토큰 이동
type TokenMovePayload struct {
	SessionID string  `json:"session_id"`
	TokenID   string  `json:"token_id"`
	TokenType string  `json:"token_type"` // character | npc
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// TokenLockPayload 드래그 중 잠금/해제
type TokenLockPayload struct {
	SessionID string `json:"session_id"`
	TokenID   string `json:"token_id"`
	TokenType string `json:"token_type"`
	Username  string `json:"username"`
}

// ActiveMapPayload 활성 맵 전환
type ActiveMapPayload struct {
	SessionID string `json:"session_id"`
	MapID     string `json:"map_id"`
}

// ChatMessagePayload 채팅 팬아웃
type ChatMessagePayload struct {
	SessionID string            `json:"session_id"`
	Message   model.ChatMessage `json:"message"`
}

// DiceRollPayload 주사위 팬아웃
type DiceRollPayload struct {
	SessionID string         `json:"session_id"`
	Roll      model.DiceRoll `json:"roll"`
}

// FeedTopic change-feed 토픽 이름
func FeedTopic(sessionID string) string {
	return "vtt:session:" + sessionID + ":feed"
}

// EventTopic broadcast 토픽 이름
func EventTopic(sessionID string) string {
	return "vtt:session:" + sessionID + ":events"
}
