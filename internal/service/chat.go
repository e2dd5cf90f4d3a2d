package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

const maxMessageLength = 2000

// ChatService 채팅/주사위. 저장 → 로컬 추가 → broadcast 순서
type ChatService struct {
	repo   *repo.Repo
	stores *store.Set
	rt     realtime.Publisher
	log    zerolog.Logger
}

func (s *ChatService) current() (*store.CurrentUser, string, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, "", vtterr.Validation("not in a session")
	}
	return u, sessionID, nil
}

// SendMessage 채팅 메시지 전송 (최대 2000자)
func (s *ChatService) SendMessage(ctx context.Context, content string) (*model.ChatMessage, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, vtterr.Validation("message is empty")
	}
	if len(content) > maxMessageLength {
		return nil, vtterr.Validation("message exceeds %d characters", maxMessageLength)
	}

	m := &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Username:  u.Username,
		Content:   content,
	}
	if err := s.repo.CreateChatMessage(ctx, m); err != nil {
		return nil, err
	}
	s.stores.Chat.AppendMessage(*m)

	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventChatMessage,
		realtime.ChatMessagePayload{SessionID: sessionID, Message: *m})
	return m, nil
}

// SendDiceRoll 주사위 결과 전송. 식 해석은 호출측 책임이고 서비스는
// 완성된 결과(개별 눈/합계)를 받는다
func (s *ChatService) SendDiceRoll(ctx context.Context, expression string, results []int, total int, visibility string) (*model.DiceRoll, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(expression) == "" {
		return nil, vtterr.Validation("dice expression is required")
	}
	if len(results) == 0 {
		return nil, vtterr.Validation("dice results are empty")
	}
	if visibility == "" {
		visibility = model.DicePublic
	}
	if !model.ValidDiceVisibility(visibility) {
		return nil, vtterr.Validation("unknown dice visibility %q", visibility)
	}

	d := &model.DiceRoll{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Username:   u.Username,
		Expression: expression,
		Results:    model.EncodeDiceResults(results),
		Total:      total,
		Visibility: visibility,
	}
	if err := s.repo.CreateDiceRoll(ctx, d); err != nil {
		return nil, err
	}
	s.stores.Chat.AppendRoll(*d)

	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventDiceRoll,
		realtime.DiceRollPayload{SessionID: sessionID, Roll: *d})
	return d, nil
}
