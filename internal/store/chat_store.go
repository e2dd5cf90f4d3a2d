package store

import (
	"sync"

	"vtt-engine/internal/model"
)

// 히스토리 상한. 오래된 항목부터 버린다 (의도된 메모리 바운드 정책)
const (
	MaxChatMessages = 500
	MaxDiceRolls    = 100
)

// ChatStore 채팅/주사위 히스토리 스토어 (append-only, 상한 있음)
type ChatStore struct {
	mu       sync.RWMutex
	messages []model.ChatMessage
	rolls    []model.DiceRoll
}

// NewChatStore 채팅 스토어 생성
func NewChatStore() *ChatStore {
	return &ChatStore{}
}

// SetMessages 메시지 목록 교체 (스냅샷 로드)
func (s *ChatStore) SetMessages(messages []model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append([]model.ChatMessage(nil), messages...)
	if n := len(s.messages); n > MaxChatMessages {
		s.messages = s.messages[n-MaxChatMessages:]
	}
}

// AppendMessage 메시지 추가. 같은 id의 중복 전달은 무시된다
func (s *ChatStore) AppendMessage(m model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			return
		}
	}
	s.messages = append(s.messages, m)
	if len(s.messages) > MaxChatMessages {
		s.messages = s.messages[1:]
	}
}

// Messages 메시지 목록 (복사본, 오래된 것부터)
func (s *ChatStore) Messages() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.ChatMessage(nil), s.messages...)
}

// SetRolls 주사위 목록 교체 (스냅샷 로드)
func (s *ChatStore) SetRolls(rolls []model.DiceRoll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolls = append([]model.DiceRoll(nil), rolls...)
	if n := len(s.rolls); n > MaxDiceRolls {
		s.rolls = s.rolls[n-MaxDiceRolls:]
	}
}

// AppendRoll 주사위 결과 추가. 같은 id의 중복 전달은 무시된다
func (s *ChatStore) AppendRoll(r model.DiceRoll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rolls {
		if s.rolls[i].ID == r.ID {
			return
		}
	}
	s.rolls = append(s.rolls, r)
	if len(s.rolls) > MaxDiceRolls {
		s.rolls = s.rolls[1:]
	}
}

// Rolls 주사위 목록 (복사본, 오래된 것부터)
func (s *ChatStore) Rolls() []model.DiceRoll {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.DiceRoll(nil), s.rolls...)
}

// Reset 스토어 초기화
func (s *ChatStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.rolls = nil
}
