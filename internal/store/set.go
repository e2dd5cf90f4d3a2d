package store

// Set 한 세션에 묶인 스토어 묶음. 세션 입장 시 생성하고 퇴장 시 ResetAll.
type Set struct {
	Session    *SessionStore
	Map        *MapStore
	Chat       *ChatStore
	Initiative *InitiativeStore
}

// NewSet 스토어 묶음 생성
func NewSet() *Set {
	return &Set{
		Session:    NewSessionStore(),
		Map:        NewMapStore(),
		Chat:       NewChatStore(),
		Initiative: NewInitiativeStore(),
	}
}

// ResetAll 네 스토어 모두 초기화
func (s *Set) ResetAll() {
	s.Session.Reset()
	s.Map.Reset()
	s.Chat.Reset()
	s.Initiative.Reset()
}
