package store

import (
	"sort"
	"sync"
	"time"

	"vtt-engine/internal/model"
)

// ConnectionStatus 실시간 채널 연결 상태
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// CurrentUser 이 클라이언트의 로컬 사용자 정보
type CurrentUser struct {
	Username    string
	IsGM        bool
	CharacterID *string
}

// SessionStore 세션 메타데이터/참가자/연결 상태 스토어.
// 세션 입장 시 생성하고 퇴장 시 Reset한다. 전역 변수로 두지 않는다.
type SessionStore struct {
	mu       sync.RWMutex
	session  *model.Session
	current  *CurrentUser
	players  []model.SessionPlayer
	handouts []model.Handout
	status   ConnectionStatus
}

// NewSessionStore 세션 스토어 생성
func NewSessionStore() *SessionStore {
	return &SessionStore{status: StatusDisconnected}
}

// SetSession 세션 스냅샷 교체
func (s *SessionStore) SetSession(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		s.session = nil
		return
	}
	cp := *sess
	s.session = &cp

	// GM 주인이 바뀌면 로컬 사용자의 GM 플래그도 따라간다
	if s.current != nil {
		s.current.IsGM = cp.CurrentGMUsername != nil && *cp.CurrentGMUsername == s.current.Username
	}
}

// Session 세션 스냅샷 조회 (복사본)
func (s *SessionStore) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// SessionID 현재 세션 ID ("" = 미입장)
func (s *SessionStore) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// SetCurrentUser 로컬 사용자 설정
func (s *SessionStore) SetCurrentUser(username string, isGM bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &CurrentUser{Username: username, IsGM: isGM}
}

// CurrentUser 로컬 사용자 조회 (복사본, 미설정이면 nil)
func (s *SessionStore) CurrentUser() *CurrentUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// SetGMFlag 로컬 사용자 GM 플래그 변경
func (s *SessionStore) SetGMFlag(isGM bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.IsGM = isGM
	}
}

// SetClaimedCharacter 로컬 사용자의 점유 캐릭터 변경 (nil = 해제)
func (s *SessionStore) SetClaimedCharacter(characterID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.CharacterID = characterID
	}
}

// SetPlayers 참가자 목록 교체
func (s *SessionStore) SetPlayers(players []model.SessionPlayer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players = append([]model.SessionPlayer(nil), players...)
}

// UpsertPlayer 참가자 삽입/병합 (id 기준, 중복 전달에 멱등)
func (s *SessionStore) UpsertPlayer(p model.SessionPlayer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.players {
		if s.players[i].ID == p.ID {
			s.players[i] = p
			return
		}
	}
	s.players = append(s.players, p)
}

// RemovePlayer 참가자 제거
func (s *SessionStore) RemovePlayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.players {
		if s.players[i].ID == id {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return
		}
	}
}

// Players 참가자 목록 (복사본)
func (s *SessionStore) Players() []model.SessionPlayer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.SessionPlayer(nil), s.players...)
}

// PlayerByUsername 참가자 조회
func (s *SessionStore) PlayerByUsername(username string) (model.SessionPlayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.players {
		if p.Username == username {
			return p, true
		}
	}
	return model.SessionPlayer{}, false
}

// TouchPlayer 참가자 lastSeen 갱신
func (s *SessionStore) TouchPlayer(username string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.players {
		if s.players[i].Username == username {
			s.players[i].LastSeen = at
			return
		}
	}
}

// SetHandouts 핸드아웃 목록 교체 (정렬 유지)
func (s *SessionStore) SetHandouts(handouts []model.Handout) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handouts = append([]model.Handout(nil), handouts...)
	sortHandouts(s.handouts)
}

// UpsertHandout 핸드아웃 삽입/병합
func (s *SessionStore) UpsertHandout(h model.Handout) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.handouts {
		if s.handouts[i].ID == h.ID {
			s.handouts[i] = h
			sortHandouts(s.handouts)
			return
		}
	}
	s.handouts = append(s.handouts, h)
	sortHandouts(s.handouts)
}

// RemoveHandout 핸드아웃 제거
func (s *SessionStore) RemoveHandout(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.handouts {
		if s.handouts[i].ID == id {
			s.handouts = append(s.handouts[:i], s.handouts[i+1:]...)
			return
		}
	}
}

// Handouts 핸드아웃 목록 (복사본, sort_order 순)
func (s *SessionStore) Handouts() []model.Handout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Handout(nil), s.handouts...)
}

// SetStatus 연결 상태 전환
func (s *SessionStore) SetStatus(status ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// Status 연결 상태 조회
func (s *SessionStore) Status() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// Reset 스토어 초기화 (세션 퇴장)
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	s.current = nil
	s.players = nil
	s.handouts = nil
	s.status = StatusDisconnected
}

func sortHandouts(handouts []model.Handout) {
	sort.SliceStable(handouts, func(i, j int) bool {
		return handouts[i].SortOrder < handouts[j].SortOrder
	})
}
