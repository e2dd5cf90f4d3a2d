package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtt-engine/internal/joincode"
	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/rules"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

const joinCodeRetries = 5

// SessionService 세션 생성/입장/퇴장과 전체 스냅샷 적재
type SessionService struct {
	repo   *repo.Repo
	stores *store.Set
	rt     realtime.Publisher
	log    zerolog.Logger
}

// CreateSession 세션 + 생성자 참가자 행을 만들고 로컬 상태를 초기화한다.
// 조인 코드 충돌은 새 코드로 최대 5회 재시도한다.
func (s *SessionService) CreateSession(ctx context.Context, name, username string) (*model.Session, error) {
	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	if name == "" {
		return nil, vtterr.Validation("session name is required")
	}
	if username == "" {
		return nil, vtterr.Validation("username is required")
	}

	var sess *model.Session
	var lastErr error
	for i := 0; i < joinCodeRetries; i++ {
		candidate := &model.Session{
			ID:                uuid.NewString(),
			JoinCode:          joincode.Generate(),
			Name:              name,
			CurrentGMUsername: &username,
		}
		if err := s.repo.CreateSession(ctx, candidate); err != nil {
			// 조인 코드 unique 충돌만 새 코드로 재시도한다
			if !repo.IsDuplicateKey(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		sess = candidate
		break
	}
	if sess == nil {
		return nil, vtterr.Backend(lastErr, "failed to create session after %d attempts", joinCodeRetries)
	}

	player := &model.SessionPlayer{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Username:  username,
		IsGM:      true,
		LastSeen:  time.Now(),
	}
	if err := s.repo.CreatePlayer(ctx, player); err != nil {
		// 고아 세션 보상 삭제. 실패해도 로그만 남긴다
		if delErr := s.repo.DeleteSession(ctx, sess.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("session_id", sess.ID).Msg("[Session] orphan cleanup failed")
		}
		return nil, err
	}

	s.stores.Session.SetSession(sess)
	s.stores.Session.SetCurrentUser(username, true)
	s.stores.Session.SetPlayers([]model.SessionPlayer{*player})
	s.log.Info().Str("session_id", sess.ID).Str("code", joincode.Format(sess.JoinCode)).Msg("[Session] created")
	return sess, nil
}

// JoinSession 조인 코드로 입장. 같은 username의 재입장은 lastSeen만 갱신한다
func (s *SessionService) JoinSession(ctx context.Context, code, username string) (*model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, vtterr.Validation("username is required")
	}
	if !joincode.Valid(code) {
		return nil, vtterr.Validation("malformed join code %q", code)
	}

	sess, err := s.repo.SessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.PlayerByUsername(ctx, sess.ID, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.repo.TouchPlayer(ctx, existing); err != nil {
			return nil, err
		}
	} else {
		player := &model.SessionPlayer{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Username:  username,
			LastSeen:  time.Now(),
		}
		if err := s.repo.CreatePlayer(ctx, player); err != nil {
			return nil, err
		}
	}

	isGM := sess.CurrentGMUsername != nil && *sess.CurrentGMUsername == username
	s.stores.Session.SetSession(sess)
	s.stores.Session.SetCurrentUser(username, isGM)

	if err := s.LoadSessionData(ctx, sess.ID); err != nil {
		return nil, err
	}
	s.log.Info().Str("session_id", sess.ID).Str("username", username).Bool("is_gm", isGM).Msg("[Session] joined")
	return sess, nil
}

// LoadSessionData 전체 스냅샷 적재. 재연결 resync의 기준점이기도 하다.
// 적재 순서: 맵 → 활성 맵 → 캐릭터 → NPC 템플릿 → NPC 인스턴스(적재된 맵 한정)
// → 참가자 → 채팅 → 주사위 → 이니셔티브(선택적) → 핸드아웃
func (s *SessionService) LoadSessionData(ctx context.Context, sessionID string) error {
	sess, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Session.SetSession(sess)

	maps, err := s.repo.MapsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Map.SetMaps(maps)
	if sess.ActiveMapID != nil && *sess.ActiveMapID != "" {
		s.stores.Map.SetActiveMap(*sess.ActiveMapID)
	} else {
		s.stores.Map.ClearActiveMap()
	}

	chars, err := s.repo.CharactersBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Map.SetCharacters(chars)
	s.syncClaimedCharacter(chars)

	templates, err := s.repo.NPCTemplatesBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Map.SetNPCTemplates(templates)

	mapIDs := make([]string, 0, len(maps))
	for _, m := range maps {
		mapIDs = append(mapIDs, m.ID)
	}
	instances, err := s.repo.NPCInstancesByMapIDs(ctx, mapIDs)
	if err != nil {
		return err
	}
	s.stores.Map.SetNPCInstances(instances)

	players, err := s.repo.PlayersBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Session.SetPlayers(players)

	msgs, err := s.repo.RecentChatMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Chat.SetMessages(msgs)

	rolls, err := s.repo.RecentDiceRolls(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Chat.SetRolls(s.visibleRolls(rolls))

	if err := s.loadInitiative(ctx, sessionID); err != nil {
		return err
	}

	handouts, err := s.repo.HandoutsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.stores.Session.SetHandouts(handouts)
	return nil
}

// loadInitiative 이니셔티브 적재. 테이블이 없는 백엔드는 기능을 끈다
func (s *SessionService) loadInitiative(ctx context.Context, sessionID string) error {
	entries, err := s.repo.InitiativeEntriesBySession(ctx, sessionID)
	if errors.Is(err, vtterr.ErrFeatureUnavailable) {
		s.stores.Initiative.SetEnabled(false)
		s.log.Info().Msg("[Session] initiative tables absent, feature disabled")
		return nil
	}
	if err != nil {
		return err
	}
	s.stores.Initiative.SetEnabled(true)
	s.stores.Initiative.SetEntries(entries)

	logs, err := s.repo.InitiativeRollLogsBySession(ctx, sessionID)
	if err != nil && !errors.Is(err, vtterr.ErrFeatureUnavailable) {
		return err
	}
	s.stores.Initiative.SetRollLogs(logs)
	return nil
}

// ClaimGM GM 선점. 경합에서 지면 PermissionError
func (s *SessionService) ClaimGM(ctx context.Context) error {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return vtterr.Validation("not in a session")
	}
	won, err := s.repo.ClaimGM(ctx, sessionID, u.Username)
	if err != nil {
		return err
	}
	if !won {
		return vtterr.Permission("someone else claimed GM first")
	}
	s.stores.Session.SetGMFlag(true)
	if sess, err := s.repo.SessionByID(ctx, sessionID); err == nil {
		s.stores.Session.SetSession(sess)
	}
	return nil
}

// ReleaseGM 현 GM의 역할 반납
func (s *SessionService) ReleaseGM(ctx context.Context) error {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return vtterr.Validation("not in a session")
	}
	if err := s.repo.ReleaseGM(ctx, sessionID, u.Username); err != nil {
		return err
	}
	s.stores.Session.SetGMFlag(false)
	if sess, err := s.repo.SessionByID(ctx, sessionID); err == nil {
		s.stores.Session.SetSession(sess)
	}
	return nil
}

// UpdateSettings 세션 토글/노트패드 부분 갱신 (GM 전용)
func (s *SessionService) UpdateSettings(ctx context.Context, fields map[string]any) error {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return vtterr.Validation("not in a session")
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can change session settings")
	}
	sess, err := s.repo.UpdateSessionFields(ctx, sessionID, fields)
	if err != nil {
		return err
	}
	s.stores.Session.SetSession(sess)
	return nil
}

// LeaveSession 퇴장: GM이면 반납, 클레임 해제, 참가자 행 삭제, 스토어 전체 초기화
func (s *SessionService) LeaveSession(ctx context.Context) error {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		s.stores.ResetAll()
		return nil
	}

	if u.IsGM {
		if err := s.repo.ReleaseGM(ctx, sessionID, u.Username); err != nil {
			s.log.Warn().Err(err).Msg("[Session] gm release on leave failed")
		}
	}
	if err := s.repo.ReleaseCharactersClaimedBy(ctx, sessionID, u.Username); err != nil {
		s.log.Warn().Err(err).Msg("[Session] claim release on leave failed")
	}
	if p, err := s.repo.PlayerByUsername(ctx, sessionID, u.Username); err == nil && p != nil {
		if err := s.repo.DeletePlayer(ctx, sessionID, p.ID); err != nil {
			s.log.Warn().Err(err).Msg("[Session] player row delete on leave failed")
		}
	}

	s.stores.ResetAll()
	s.log.Info().Str("session_id", sessionID).Str("username", u.Username).Msg("[Session] left")
	return nil
}

func (s *SessionService) syncClaimedCharacter(chars []model.Character) {
	u := s.stores.Session.CurrentUser()
	if u == nil {
		return
	}
	for _, c := range chars {
		if c.IsClaimed && c.ClaimedByUsername != nil && *c.ClaimedByUsername == u.Username {
			id := c.ID
			s.stores.Session.SetClaimedCharacter(&id)
			return
		}
	}
	s.stores.Session.SetClaimedCharacter(nil)
}

func (s *SessionService) visibleRolls(rolls []model.DiceRoll) []model.DiceRoll {
	u := s.stores.Session.CurrentUser()
	username, isGM := "", false
	if u != nil {
		username, isGM = u.Username, u.IsGM
	}
	out := rolls[:0:0]
	for _, r := range rolls {
		if rules.CanSeeDiceRoll(r, username, isGM) {
			out = append(out, r)
		}
	}
	return out
}
