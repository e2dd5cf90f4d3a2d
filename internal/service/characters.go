package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/rules"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

// CharacterService 플레이어 토큰 CRUD, 이동, 클레임
type CharacterService struct {
	repo   *repo.Repo
	stores *store.Set
	rt     realtime.Publisher
	log    zerolog.Logger
}

func (s *CharacterService) current() (*store.CurrentUser, string, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, "", vtterr.Validation("not in a session")
	}
	return u, sessionID, nil
}

// CreateCharacter 캐릭터 생성
func (s *CharacterService) CreateCharacter(ctx context.Context, name, tokenURL, size string) (*model.Character, error) {
	_, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, vtterr.Validation("character name is required")
	}
	if size == "" {
		size = model.SizeMedium
	}
	if !model.ValidSize(size) {
		return nil, vtterr.Validation("unknown size %q", size)
	}

	c := &model.Character{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		TokenURL:  tokenURL,
		Size:      size,
		Inventory: "[]",
	}
	if err := s.repo.CreateCharacter(ctx, c); err != nil {
		return nil, err
	}
	s.stores.Map.UpsertCharacter(*c)
	return c, nil
}

// UpdateCharacter 캐릭터 부분 갱신 (이름/토큰/크기/상태색/노트/인벤토리)
func (s *CharacterService) UpdateCharacter(ctx context.Context, charID string, fields map[string]any) (*model.Character, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	c, ok := s.stores.Map.CharacterByID(charID)
	if !ok {
		return nil, vtterr.NotFound("character %s not found", charID)
	}
	if !u.IsGM && !(c.IsClaimed && c.ClaimedByUsername != nil && *c.ClaimedByUsername == u.Username) {
		return nil, vtterr.Permission("character %s is not yours to edit", charID)
	}
	if size, ok := fields["size"].(string); ok && !model.ValidSize(size) {
		return nil, vtterr.Validation("unknown size %q", size)
	}

	updated, err := s.repo.UpdateCharacterFields(ctx, sessionID, charID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Map.UpsertCharacter(*updated)
	return updated, nil
}

// MoveCharacter 낙관적 이동: 이전 좌표 스냅샷 → 로컬 이동 → 내구 쓰기.
// 실패하면 스냅샷 좌표로 되돌린다. 성공 시 token_move broadcast
func (s *CharacterService) MoveCharacter(ctx context.Context, charID string, x, y float64) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	c, ok := s.stores.Map.CharacterByID(charID)
	if !ok {
		return vtterr.NotFound("character %s not found", charID)
	}
	if !rules.CanMoveCharacter(u.Username, u.IsGM, c) {
		return vtterr.Permission("character %s is not yours to move", charID)
	}
	prevX, prevY := c.X, c.Y

	err = runOptimistic(
		func() { s.stores.Map.MoveCharacter(charID, x, y) },
		func() { s.stores.Map.MoveCharacter(charID, prevX, prevY) },
		func() error { return s.repo.MoveCharacter(ctx, sessionID, charID, x, y) },
	)
	if err != nil {
		return err
	}

	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventTokenMove, realtime.TokenMovePayload{
		SessionID: sessionID,
		TokenID:   charID,
		TokenType: string(store.TokenCharacter),
		X:         x,
		Y:         y,
	})
	return nil
}

// ClaimCharacter 캐릭터 선점. 경합에서 지면 PermissionError
func (s *CharacterService) ClaimCharacter(ctx context.Context, charID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if _, ok := s.stores.Map.CharacterByID(charID); !ok {
		return vtterr.NotFound("character %s not found", charID)
	}

	won, err := s.repo.ClaimCharacter(ctx, sessionID, charID, u.Username)
	if err != nil {
		return err
	}
	if !won {
		return vtterr.Permission("character %s is already claimed", charID)
	}

	if c, err := s.repo.CharacterByID(ctx, charID); err == nil {
		s.stores.Map.UpsertCharacter(*c)
	}
	id := charID
	s.stores.Session.SetClaimedCharacter(&id)
	return nil
}

// ReleaseCharacter 내 클레임 해제
func (s *CharacterService) ReleaseCharacter(ctx context.Context, charID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if err := s.repo.ReleaseCharacter(ctx, sessionID, charID, u.Username); err != nil {
		return err
	}
	if c, err := s.repo.CharacterByID(ctx, charID); err == nil {
		s.stores.Map.UpsertCharacter(*c)
	}
	if u.CharacterID != nil && *u.CharacterID == charID {
		s.stores.Session.SetClaimedCharacter(nil)
	}
	return nil
}

// DeleteCharacter 캐릭터 삭제 (GM 전용)
func (s *CharacterService) DeleteCharacter(ctx context.Context, charID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can delete characters")
	}
	if err := s.repo.DeleteCharacter(ctx, sessionID, charID); err != nil {
		return err
	}
	s.stores.Map.RemoveCharacter(charID)
	if u.CharacterID != nil && *u.CharacterID == charID {
		s.stores.Session.SetClaimedCharacter(nil)
	}
	return nil
}
