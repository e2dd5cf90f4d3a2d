package service

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtt-engine/internal/model"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

// InitiativeService 이니셔티브 롤/편집. 백엔드에 테이블이 없으면 전부
// ErrFeatureUnavailable을 반환한다
type InitiativeService struct {
	repo   *repo.Repo
	stores *store.Set
	log    zerolog.Logger
}

// rollD20 d20 균등 분포 (1~20)
func rollD20() int {
	return rand.IntN(20) + 1
}

func (s *InitiativeService) current() (*store.CurrentUser, string, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, "", vtterr.Validation("not in a session")
	}
	if !s.stores.Initiative.Enabled() {
		return nil, "", vtterr.ErrFeatureUnavailable
	}
	return u, sessionID, nil
}

// RollPlayer 내 캐릭터의 이니셔티브 롤: d20 + 저장된 내 modifier.
// 엔트리는 기본 public. 감사 기록은 best-effort
func (s *InitiativeService) RollPlayer(ctx context.Context) (*model.InitiativeEntry, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}

	modifier := 0
	if p, ok := s.stores.Session.PlayerByUsername(u.Username); ok {
		modifier = p.InitiativeModifier
	}
	roll := rollD20()
	total := roll + modifier

	sourceName := u.Username
	var sourceID *string
	if u.CharacterID != nil {
		if c, ok := s.stores.Map.CharacterByID(*u.CharacterID); ok {
			sourceName = c.Name
			id := c.ID
			sourceID = &id
		}
	}

	e := &model.InitiativeEntry{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		SourceType:       model.SourcePlayer,
		SourceID:         sourceID,
		SourceName:       sourceName,
		RolledByUsername: u.Username,
		Modifier:         modifier,
		RollValue:        &roll,
		Total:            &total,
		Phase:            model.PhaseFast,
		Visibility:       model.InitiativePublic,
	}
	if err := s.repo.CreateInitiativeEntry(ctx, e); err != nil {
		return nil, err
	}
	s.stores.Initiative.UpsertEntry(*e)
	s.appendRollLog(ctx, sessionID, sourceName, u.Username, roll, modifier, total)
	return e, nil
}

// RollNPCBatch 인스턴스 목록에 일괄 롤 (GM 전용). 각 인스턴스가 독립 d20,
// modifier는 공유. 숨겨진 인스턴스의 엔트리는 기본 gm_only
func (s *InitiativeService) RollNPCBatch(ctx context.Context, instanceIDs []string, modifier int) ([]model.InitiativeEntry, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can roll npc initiative")
	}

	entries := make([]model.InitiativeEntry, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		inst, ok := s.stores.Map.NPCInstanceByID(id)
		if !ok {
			return nil, vtterr.NotFound("npc instance %s not found", id)
		}
		roll := rollD20()
		total := roll + modifier
		visibility := model.InitiativePublic
		if inst.Hidden {
			visibility = model.InitiativeGMOnly
		}
		instID := inst.ID
		e := model.InitiativeEntry{
			ID:               uuid.NewString(),
			SessionID:        sessionID,
			SourceType:       model.SourceNPC,
			SourceID:         &instID,
			SourceName:       inst.Name,
			RolledByUsername: u.Username,
			Modifier:         modifier,
			RollValue:        &roll,
			Total:            &total,
			Phase:            model.PhaseFast,
			Visibility:       visibility,
		}
		if err := s.repo.CreateInitiativeEntry(ctx, &e); err != nil {
			return entries, err
		}
		s.stores.Initiative.UpsertEntry(e)
		s.appendRollLog(ctx, sessionID, inst.Name, u.Username, roll, modifier, total)
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateEntry GM의 수동 편집 (total/phase/visibility). ManualOverride가 켜져
// 이후 재계산 대상에서 빠진다
func (s *InitiativeService) UpdateEntry(ctx context.Context, entryID string, fields map[string]any) (*model.InitiativeEntry, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can edit initiative entries")
	}
	if phase, ok := fields["phase"].(string); ok && !model.ValidPhase(phase) {
		return nil, vtterr.Validation("unknown phase %q", phase)
	}
	if v, ok := fields["visibility"].(string); ok && !model.ValidInitiativeVisibility(v) {
		return nil, vtterr.Validation("unknown visibility %q", v)
	}
	fields["manual_override"] = true

	e, err := s.repo.UpdateInitiativeEntryFields(ctx, sessionID, entryID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Initiative.UpsertEntry(*e)
	return e, nil
}

// RemoveEntry 엔트리 제거 (GM 전용)
func (s *InitiativeService) RemoveEntry(ctx context.Context, entryID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can remove initiative entries")
	}
	if err := s.repo.DeleteInitiativeEntry(ctx, sessionID, entryID); err != nil {
		return err
	}
	s.stores.Initiative.RemoveEntry(entryID)
	return nil
}

// ClearAll 전체 초기화 (GM 전용)
func (s *InitiativeService) ClearAll(ctx context.Context) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can clear initiative")
	}
	if err := s.repo.ClearInitiativeEntries(ctx, sessionID); err != nil {
		return err
	}
	s.stores.Initiative.ClearEntries()
	return nil
}

// SetPlayerModifier 내 이니셔티브 modifier 저장
func (s *InitiativeService) SetPlayerModifier(ctx context.Context, modifier int) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	p, ok := s.stores.Session.PlayerByUsername(u.Username)
	if !ok {
		return vtterr.NotFound("player %s not found in session", u.Username)
	}
	updated, err := s.repo.UpdatePlayerFields(ctx, sessionID, p.ID, map[string]any{"initiative_modifier": modifier})
	if err != nil {
		return err
	}
	s.stores.Session.UpsertPlayer(*updated)
	return nil
}

// appendRollLog 감사 기록 (best-effort)
func (s *InitiativeService) appendRollLog(ctx context.Context, sessionID, sourceName, username string, roll, modifier, total int) {
	l := &model.InitiativeRollLog{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		SourceName:       sourceName,
		RolledByUsername: username,
		RollValue:        roll,
		Modifier:         modifier,
		Total:            total,
	}
	if err := s.repo.CreateInitiativeRollLog(ctx, l); err != nil {
		if !errors.Is(err, vtterr.ErrFeatureUnavailable) {
			s.log.Warn().Err(err).Msg("[Initiative] roll log append failed")
		}
		return
	}
	s.stores.Initiative.AddRollLog(*l)
}
