package service

import (
	"context"
	"errors"
	"fmt"
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

// NPCService NPC 템플릿/인스턴스 관리
type NPCService struct {
	repo   *repo.Repo
	stores *store.Set
	rt     realtime.Publisher
	log    zerolog.Logger
}

func (s *NPCService) current() (*store.CurrentUser, string, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, "", vtterr.Validation("not in a session")
	}
	return u, sessionID, nil
}

func (s *NPCService) canEdit(u *store.CurrentUser) bool {
	sess := s.stores.Session.Session()
	allowPlayerEdit := sess != nil && sess.AllowPlayerNPCEdit
	return rules.CanMoveNPC(u.IsGM, allowPlayerEdit)
}

// --- 템플릿 ---

// CreateTemplate NPC 템플릿 생성 (GM 전용)
func (s *NPCService) CreateTemplate(ctx context.Context, name, tokenURL, size, notes string) (*model.NPCTemplate, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can manage npc templates")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, vtterr.Validation("template name is required")
	}
	if size == "" {
		size = model.SizeMedium
	}
	if !model.ValidSize(size) {
		return nil, vtterr.Validation("unknown size %q", size)
	}

	t := &model.NPCTemplate{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		TokenURL:  tokenURL,
		Size:      size,
		Notes:     notes,
	}
	if err := s.repo.CreateNPCTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.stores.Map.UpsertNPCTemplate(*t)
	return t, nil
}

// UpdateTemplate 템플릿 부분 갱신 (GM 전용). 기존 인스턴스에는 소급되지 않는다
func (s *NPCService) UpdateTemplate(ctx context.Context, templateID string, fields map[string]any) (*model.NPCTemplate, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can manage npc templates")
	}
	t, err := s.repo.UpdateNPCTemplateFields(ctx, sessionID, templateID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Map.UpsertNPCTemplate(*t)
	return t, nil
}

// DeleteTemplate 템플릿 삭제 (GM 전용). 배치된 인스턴스는 그대로 남는다
func (s *NPCService) DeleteTemplate(ctx context.Context, templateID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can manage npc templates")
	}
	if err := s.repo.DeleteNPCTemplate(ctx, sessionID, templateID); err != nil {
		return err
	}
	s.stores.Map.RemoveNPCTemplate(templateID)
	return nil
}

// --- 인스턴스 ---

// PlaceInstance 템플릿을 맵에 배치한다. 토큰/크기/노트는 배치 시점에 복사되고
// 이름은 "{템플릿명}-{n}"으로 자동 부여된다
func (s *NPCService) PlaceInstance(ctx context.Context, templateID, mapID string, x, y float64) (*model.NPCInstance, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !s.canEdit(u) {
		return nil, vtterr.Permission("npc placement is not allowed for players in this session")
	}
	if !s.stores.Map.KnownMap(mapID) {
		return nil, vtterr.NotFound("map %s not found", mapID)
	}
	t, ok := s.stores.Map.NPCTemplateByID(templateID)
	if !ok {
		return nil, vtterr.NotFound("npc template %s not found", templateID)
	}

	n, err := s.repo.CountInstancesByTemplate(ctx, templateID, mapID)
	if err != nil {
		return nil, err
	}

	tid := templateID
	inst := &model.NPCInstance{
		ID:         uuid.NewString(),
		MapID:      mapID,
		TemplateID: &tid,
		Name:       fmt.Sprintf("%s-%d", t.Name, n+1),
		TokenURL:   t.TokenURL,
		Size:       t.Size,
		Notes:      t.Notes,
		X:          x,
		Y:          y,
	}
	if err := s.repo.CreateNPCInstance(ctx, sessionID, inst); err != nil {
		return nil, err
	}
	s.stores.Map.UpsertNPCInstance(*inst)
	return inst, nil
}

// MoveInstance 낙관적 이동 + 실패 시 복구 + token_move broadcast
func (s *NPCService) MoveInstance(ctx context.Context, instanceID string, x, y float64) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !s.canEdit(u) {
		return vtterr.Permission("npc moves are not allowed for players in this session")
	}
	inst, ok := s.stores.Map.NPCInstanceByID(instanceID)
	if !ok {
		return vtterr.NotFound("npc instance %s not found", instanceID)
	}
	prevX, prevY := inst.X, inst.Y

	err = runOptimistic(
		func() { s.stores.Map.MoveNPCInstance(instanceID, x, y) },
		func() { s.stores.Map.MoveNPCInstance(instanceID, prevX, prevY) },
		func() error { return s.repo.MoveNPCInstance(ctx, sessionID, instanceID, x, y) },
	)
	if err != nil {
		return err
	}

	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventTokenMove, realtime.TokenMovePayload{
		SessionID: sessionID,
		TokenID:   instanceID,
		TokenType: string(store.TokenNPC),
		X:         x,
		Y:         y,
	})
	return nil
}

// RenameInstance 인스턴스 개명. 이니셔티브 엔트리의 표시 이름도 따라 바뀐다.
// 2차 쓰기(엔트리 전파) 실패는 개명을 되돌리지 않고 에러로만 올린다
func (s *NPCService) RenameInstance(ctx context.Context, instanceID, name string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !s.canEdit(u) {
		return vtterr.Permission("npc edits are not allowed for players in this session")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return vtterr.Validation("npc name is required")
	}

	inst, err := s.repo.UpdateNPCInstanceFields(ctx, sessionID, instanceID, map[string]any{"name": name})
	if err != nil {
		return err
	}
	s.stores.Map.UpsertNPCInstance(*inst)

	if err := s.repo.UpdateEntrySourceNames(ctx, sessionID, instanceID, name); err != nil {
		if errors.Is(err, vtterr.ErrFeatureUnavailable) {
			return nil
		}
		return vtterr.Backend(err, "renamed npc but initiative entries were not updated")
	}
	for _, e := range s.stores.Initiative.Entries() {
		if e.SourceID != nil && *e.SourceID == instanceID {
			e.SourceName = name
			s.stores.Initiative.UpsertEntry(e)
		}
	}
	return nil
}

// SetInstanceHidden 숨김 토글 (GM 전용, 플레이어 가시성 규칙의 입력)
func (s *NPCService) SetInstanceHidden(ctx context.Context, instanceID string, hidden bool) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can hide npcs")
	}
	inst, err := s.repo.UpdateNPCInstanceFields(ctx, sessionID, instanceID, map[string]any{"hidden": hidden})
	if err != nil {
		return err
	}
	s.stores.Map.UpsertNPCInstance(*inst)
	return nil
}

// UpdateInstance 인스턴스 부분 갱신 (상태색/노트/크기 등)
func (s *NPCService) UpdateInstance(ctx context.Context, instanceID string, fields map[string]any) (*model.NPCInstance, error) {
	u, sessionID, err := s.current()
	if err != nil {
		return nil, err
	}
	if !s.canEdit(u) {
		return nil, vtterr.Permission("npc edits are not allowed for players in this session")
	}
	if size, ok := fields["size"].(string); ok && !model.ValidSize(size) {
		return nil, vtterr.Validation("unknown size %q", size)
	}
	inst, err := s.repo.UpdateNPCInstanceFields(ctx, sessionID, instanceID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Map.UpsertNPCInstance(*inst)
	return inst, nil
}

// DeleteInstance 인스턴스 삭제
func (s *NPCService) DeleteInstance(ctx context.Context, instanceID string) error {
	u, sessionID, err := s.current()
	if err != nil {
		return err
	}
	if !s.canEdit(u) {
		return vtterr.Permission("npc edits are not allowed for players in this session")
	}
	if err := s.repo.DeleteNPCInstance(ctx, sessionID, instanceID); err != nil {
		return err
	}
	s.stores.Map.RemoveNPCInstance(instanceID)
	return nil
}
