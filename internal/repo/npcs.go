package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// --- NPC 템플릿 ---

// CreateNPCTemplate 템플릿 행 생성
func (r *Repo) CreateNPCTemplate(ctx context.Context, t *model.NPCTemplate) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return vtterr.Backend(err, "failed to create npc template")
	}
	r.publishChange(ctx, t.SessionID, realtime.TableNPCTemplates, realtime.OpInsert, t)
	return nil
}

// NPCTemplateByID 템플릿 조회
func (r *Repo) NPCTemplateByID(ctx context.Context, id string) (*model.NPCTemplate, error) {
	var t model.NPCTemplate
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("npc template %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load npc template")
	}
	return &t, nil
}

// NPCTemplatesBySession 세션 템플릿 목록
func (r *Repo) NPCTemplatesBySession(ctx context.Context, sessionID string) ([]model.NPCTemplate, error) {
	var templates []model.NPCTemplate
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).Order("created_at ASC").Find(&templates).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load npc templates")
	}
	return templates, nil
}

// UpdateNPCTemplateFields 템플릿 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateNPCTemplateFields(ctx context.Context, sessionID, templateID string, fields map[string]any) (*model.NPCTemplate, error) {
	if err := r.db.WithContext(ctx).Model(&model.NPCTemplate{}).
		Where("id = ?", templateID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update npc template")
	}
	t, err := r.NPCTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableNPCTemplates, realtime.OpUpdate, t)
	return t, nil
}

// DeleteNPCTemplate 템플릿 삭제. 배치된 인스턴스는 남는다
func (r *Repo) DeleteNPCTemplate(ctx context.Context, sessionID, templateID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.NPCTemplate{}, "id = ?", templateID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete npc template")
	}
	r.publishChange(ctx, sessionID, realtime.TableNPCTemplates, realtime.OpDelete, deletedRow{ID: templateID})
	return nil
}

// --- NPC 인스턴스 ---

// CreateNPCInstance 인스턴스 행 생성
func (r *Repo) CreateNPCInstance(ctx context.Context, sessionID string, inst *model.NPCInstance) error {
	if err := r.db.WithContext(ctx).Create(inst).Error; err != nil {
		return vtterr.Backend(err, "failed to create npc instance")
	}
	r.publishChange(ctx, sessionID, realtime.TableNPCInstances, realtime.OpInsert, inst)
	return nil
}

// NPCInstanceByID 인스턴스 조회
func (r *Repo) NPCInstanceByID(ctx context.Context, id string) (*model.NPCInstance, error) {
	var inst model.NPCInstance
	err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("npc instance %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load npc instance")
	}
	return &inst, nil
}

// NPCInstancesByMapIDs 여러 맵의 인스턴스 일괄 조회 (세션 로드용)
func (r *Repo) NPCInstancesByMapIDs(ctx context.Context, mapIDs []string) ([]model.NPCInstance, error) {
	if len(mapIDs) == 0 {
		return nil, nil
	}
	var instances []model.NPCInstance
	if err := r.db.WithContext(ctx).
		Where("map_id IN ?", mapIDs).Order("created_at ASC").Find(&instances).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load npc instances")
	}
	return instances, nil
}

// CountInstancesByTemplate 같은 맵 위의 템플릿 기반 배치 수.
// "{이름}-{n}" 자동 명명은 맵 단위로 다시 센다
func (r *Repo) CountInstancesByTemplate(ctx context.Context, templateID, mapID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.NPCInstance{}).
		Where("template_id = ? AND map_id = ?", templateID, mapID).Count(&n).Error; err != nil {
		return 0, vtterr.Backend(err, "failed to count npc instances")
	}
	return n, nil
}

// UpdateNPCInstanceFields 인스턴스 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateNPCInstanceFields(ctx context.Context, sessionID, instanceID string, fields map[string]any) (*model.NPCInstance, error) {
	if err := r.db.WithContext(ctx).Model(&model.NPCInstance{}).
		Where("id = ?", instanceID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update npc instance")
	}
	inst, err := r.NPCInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableNPCInstances, realtime.OpUpdate, inst)
	return inst, nil
}

// MoveNPCInstance 좌표만 갱신한다
func (r *Repo) MoveNPCInstance(ctx context.Context, sessionID, instanceID string, x, y float64) error {
	if err := r.db.WithContext(ctx).Model(&model.NPCInstance{}).
		Where("id = ?", instanceID).
		Updates(map[string]any{"x": x, "y": y}).Error; err != nil {
		return vtterr.Backend(err, "failed to move npc instance")
	}
	if inst, err := r.NPCInstanceByID(ctx, instanceID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableNPCInstances, realtime.OpUpdate, inst)
	}
	return nil
}

// DeleteNPCInstance 인스턴스 행 삭제
func (r *Repo) DeleteNPCInstance(ctx context.Context, sessionID, instanceID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.NPCInstance{}, "id = ?", instanceID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete npc instance")
	}
	r.publishChange(ctx, sessionID, realtime.TableNPCInstances, realtime.OpDelete, deletedRow{ID: instanceID})
	return nil
}
