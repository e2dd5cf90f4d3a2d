package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// CreateHandout 핸드아웃 행 생성
func (r *Repo) CreateHandout(ctx context.Context, h *model.Handout) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		return vtterr.Backend(err, "failed to create handout")
	}
	r.publishChange(ctx, h.SessionID, realtime.TableHandouts, realtime.OpInsert, h)
	return nil
}

// HandoutByID 핸드아웃 조회
func (r *Repo) HandoutByID(ctx context.Context, id string) (*model.Handout, error) {
	var h model.Handout
	err := r.db.WithContext(ctx).First(&h, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("handout %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load handout")
	}
	return &h, nil
}

// HandoutsBySession 세션 핸드아웃 목록 (sortOrder 순)
func (r *Repo) HandoutsBySession(ctx context.Context, sessionID string) ([]model.Handout, error) {
	var handouts []model.Handout
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sort_order ASC, created_at ASC").Find(&handouts).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load handouts")
	}
	return handouts, nil
}

// UpdateHandoutFields 핸드아웃 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateHandoutFields(ctx context.Context, sessionID, handoutID string, fields map[string]any) (*model.Handout, error) {
	if err := r.db.WithContext(ctx).Model(&model.Handout{}).
		Where("id = ?", handoutID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update handout")
	}
	h, err := r.HandoutByID(ctx, handoutID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableHandouts, realtime.OpUpdate, h)
	return h, nil
}

// DeleteHandout 핸드아웃 행 삭제
func (r *Repo) DeleteHandout(ctx context.Context, sessionID, handoutID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Handout{}, "id = ?", handoutID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete handout")
	}
	r.publishChange(ctx, sessionID, realtime.TableHandouts, realtime.OpDelete, deletedRow{ID: handoutID})
	return nil
}
