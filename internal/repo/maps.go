package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// CreateMap 맵 행 생성
func (r *Repo) CreateMap(ctx context.Context, m *model.GameMap) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return vtterr.Backend(err, "failed to create map")
	}
	r.publishChange(ctx, m.SessionID, realtime.TableMaps, realtime.OpInsert, m)
	return nil
}

// MapByID 맵 조회
func (r *Repo) MapByID(ctx context.Context, id string) (*model.GameMap, error) {
	var m model.GameMap
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("map %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load map")
	}
	return &m, nil
}

// MapsBySession 세션 맵 목록 (sortOrder 순)
func (r *Repo) MapsBySession(ctx context.Context, sessionID string) ([]model.GameMap, error) {
	var maps []model.GameMap
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sort_order ASC, created_at ASC").Find(&maps).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load maps")
	}
	return maps, nil
}

// UpdateMapFields 맵 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateMapFields(ctx context.Context, sessionID, mapID string, fields map[string]any) (*model.GameMap, error) {
	if err := r.db.WithContext(ctx).Model(&model.GameMap{}).
		Where("id = ?", mapID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update map")
	}
	m, err := r.MapByID(ctx, mapID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableMaps, realtime.OpUpdate, m)
	return m, nil
}

// DeleteMap 맵과 그 위의 NPC 인스턴스를 함께 삭제한다
func (r *Repo) DeleteMap(ctx context.Context, sessionID, mapID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.NPCInstance{}, "map_id = ?", mapID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.GameMap{}, "id = ?", mapID).Error
	})
	if err != nil {
		return vtterr.Backend(err, "failed to delete map")
	}
	r.publishChange(ctx, sessionID, realtime.TableMaps, realtime.OpDelete, deletedRow{ID: mapID})
	return nil
}
