package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// CreatePlayer 참가자 행 생성
func (r *Repo) CreatePlayer(ctx context.Context, p *model.SessionPlayer) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return vtterr.Backend(err, "failed to create player")
	}
	r.publishChange(ctx, p.SessionID, realtime.TableSessionPlayers, realtime.OpInsert, p)
	return nil
}

// PlayerByUsername 세션 내 참가자 조회 (없으면 nil, 에러 아님)
func (r *Repo) PlayerByUsername(ctx context.Context, sessionID, username string) (*model.SessionPlayer, error) {
	var p model.SessionPlayer
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND username = ?", sessionID, username).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to look up player")
	}
	return &p, nil
}

// PlayersBySession 세션 참가자 목록
func (r *Repo) PlayersBySession(ctx context.Context, sessionID string) ([]model.SessionPlayer, error) {
	var players []model.SessionPlayer
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).Order("created_at ASC").Find(&players).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load players")
	}
	return players, nil
}

// TouchPlayer 재입장 시 lastSeen 갱신
func (r *Repo) TouchPlayer(ctx context.Context, p *model.SessionPlayer) error {
	p.LastSeen = time.Now()
	if err := r.db.WithContext(ctx).Model(&model.SessionPlayer{}).
		Where("id = ?", p.ID).Update("last_seen", p.LastSeen).Error; err != nil {
		return vtterr.Backend(err, "failed to refresh player")
	}
	r.publishChange(ctx, p.SessionID, realtime.TableSessionPlayers, realtime.OpUpdate, p)
	return nil
}

// UpdatePlayerFields 참가자 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdatePlayerFields(ctx context.Context, sessionID, playerID string, fields map[string]any) (*model.SessionPlayer, error) {
	if err := r.db.WithContext(ctx).Model(&model.SessionPlayer{}).
		Where("id = ?", playerID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update player")
	}
	var p model.SessionPlayer
	if err := r.db.WithContext(ctx).First(&p, "id = ?", playerID).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to reload player")
	}
	r.publishChange(ctx, sessionID, realtime.TableSessionPlayers, realtime.OpUpdate, &p)
	return &p, nil
}

// syncPlayerGMFlag 참가자 행의 is_gm을 세션의 current_gm_username과 맞춘다.
// 행이 없으면 조용히 넘어간다 (세션 생성 직전 등)
func (r *Repo) syncPlayerGMFlag(ctx context.Context, sessionID, username string, isGM bool) error {
	res := r.db.WithContext(ctx).Model(&model.SessionPlayer{}).
		Where("session_id = ? AND username = ?", sessionID, username).
		Update("is_gm", isGM)
	if res.Error != nil {
		return vtterr.Backend(res.Error, "failed to update player gm flag")
	}
	if res.RowsAffected == 0 {
		return nil
	}
	var p model.SessionPlayer
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND username = ?", sessionID, username).First(&p).Error; err != nil {
		return vtterr.Backend(err, "failed to reload player")
	}
	r.publishChange(ctx, sessionID, realtime.TableSessionPlayers, realtime.OpUpdate, &p)
	return nil
}

// DeletePlayer 참가자 행 삭제
func (r *Repo) DeletePlayer(ctx context.Context, sessionID, playerID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.SessionPlayer{}, "id = ?", playerID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete player")
	}
	r.publishChange(ctx, sessionID, realtime.TableSessionPlayers, realtime.OpDelete, deletedRow{ID: playerID})
	return nil
}
