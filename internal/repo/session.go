package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/joincode"
	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// CreateSession 세션 행 생성
func (r *Repo) CreateSession(ctx context.Context, s *model.Session) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return vtterr.Backend(err, "failed to create session")
	}
	r.publishChange(ctx, s.ID, realtime.TableSessions, realtime.OpInsert, s)
	return nil
}

// SessionByCode 정규화된 조인 코드로 세션 조회
func (r *Repo) SessionByCode(ctx context.Context, code string) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).Where("join_code = ?", joincode.Normalize(code)).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("session not found for code %s", joincode.Format(code))
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to look up session")
	}
	return &s, nil
}

// SessionByID 세션 조회
func (r *Repo) SessionByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load session")
	}
	return &s, nil
}

// UpdateSessionFields 세션 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateSessionFields(ctx context.Context, sessionID string, fields map[string]any) (*model.Session, error) {
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update session")
	}
	s, err := r.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableSessions, realtime.OpUpdate, s)
	return s, nil
}

// DeleteSession 세션 행 삭제 (고아 행 보상 삭제용)
func (r *Repo) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Session{}, "id = ?", sessionID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete session")
	}
	r.publishChange(ctx, sessionID, realtime.TableSessions, realtime.OpDelete, deletedRow{ID: sessionID})
	return nil
}

// ClaimGM GM 선점. current_gm_username이 비어 있을 때만 성공한다
// (compare-and-set). false 반환은 다른 클라이언트가 먼저 선점했다는 뜻.
// 성공 시 해당 참가자 행의 is_gm도 같이 세운다.
func (r *Repo) ClaimGM(ctx context.Context, sessionID, username string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND current_gm_username IS NULL", sessionID).
		Update("current_gm_username", username)
	if res.Error != nil {
		return false, vtterr.Backend(res.Error, "failed to claim gm")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := r.syncPlayerGMFlag(ctx, sessionID, username, true); err != nil {
		r.log.Warn().Err(err).Str("username", username).Msg("player gm flag sync failed")
	}
	if s, err := r.SessionByID(ctx, sessionID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableSessions, realtime.OpUpdate, s)
	}
	return true, nil
}

// ReleaseGM GM 해제. 현 GM이면 무조건 성공하고 참가자 행의 is_gm을 내린다
func (r *Repo) ReleaseGM(ctx context.Context, sessionID, username string) error {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND current_gm_username = ?", sessionID, username).
		Update("current_gm_username", nil)
	if res.Error != nil {
		return vtterr.Backend(res.Error, "failed to release gm")
	}
	if err := r.syncPlayerGMFlag(ctx, sessionID, username, false); err != nil {
		r.log.Warn().Err(err).Str("username", username).Msg("player gm flag sync failed")
	}
	if s, err := r.SessionByID(ctx, sessionID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableSessions, realtime.OpUpdate, s)
	}
	return nil
}
