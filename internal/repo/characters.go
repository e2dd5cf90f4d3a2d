package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

// CreateCharacter 캐릭터 행 생성
func (r *Repo) CreateCharacter(ctx context.Context, c *model.Character) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return vtterr.Backend(err, "failed to create character")
	}
	r.publishChange(ctx, c.SessionID, realtime.TableCharacters, realtime.OpInsert, c)
	return nil
}

// CharacterByID 캐릭터 조회
func (r *Repo) CharacterByID(ctx context.Context, id string) (*model.Character, error) {
	var c model.Character
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("character %s not found", id)
	}
	if err != nil {
		return nil, vtterr.Backend(err, "failed to load character")
	}
	return &c, nil
}

// CharactersBySession 세션 캐릭터 목록
func (r *Repo) CharactersBySession(ctx context.Context, sessionID string) ([]model.Character, error) {
	var chars []model.Character
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).Order("created_at ASC").Find(&chars).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load characters")
	}
	return chars, nil
}

// UpdateCharacterFields 캐릭터 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateCharacterFields(ctx context.Context, sessionID, charID string, fields map[string]any) (*model.Character, error) {
	if err := r.db.WithContext(ctx).Model(&model.Character{}).
		Where("id = ?", charID).Updates(fields).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to update character")
	}
	c, err := r.CharacterByID(ctx, charID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableCharacters, realtime.OpUpdate, c)
	return c, nil
}

// MoveCharacter 좌표만 갱신한다. 이동은 빈도가 높아 전용 경로를 쓴다
func (r *Repo) MoveCharacter(ctx context.Context, sessionID, charID string, x, y float64) error {
	if err := r.db.WithContext(ctx).Model(&model.Character{}).
		Where("id = ?", charID).
		Updates(map[string]any{"x": x, "y": y}).Error; err != nil {
		return vtterr.Backend(err, "failed to move character")
	}
	if c, err := r.CharacterByID(ctx, charID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableCharacters, realtime.OpUpdate, c)
	}
	return nil
}

// ClaimCharacter 캐릭터 선점. is_claimed가 false일 때만 성공한다 (compare-and-set).
// false 반환은 다른 플레이어가 먼저 선점했다는 뜻.
func (r *Repo) ClaimCharacter(ctx context.Context, sessionID, charID, username string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Character{}).
		Where("id = ? AND is_claimed = ?", charID, false).
		Updates(map[string]any{"is_claimed": true, "claimed_by_username": username})
	if res.Error != nil {
		return false, vtterr.Backend(res.Error, "failed to claim character")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if c, err := r.CharacterByID(ctx, charID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableCharacters, realtime.OpUpdate, c)
	}
	return true, nil
}

// ReleaseCharacter 현 소유자의 클레임 해제
func (r *Repo) ReleaseCharacter(ctx context.Context, sessionID, charID, username string) error {
	res := r.db.WithContext(ctx).Model(&model.Character{}).
		Where("id = ? AND claimed_by_username = ?", charID, username).
		Updates(map[string]any{"is_claimed": false, "claimed_by_username": nil})
	if res.Error != nil {
		return vtterr.Backend(res.Error, "failed to release character")
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if c, err := r.CharacterByID(ctx, charID); err == nil {
		r.publishChange(ctx, sessionID, realtime.TableCharacters, realtime.OpUpdate, c)
	}
	return nil
}

// ReleaseCharactersClaimedBy 세션 이탈 시 해당 유저의 모든 클레임 일괄 해제
func (r *Repo) ReleaseCharactersClaimedBy(ctx context.Context, sessionID, username string) error {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Character{}).
		Where("session_id = ? AND claimed_by_username = ?", sessionID, username).
		Pluck("id", &ids).Error; err != nil {
		return vtterr.Backend(err, "failed to list claimed characters")
	}
	for _, id := range ids {
		if err := r.ReleaseCharacter(ctx, sessionID, id, username); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCharacter 캐릭터 행 삭제
func (r *Repo) DeleteCharacter(ctx context.Context, sessionID, charID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Character{}, "id = ?", charID).Error; err != nil {
		return vtterr.Backend(err, "failed to delete character")
	}
	r.publishChange(ctx, sessionID, realtime.TableCharacters, realtime.OpDelete, deletedRow{ID: charID})
	return nil
}
