package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

const rollLogFetchLimit = 200

// 이니셔티브 테이블은 선택적 스키마다. 테이블이 없으면 모든 연산이
// vtterr.ErrFeatureUnavailable을 반환하고 상위에서 기능을 끈다.

// InitiativeEntriesBySession 엔트리 목록 (생성 순, 정렬은 스토어 책임)
func (r *Repo) InitiativeEntriesBySession(ctx context.Context, sessionID string) ([]model.InitiativeEntry, error) {
	var entries []model.InitiativeEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, vtterr.ErrFeatureUnavailable
		}
		return nil, vtterr.Backend(err, "failed to load initiative entries")
	}
	return entries, nil
}

// CreateInitiativeEntry 엔트리 행 생성
func (r *Repo) CreateInitiativeEntry(ctx context.Context, e *model.InitiativeEntry) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		if isUndefinedTable(err) {
			return vtterr.ErrFeatureUnavailable
		}
		return vtterr.Backend(err, "failed to create initiative entry")
	}
	r.publishChange(ctx, e.SessionID, realtime.TableInitiativeEntries, realtime.OpInsert, e)
	return nil
}

// InitiativeEntryByID 엔트리 조회
func (r *Repo) InitiativeEntryByID(ctx context.Context, id string) (*model.InitiativeEntry, error) {
	var e model.InitiativeEntry
	err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vtterr.NotFound("initiative entry %s not found", id)
	}
	if err != nil {
		if isUndefinedTable(err) {
			return nil, vtterr.ErrFeatureUnavailable
		}
		return nil, vtterr.Backend(err, "failed to load initiative entry")
	}
	return &e, nil
}

// UpdateInitiativeEntryFields 엔트리 부분 갱신 후 전체 행으로 feed 발행
func (r *Repo) UpdateInitiativeEntryFields(ctx context.Context, sessionID, entryID string, fields map[string]any) (*model.InitiativeEntry, error) {
	if err := r.db.WithContext(ctx).Model(&model.InitiativeEntry{}).
		Where("id = ?", entryID).Updates(fields).Error; err != nil {
		if isUndefinedTable(err) {
			return nil, vtterr.ErrFeatureUnavailable
		}
		return nil, vtterr.Backend(err, "failed to update initiative entry")
	}
	e, err := r.InitiativeEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	r.publishChange(ctx, sessionID, realtime.TableInitiativeEntries, realtime.OpUpdate, e)
	return e, nil
}

// UpdateEntrySourceNames 같은 소스를 가리키는 모든 엔트리의 표시 이름 갱신
// (NPC 인스턴스 개명 전파용)
func (r *Repo) UpdateEntrySourceNames(ctx context.Context, sessionID, sourceID, name string) error {
	var entries []model.InitiativeEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND source_id = ?", sessionID, sourceID).Find(&entries).Error
	if err != nil {
		if isUndefinedTable(err) {
			return vtterr.ErrFeatureUnavailable
		}
		return vtterr.Backend(err, "failed to find entries by source")
	}
	for _, e := range entries {
		if _, err := r.UpdateInitiativeEntryFields(ctx, sessionID, e.ID, map[string]any{"source_name": name}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteInitiativeEntry 엔트리 행 삭제
func (r *Repo) DeleteInitiativeEntry(ctx context.Context, sessionID, entryID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.InitiativeEntry{}, "id = ?", entryID).Error; err != nil {
		if isUndefinedTable(err) {
			return vtterr.ErrFeatureUnavailable
		}
		return vtterr.Backend(err, "failed to delete initiative entry")
	}
	r.publishChange(ctx, sessionID, realtime.TableInitiativeEntries, realtime.OpDelete, deletedRow{ID: entryID})
	return nil
}

// ClearInitiativeEntries 세션 엔트리 전체 삭제. 삭제된 id마다 feed 이벤트를 낸다
func (r *Repo) ClearInitiativeEntries(ctx context.Context, sessionID string) error {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.InitiativeEntry{}).
		Where("session_id = ?", sessionID).Pluck("id", &ids).Error
	if err != nil {
		if isUndefinedTable(err) {
			return vtterr.ErrFeatureUnavailable
		}
		return vtterr.Backend(err, "failed to list initiative entries")
	}
	if err := r.db.WithContext(ctx).
		Delete(&model.InitiativeEntry{}, "session_id = ?", sessionID).Error; err != nil {
		return vtterr.Backend(err, "failed to clear initiative entries")
	}
	for _, id := range ids {
		r.publishChange(ctx, sessionID, realtime.TableInitiativeEntries, realtime.OpDelete, deletedRow{ID: id})
	}
	return nil
}

// CreateInitiativeRollLog 롤 기록 추가 (append-only)
func (r *Repo) CreateInitiativeRollLog(ctx context.Context, l *model.InitiativeRollLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		if isUndefinedTable(err) {
			return vtterr.ErrFeatureUnavailable
		}
		return vtterr.Backend(err, "failed to create initiative roll log")
	}
	r.publishChange(ctx, l.SessionID, realtime.TableInitiativeRollLogs, realtime.OpInsert, l)
	return nil
}

// InitiativeRollLogsBySession 최근 롤 기록 (최신순)
func (r *Repo) InitiativeRollLogsBySession(ctx context.Context, sessionID string) ([]model.InitiativeRollLog, error) {
	var logs []model.InitiativeRollLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Limit(rollLogFetchLimit).Find(&logs).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, vtterr.ErrFeatureUnavailable
		}
		return nil, vtterr.Backend(err, "failed to load initiative roll logs")
	}
	return logs, nil
}
