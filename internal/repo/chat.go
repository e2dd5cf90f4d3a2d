package repo

import (
	"context"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/vtterr"
)

const (
	recentChatLimit = 100
	recentDiceLimit = 50
)

// CreateChatMessage 채팅 메시지 저장 (insert-only)
func (r *Repo) CreateChatMessage(ctx context.Context, m *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return vtterr.Backend(err, "failed to create chat message")
	}
	r.publishChange(ctx, m.SessionID, realtime.TableChatMessages, realtime.OpInsert, m)
	return nil
}

// RecentChatMessages 최근 N건을 시간 오름차순으로 반환한다.
// 내림차순으로 자르고 뒤집는다 (오래된 쪽이 잘려야 하므로).
func (r *Repo) RecentChatMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Limit(recentChatLimit).Find(&msgs).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load chat messages")
	}
	reverse(msgs)
	return msgs, nil
}

// CreateDiceRoll 주사위 결과 저장 (insert-only)
func (r *Repo) CreateDiceRoll(ctx context.Context, d *model.DiceRoll) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return vtterr.Backend(err, "failed to create dice roll")
	}
	r.publishChange(ctx, d.SessionID, realtime.TableDiceRolls, realtime.OpInsert, d)
	return nil
}

// RecentDiceRolls 최근 N건을 시간 오름차순으로 반환한다
func (r *Repo) RecentDiceRolls(ctx context.Context, sessionID string) ([]model.DiceRoll, error) {
	var rolls []model.DiceRoll
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Limit(recentDiceLimit).Find(&rolls).Error; err != nil {
		return nil, vtterr.Backend(err, "failed to load dice rolls")
	}
	reverse(rolls)
	return rolls, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
