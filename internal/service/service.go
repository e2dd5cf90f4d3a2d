// Package service 로컬 스토어 낙관적 갱신 + 내구 저장소 쓰기 + broadcast 발행을
// 하나의 변이 규약으로 묶는다. 쓰기 실패 시 스토어를 원상복구한다.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/store"
)

// Services 세션 1개를 다루는 변이 서비스 묶음
type Services struct {
	Session    *SessionService
	Maps       *MapService
	Characters *CharacterService
	NPCs       *NPCService
	Initiative *InitiativeService
	Chat       *ChatService
}

// New 서비스 묶음 생성. rt는 broadcast 발행자 (nil 허용, 테스트용)
func New(r *repo.Repo, stores *store.Set, rt realtime.Publisher, log zerolog.Logger) *Services {
	return &Services{
		Session:    &SessionService{repo: r, stores: stores, rt: rt, log: log},
		Maps:       &MapService{repo: r, stores: stores, rt: rt, log: log},
		Characters: &CharacterService{repo: r, stores: stores, rt: rt, log: log},
		NPCs:       &NPCService{repo: r, stores: stores, rt: rt, log: log},
		Initiative: &InitiativeService{repo: r, stores: stores, log: log},
		Chat:       &ChatService{repo: r, stores: stores, rt: rt, log: log},
	}
}

// runOptimistic 변이 규약의 공통 뼈대: 스토어에 먼저 적용하고,
// 내구 쓰기가 실패하면 revert로 되돌린 뒤 에러를 그대로 올린다.
func runOptimistic(apply, revert func(), write func() error) error {
	apply()
	if err := write(); err != nil {
		revert()
		return err
	}
	return nil
}

// publishEvent broadcast 발행 (best-effort). 실패는 로그만 남긴다
func publishEvent(ctx context.Context, rt realtime.Publisher, log zerolog.Logger, sessionID string, typ realtime.EventType, payload any) {
	if rt == nil {
		return
	}
	if err := rt.PublishEvent(ctx, sessionID, typ, payload); err != nil {
		log.Warn().Err(err).Str("type", string(typ)).Msg("[Broadcast] publish failed")
	}
}
