package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtt-engine/internal/model"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/rules"
	"vtt-engine/internal/store"
	"vtt-engine/internal/vtterr"
)

// MapService 맵 CRUD, 활성 맵 전환, 포그 편집
type MapService struct {
	repo   *repo.Repo
	stores *store.Set
	rt     realtime.Publisher
	log    zerolog.Logger

	strokeMu sync.Mutex
	stroke   *fogStroke
}

// fogStroke 드래그 중 누적되는 포그 스트로크
type fogStroke struct {
	mapID      string
	regionType string
	brushWidth float64
	points     []model.Point
}

func (s *MapService) requireGM() (*store.CurrentUser, string, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, "", vtterr.Validation("not in a session")
	}
	if !rules.CanEditMap(u.IsGM) {
		return nil, "", vtterr.Permission("only the GM can edit maps")
	}
	return u, sessionID, nil
}

// CreateMap 맵 생성 (GM 전용). 세션의 첫 맵이면 자동 활성화한다
func (s *MapService) CreateMap(ctx context.Context, name, imageURL string, width, height int) (*model.GameMap, error) {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, vtterr.Validation("map name is required")
	}
	if width <= 0 || height <= 0 {
		return nil, vtterr.Validation("map dimensions must be positive")
	}

	m := &model.GameMap{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Name:            name,
		ImageURL:        imageURL,
		Width:           width,
		Height:          height,
		SortOrder:       len(s.stores.Map.Maps()),
		GridEnabled:     true,
		GridSize:        50,
		GridColor:       "#000000",
		FogDefaultState: model.FogStateFogged,
		FogData:         "[]",
		DrawingData:     "[]",
		EffectData:      "[]",

		ShowPlayerTokens: true,
	}
	if err := s.repo.CreateMap(ctx, m); err != nil {
		return nil, err
	}
	s.stores.Map.UpsertMap(*m)

	if s.stores.Map.ActiveMapID() == "" {
		if err := s.SetActiveMap(ctx, m.ID); err != nil {
			s.log.Warn().Err(err).Str("map_id", m.ID).Msg("[Map] auto-activate failed")
		}
	}
	return m, nil
}

// SetActiveMap 활성 맵 전환 (GM 전용): 세션 행 갱신 + 로컬 적용 + broadcast
func (s *MapService) SetActiveMap(ctx context.Context, mapID string) error {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return err
	}
	if !s.stores.Map.KnownMap(mapID) {
		return vtterr.NotFound("map %s not found", mapID)
	}

	sess, err := s.repo.UpdateSessionFields(ctx, sessionID, map[string]any{"active_map_id": mapID})
	if err != nil {
		return err
	}
	s.stores.Session.SetSession(sess)
	s.stores.Map.SetActiveMap(mapID)

	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventActiveMap,
		realtime.ActiveMapPayload{SessionID: sessionID, MapID: mapID})
	return nil
}

// UpdateMapSettings 맵 설정 부분 패치 (GM 전용, 롤백 없음)
func (s *MapService) UpdateMapSettings(ctx context.Context, mapID string, fields map[string]any) (*model.GameMap, error) {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateMapFields(ctx, sessionID, mapID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Map.UpsertMap(*m)
	return m, nil
}

// DeleteMap 맵 삭제 (GM 전용). 활성 맵이었다면 세션 포인터도 비운다
func (s *MapService) DeleteMap(ctx context.Context, mapID string) error {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return err
	}
	wasActive := s.stores.Map.ActiveMapID() == mapID

	if err := s.repo.DeleteMap(ctx, sessionID, mapID); err != nil {
		return err
	}
	s.stores.Map.RemoveMap(mapID)

	if wasActive {
		sess, err := s.repo.UpdateSessionFields(ctx, sessionID, map[string]any{"active_map_id": nil})
		if err != nil {
			return err
		}
		s.stores.Session.SetSession(sess)
	}
	return nil
}

// --- 토큰 드래그 잠금 ---

// LockTokenForDrag 드래그 시작을 피어에 알린다 (휘발성, 영속화 없음)
func (s *MapService) LockTokenForDrag(ctx context.Context, ref store.TokenRef) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return
	}
	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventTokenLock, realtime.TokenLockPayload{
		SessionID: sessionID,
		TokenID:   ref.ID,
		TokenType: string(ref.Type),
		Username:  u.Username,
	})
}

// UnlockToken 드래그 종료를 피어에 알린다
func (s *MapService) UnlockToken(ctx context.Context, ref store.TokenRef) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return
	}
	publishEvent(ctx, s.rt, s.log, sessionID, realtime.EventTokenUnlock, realtime.TokenLockPayload{
		SessionID: sessionID,
		TokenID:   ref.ID,
		TokenType: string(ref.Type),
		Username:  u.Username,
	})
}

// --- 포그 편집 ---

// BeginFogStroke 스트로크 시작 (GM 전용). regionType은 reveal/hide
func (s *MapService) BeginFogStroke(mapID, regionType string, brushWidth float64) error {
	u := s.stores.Session.CurrentUser()
	if u == nil || !rules.CanPaintFog(u.IsGM) {
		return vtterr.Permission("only the GM can paint fog")
	}
	if regionType != model.FogReveal && regionType != model.FogHide {
		return vtterr.Validation("unknown fog region type %q", regionType)
	}
	s.strokeMu.Lock()
	s.stroke = &fogStroke{mapID: mapID, regionType: regionType, brushWidth: brushWidth}
	s.strokeMu.Unlock()
	return nil
}

// AddFogPoint 포인터 이동마다 점 누적
func (s *MapService) AddFogPoint(x, y float64) {
	s.strokeMu.Lock()
	if s.stroke != nil {
		s.stroke.points = append(s.stroke.points, model.Point{X: x, Y: y})
	}
	s.strokeMu.Unlock()
}

// EndFogStroke 누적된 점을 FogRegion으로 확정해 낙관적 적용 후 영속화한다.
// 포그 배열은 전체 배열로 저장한다 (델타 아님).
func (s *MapService) EndFogStroke(ctx context.Context) error {
	s.strokeMu.Lock()
	stroke := s.stroke
	s.stroke = nil
	s.strokeMu.Unlock()
	if stroke == nil || len(stroke.points) == 0 {
		return nil
	}
	region := model.FogRegion{
		Type:       stroke.regionType,
		Points:     stroke.points,
		BrushWidth: stroke.brushWidth,
	}
	return s.AppendFogRegion(ctx, stroke.mapID, region)
}

// AppendFogRegion 포그 영역 1개 추가: 낙관적 적용 + 실패 시 이전 배열 복구
func (s *MapService) AppendFogRegion(ctx context.Context, mapID string, region model.FogRegion) error {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return err
	}
	if err := region.Validate(); err != nil {
		return vtterr.Validation("invalid fog region: %v", err)
	}

	m, ok := s.stores.Map.MapByID(mapID)
	if !ok {
		return vtterr.NotFound("map %s not found", mapID)
	}
	prev := m

	regions, err := model.ParseFogRegions(m.FogData)
	if err != nil {
		return err
	}
	encoded, err := model.EncodeFogRegions(append(regions, region))
	if err != nil {
		return err
	}
	next := m
	next.FogData = encoded

	return runOptimistic(
		func() { s.stores.Map.UpsertMap(next) },
		func() { s.stores.Map.UpsertMap(prev) },
		func() error {
			_, err := s.repo.UpdateMapFields(ctx, sessionID, mapID, map[string]any{"fog_data": encoded})
			return err
		},
	)
}

// RevealAllFog 포그 전체 제거: 영역 목록을 비우고 기본 상태를 revealed로
func (s *MapService) RevealAllFog(ctx context.Context, mapID string) error {
	return s.resetFogTo(ctx, mapID, model.FogStateRevealed)
}

// ResetFog 포그 초기화: 영역 목록을 비우고 기본 상태를 fogged로
func (s *MapService) ResetFog(ctx context.Context, mapID string) error {
	return s.resetFogTo(ctx, mapID, model.FogStateFogged)
}

func (s *MapService) resetFogTo(ctx context.Context, mapID, defaultState string) error {
	_, sessionID, err := s.requireGM()
	if err != nil {
		return err
	}
	m, ok := s.stores.Map.MapByID(mapID)
	if !ok {
		return vtterr.NotFound("map %s not found", mapID)
	}
	prev := m
	next := m
	next.FogData = "[]"
	next.FogDefaultState = defaultState

	return runOptimistic(
		func() { s.stores.Map.UpsertMap(next) },
		func() { s.stores.Map.UpsertMap(prev) },
		func() error {
			_, err := s.repo.UpdateMapFields(ctx, sessionID, mapID, map[string]any{
				"fog_data":          "[]",
				"fog_default_state": defaultState,
			})
			return err
		},
	)
}
