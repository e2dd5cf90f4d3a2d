package store

import (
	"sort"
	"sync"

	"vtt-engine/internal/model"
)

// TokenType 토큰 종류
type TokenType string

const (
	TokenCharacter TokenType = "character"
	TokenNPC       TokenType = "npc"
)

// TokenRef 맵 위 토큰 참조
type TokenRef struct {
	Type TokenType
	ID   string
}

func (r TokenRef) key() string {
	return string(r.Type) + ":" + r.ID
}

// Viewport 뷰포트 상태
type Viewport struct {
	X       float64
	Y       float64
	Zoom    float64
	AutoFit bool
}

// FogTool 포그 편집 모드
type FogTool string

const (
	FogToolNone   FogTool = "none"
	FogToolReveal FogTool = "reveal"
	FogToolHide   FogTool = "hide"
)

// MapStore 맵/토큰/뷰포트 스토어. 모든 컬렉션 변경은 id 기준 upsert로
// 중복 전달에 멱등하다 (broadcast와 change-feed가 같은 변경을 둘 다 나를 수 있다).
type MapStore struct {
	mu          sync.RWMutex
	maps        []model.GameMap
	activeMapID string
	characters  []model.Character
	templates   []model.NPCTemplate
	instances   []model.NPCInstance
	viewport    Viewport
	selected    *TokenRef
	fogTool     FogTool
	locks       map[string]string // token key -> 드래그 중인 username
}

// NewMapStore 맵 스토어 생성
func NewMapStore() *MapStore {
	return &MapStore{
		viewport: Viewport{Zoom: 1, AutoFit: true},
		fogTool:  FogToolNone,
		locks:    make(map[string]string),
	}
}

// SetMaps 맵 목록 교체 (sort_order 순 유지)
func (s *MapStore) SetMaps(maps []model.GameMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maps = append([]model.GameMap(nil), maps...)
	sortMaps(s.maps)
}

// UpsertMap 맵 삽입/병합
func (s *MapStore) UpsertMap(m model.GameMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.maps {
		if s.maps[i].ID == m.ID {
			s.maps[i] = m
			sortMaps(s.maps)
			return
		}
	}
	s.maps = append(s.maps, m)
	sortMaps(s.maps)
}

// RemoveMap 맵 제거. 해당 맵의 NPC 인스턴스도 함께 제거되고,
// 활성 맵이었다면 활성 포인터를 비운다.
func (s *MapStore) RemoveMap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.maps {
		if s.maps[i].ID == id {
			s.maps = append(s.maps[:i], s.maps[i+1:]...)
			break
		}
	}

	kept := s.instances[:0]
	for _, inst := range s.instances {
		if inst.MapID != id {
			kept = append(kept, inst)
		} else if s.selected != nil && s.selected.Type == TokenNPC && s.selected.ID == inst.ID {
			s.selected = nil
		}
	}
	s.instances = kept

	if s.activeMapID == id {
		s.activeMapID = ""
	}
}

// MapByID 맵 조회
func (s *MapStore) MapByID(id string) (model.GameMap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.maps {
		if m.ID == id {
			return m, true
		}
	}
	return model.GameMap{}, false
}

// Maps 맵 목록 (복사본)
func (s *MapStore) Maps() []model.GameMap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.GameMap(nil), s.maps...)
}

// KnownMap 이 세션의 맵인지 확인 (인스턴스 change-feed 필터용)
func (s *MapStore) KnownMap(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.maps {
		if m.ID == id {
			return true
		}
	}
	return false
}

// SetActiveMap 활성 맵 전환. 뷰포트 초기화(auto-fit)는 호출자가 아니라
// 여기서 함께 일어난다.
func (s *MapStore) SetActiveMap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeMapID == id {
		return
	}
	s.activeMapID = id
	s.viewport = Viewport{Zoom: 1, AutoFit: true}
}

// ClearActiveMap 활성 맵 해제
func (s *MapStore) ClearActiveMap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeMapID = ""
}

// ActiveMapID 활성 맵 ID ("" = 없음)
func (s *MapStore) ActiveMapID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeMapID
}

// ActiveMap 활성 맵 조회
func (s *MapStore) ActiveMap() (model.GameMap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.maps {
		if m.ID == s.activeMapID {
			return m, true
		}
	}
	return model.GameMap{}, false
}

// SetViewport 뷰포트 설정
func (s *MapStore) SetViewport(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewport = v
}

// Viewport 뷰포트 조회
func (s *MapStore) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.viewport
}

// SetCharacters 캐릭터 목록 교체
func (s *MapStore) SetCharacters(characters []model.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.characters = append([]model.Character(nil), characters...)
}

// UpsertCharacter 캐릭터 삽입/병합
func (s *MapStore) UpsertCharacter(c model.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.characters {
		if s.characters[i].ID == c.ID {
			s.characters[i] = c
			return
		}
	}
	s.characters = append(s.characters, c)
}

// RemoveCharacter 캐릭터 제거. 선택된 토큰이면 선택도 해제한다
func (s *MapStore) RemoveCharacter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.characters {
		if s.characters[i].ID == id {
			s.characters = append(s.characters[:i], s.characters[i+1:]...)
			break
		}
	}
	if s.selected != nil && s.selected.Type == TokenCharacter && s.selected.ID == id {
		s.selected = nil
	}
}

// MoveCharacter 캐릭터 위치만 갱신 (전체 엔티티 재전송 없이)
func (s *MapStore) MoveCharacter(id string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.characters {
		if s.characters[i].ID == id {
			s.characters[i].X = x
			s.characters[i].Y = y
			return true
		}
	}
	return false
}

// CharacterByID 캐릭터 조회
func (s *MapStore) CharacterByID(id string) (model.Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.characters {
		if c.ID == id {
			return c, true
		}
	}
	return model.Character{}, false
}

// Characters 캐릭터 목록 (복사본)
func (s *MapStore) Characters() []model.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Character(nil), s.characters...)
}

// SetNPCTemplates 템플릿 목록 교체
func (s *MapStore) SetNPCTemplates(templates []model.NPCTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = append([]model.NPCTemplate(nil), templates...)
}

// UpsertNPCTemplate 템플릿 삽입/병합
func (s *MapStore) UpsertNPCTemplate(t model.NPCTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.templates {
		if s.templates[i].ID == t.ID {
			s.templates[i] = t
			return
		}
	}
	s.templates = append(s.templates, t)
}

// RemoveNPCTemplate 템플릿 제거. 배치된 인스턴스는 건드리지 않는다
func (s *MapStore) RemoveNPCTemplate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.templates {
		if s.templates[i].ID == id {
			s.templates = append(s.templates[:i], s.templates[i+1:]...)
			return
		}
	}
}

// NPCTemplateByID 템플릿 조회
func (s *MapStore) NPCTemplateByID(id string) (model.NPCTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if t.ID == id {
			return t, true
		}
	}
	return model.NPCTemplate{}, false
}

// NPCTemplates 템플릿 목록 (복사본)
func (s *MapStore) NPCTemplates() []model.NPCTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.NPCTemplate(nil), s.templates...)
}

// SetNPCInstances 인스턴스 목록 교체
func (s *MapStore) SetNPCInstances(instances []model.NPCInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances = append([]model.NPCInstance(nil), instances...)
}

// UpsertNPCInstance 인스턴스 삽입/병합
func (s *MapStore) UpsertNPCInstance(inst model.NPCInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == inst.ID {
			s.instances[i] = inst
			return
		}
	}
	s.instances = append(s.instances, inst)
}

// RemoveNPCInstance 인스턴스 제거. 선택된 토큰이면 선택도 해제한다
func (s *MapStore) RemoveNPCInstance(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == id {
			s.instances = append(s.instances[:i], s.instances[i+1:]...)
			break
		}
	}
	if s.selected != nil && s.selected.Type == TokenNPC && s.selected.ID == id {
		s.selected = nil
	}
}

// MoveNPCInstance 인스턴스 위치만 갱신
func (s *MapStore) MoveNPCInstance(id string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == id {
			s.instances[i].X = x
			s.instances[i].Y = y
			return true
		}
	}
	return false
}

// NPCInstanceByID 인스턴스 조회
func (s *MapStore) NPCInstanceByID(id string) (model.NPCInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return model.NPCInstance{}, false
}

// NPCInstances 인스턴스 목록 (복사본)
func (s *MapStore) NPCInstances() []model.NPCInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.NPCInstance(nil), s.instances...)
}

// NPCInstancesOnMap 특정 맵의 인스턴스 목록
func (s *MapStore) NPCInstancesOnMap(mapID string) []model.NPCInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.NPCInstance
	for _, inst := range s.instances {
		if inst.MapID == mapID {
			out = append(out, inst)
		}
	}
	return out
}

// SelectToken 토큰 선택
func (s *MapStore) SelectToken(ref TokenRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := ref
	s.selected = &cp
}

// ClearSelection 선택 해제
func (s *MapStore) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = nil
}

// SelectedToken 선택된 토큰 (복사본, 없으면 nil)
func (s *MapStore) SelectedToken() *TokenRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == nil {
		return nil
	}
	cp := *s.selected
	return &cp
}

// SetFogTool 포그 편집 모드 설정
func (s *MapStore) SetFogTool(tool FogTool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fogTool = tool
}

// FogToolMode 포그 편집 모드 조회
func (s *MapStore) FogToolMode() FogTool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fogTool
}

// LockToken 드래그 중 표시 (일시적, 영속화되지 않음)
func (s *MapStore) LockToken(ref TokenRef, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[ref.key()] = username
}

// UnlockToken 드래그 중 표시 해제
func (s *MapStore) UnlockToken(ref TokenRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, ref.key())
}

// TokenLockedBy 누가 드래그 중인지 조회 ("" = 잠금 없음)
func (s *MapStore) TokenLockedBy(ref TokenRef) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.locks[ref.key()]
}

// Reset 스토어 초기화 (세션 퇴장)
func (s *MapStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maps = nil
	s.activeMapID = ""
	s.characters = nil
	s.templates = nil
	s.instances = nil
	s.viewport = Viewport{Zoom: 1, AutoFit: true}
	s.selected = nil
	s.fogTool = FogToolNone
	s.locks = make(map[string]string)
}

func sortMaps(maps []model.GameMap) {
	sort.SliceStable(maps, func(i, j int) bool {
		return maps[i].SortOrder < maps[j].SortOrder
	})
}
