package store

import (
	"sort"
	"sync"

	"vtt-engine/internal/model"
)

// MaxRollLogs 롤 로그 보존 상한 (최신순)
const MaxRollLogs = 200

// InitiativeStore 이니셔티브 트래커 스토어.
// 엔트리는 항상 정규 순서로 유지한다: fast 페이즈가 slow보다 앞,
// 페이즈 안에서는 total 내림차순 (total 없는 엔트리는 맨 뒤),
// 동률은 생성 순서 오름차순.
type InitiativeStore struct {
	mu      sync.RWMutex
	entries []model.InitiativeEntry
	rollLog []model.InitiativeRollLog
	enabled bool
}

// NewInitiativeStore 이니셔티브 스토어 생성
func NewInitiativeStore() *InitiativeStore {
	return &InitiativeStore{enabled: true}
}

// SetEnabled 백엔드 스키마에 따라 기능 사용 여부 표시
func (s *InitiativeStore) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = enabled
}

// Enabled 기능 사용 가능 여부
func (s *InitiativeStore) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.enabled
}

// SetEntries 엔트리 목록 교체
func (s *InitiativeStore) SetEntries(entries []model.InitiativeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]model.InitiativeEntry(nil), entries...)
	sortEntries(s.entries)
}

// UpsertEntry 엔트리 삽입/병합 (멱등)
func (s *InitiativeStore) UpsertEntry(e model.InitiativeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == e.ID {
			s.entries[i] = e
			sortEntries(s.entries)
			return
		}
	}
	s.entries = append(s.entries, e)
	sortEntries(s.entries)
}

// RemoveEntry 엔트리 제거
func (s *InitiativeStore) RemoveEntry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// ClearEntries 전체 엔트리 제거
func (s *InitiativeStore) ClearEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
}

// Entries 엔트리 목록 (정규 순서 복사본)
func (s *InitiativeStore) Entries() []model.InitiativeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.InitiativeEntry(nil), s.entries...)
}

// EntryByID 엔트리 조회
func (s *InitiativeStore) EntryByID(id string) (model.InitiativeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.InitiativeEntry{}, false
}

// SetRollLogs 롤 로그 교체 (최신순으로 들어온다고 가정)
func (s *InitiativeStore) SetRollLogs(logs []model.InitiativeRollLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollLog = append([]model.InitiativeRollLog(nil), logs...)
	if len(s.rollLog) > MaxRollLogs {
		s.rollLog = s.rollLog[:MaxRollLogs]
	}
}

// AddRollLog 롤 로그 추가 (최신이 앞, 상한 초과 시 가장 오래된 것 제거)
func (s *InitiativeStore) AddRollLog(l model.InitiativeRollLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rollLog {
		if s.rollLog[i].ID == l.ID {
			return
		}
	}
	s.rollLog = append([]model.InitiativeRollLog{l}, s.rollLog...)
	if len(s.rollLog) > MaxRollLogs {
		s.rollLog = s.rollLog[:MaxRollLogs]
	}
}

// RollLog 롤 로그 (최신순 복사본)
func (s *InitiativeStore) RollLog() []model.InitiativeRollLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.InitiativeRollLog(nil), s.rollLog...)
}

// Reset 스토어 초기화
func (s *InitiativeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.rollLog = nil
	s.enabled = true
}

func sortEntries(entries []model.InitiativeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Phase != b.Phase {
			return a.Phase == model.PhaseFast
		}
		switch {
		case a.Total == nil && b.Total == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.Total == nil:
			return false
		case b.Total == nil:
			return true
		case *a.Total != *b.Total:
			return *a.Total > *b.Total
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}
