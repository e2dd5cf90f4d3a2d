// Package rules 역할(GM/플레이어)별 가시성·권한 판정.
// 렌더링과 변경 게이트가 같은 함수를 쓴다 (두 경로가 어긋나지 않도록).
package rules

import (
	"vtt-engine/internal/model"
)

// FogRenderMode 포그 렌더링 모드
type FogRenderMode string

const (
	// FogTranslucent GM: 가려진 영역을 반투명으로 표시
	FogTranslucent FogRenderMode = "translucent"
	// FogOpaque 플레이어: 가려진 영역을 완전 불투명으로 표시
	FogOpaque FogRenderMode = "opaque"
)

// FogModeFor 역할별 포그 렌더링 모드
func FogModeFor(isGM bool) FogRenderMode {
	if isGM {
		return FogTranslucent
	}
	return FogOpaque
}

// CanSeeNPCInstance 숨겨진 인스턴스는 GM에게만 보인다
func CanSeeNPCInstance(isGM bool, inst model.NPCInstance) bool {
	return isGM || !inst.Hidden
}

// VisibleNPCInstances 역할별 인스턴스 필터. 비GM 클라이언트의 토큰 목록에서
// 숨겨진 인스턴스는 아예 빠진다
func VisibleNPCInstances(isGM bool, instances []model.NPCInstance) []model.NPCInstance {
	out := make([]model.NPCInstance, 0, len(instances))
	for _, inst := range instances {
		if CanSeeNPCInstance(isGM, inst) {
			out = append(out, inst)
		}
	}
	return out
}

// CanSeeInitiativeEntry gm_only 엔트리는 GM에게만 보인다
func CanSeeInitiativeEntry(isGM bool, e model.InitiativeEntry) bool {
	return isGM || e.Visibility != model.InitiativeGMOnly
}

// VisibleInitiativeEntries 역할별 이니셔티브 목록 필터
func VisibleInitiativeEntries(isGM bool, entries []model.InitiativeEntry) []model.InitiativeEntry {
	out := make([]model.InitiativeEntry, 0, len(entries))
	for _, e := range entries {
		if CanSeeInitiativeEntry(isGM, e) {
			out = append(out, e)
		}
	}
	return out
}

// CanSeeDiceRoll 주사위 가시성. change-feed와 broadcast 양쪽 전달 경로가
// 모두 이 판정 하나를 쓴다.
//   - public:  항상 저장
//   - gm_only: 로컬 사용자가 GM일 때만
//   - self:    로컬 사용자가 굴린 본인일 때만
func CanSeeDiceRoll(roll model.DiceRoll, username string, isGM bool) bool {
	switch roll.Visibility {
	case model.DicePublic:
		return true
	case model.DiceGMOnly:
		return isGM
	case model.DiceSelf:
		return roll.Username == username
	default:
		return false
	}
}

// CanMoveCharacter GM은 모든 토큰, 플레이어는 자기가 점유한 캐릭터만
func CanMoveCharacter(username string, isGM bool, c model.Character) bool {
	if isGM {
		return true
	}
	return c.IsClaimed && c.ClaimedByUsername != nil && *c.ClaimedByUsername == username
}

// CanMoveNPC NPC 이동은 GM 전용. 세션 토글이 켜져 있으면 플레이어도 허용
func CanMoveNPC(isGM bool, allowPlayerNPCEdit bool) bool {
	return isGM || allowPlayerNPCEdit
}

// CanEditMap 맵 설정 변경은 GM 전용
func CanEditMap(isGM bool) bool {
	return isGM
}

// CanPaintFog 포그 페인팅은 GM 전용
func CanPaintFog(isGM bool) bool {
	return isGM
}
