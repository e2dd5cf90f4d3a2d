package model

// Fog region type
const (
	FogReveal = "reveal"
	FogHide   = "hide"
)

// Fog default state
const (
	FogStateFogged   = "fogged"
	FogStateRevealed = "revealed"
)

// Initiative phase
const (
	PhaseFast = "fast"
	PhaseSlow = "slow"
)

// Initiative entry visibility
const (
	InitiativePublic = "public"
	InitiativeGMOnly = "gm_only"
)

// Dice roll visibility
const (
	DicePublic = "public"
	DiceGMOnly = "gm_only"
	DiceSelf   = "self"
)

// Handout kind
const (
	HandoutText  = "text"
	HandoutImage = "image"
)

// Initiative source type
const (
	SourcePlayer = "player"
	SourceNPC    = "npc"
)

// Token size classes
const (
	SizeTiny       = "tiny"
	SizeSmall      = "small"
	SizeMedium     = "medium"
	SizeLarge      = "large"
	SizeHuge       = "huge"
	SizeGargantuan = "gargantuan"
)

// sizeMultipliers 크기 등급별 그리드 셀 배수
var sizeMultipliers = map[string]float64{
	SizeTiny:       0.5,
	SizeSmall:      1,
	SizeMedium:     1,
	SizeLarge:      2,
	SizeHuge:       3,
	SizeGargantuan: 4,
}

// ValidSize 크기 등급 유효성 검사
func ValidSize(size string) bool {
	_, ok := sizeMultipliers[size]
	return ok
}

// SizeMultiplier 크기 등급의 그리드 셀 배수. 알 수 없는 등급은 medium 취급
func SizeMultiplier(size string) float64 {
	if m, ok := sizeMultipliers[size]; ok {
		return m
	}
	return 1
}

// ValidDiceVisibility 주사위 가시성 값 검사
func ValidDiceVisibility(v string) bool {
	return v == DicePublic || v == DiceGMOnly || v == DiceSelf
}

// ValidPhase 이니셔티브 페이즈 값 검사
func ValidPhase(p string) bool {
	return p == PhaseFast || p == PhaseSlow
}

// ValidInitiativeVisibility 이니셔티브 가시성 값 검사
func ValidInitiativeVisibility(v string) bool {
	return v == InitiativePublic || v == InitiativeGMOnly
}
