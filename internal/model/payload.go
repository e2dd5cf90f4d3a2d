package model

import (
	"encoding/json"
	"fmt"
)

// 맵/캐릭터 행의 jsonb 컬럼은 문자열로 오간다. 바운더리에서 명시적으로
// 파싱하고, 모양이 어긋나면 조용히 넘어가지 않고 에러를 낸다.

// Point 맵 픽셀 좌표
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FogRegion 포그 오버레이 한 획. 기본 상태 위에 append-only로 쌓인다
type FogRegion struct {
	Type       string  `json:"type"` // reveal | hide
	Points     []Point `json:"points"`
	BrushWidth float64 `json:"brush_width"`
}

// Validate 포그 영역 형식 검사
func (r FogRegion) Validate() error {
	if r.Type != FogReveal && r.Type != FogHide {
		return fmt.Errorf("fog region: unknown type %q", r.Type)
	}
	if len(r.Points) == 0 {
		return fmt.Errorf("fog region: empty point list")
	}
	if r.BrushWidth <= 0 {
		return fmt.Errorf("fog region: brush width must be positive, got %v", r.BrushWidth)
	}
	return nil
}

// ParseFogRegions jsonb 문자열을 포그 영역 목록으로 파싱
func ParseFogRegions(data string) ([]FogRegion, error) {
	if data == "" {
		return []FogRegion{}, nil
	}
	var regions []FogRegion
	if err := json.Unmarshal([]byte(data), &regions); err != nil {
		return nil, fmt.Errorf("fog data: %w", err)
	}
	for i, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("fog data[%d]: %w", i, err)
		}
	}
	if regions == nil {
		regions = []FogRegion{}
	}
	return regions, nil
}

// EncodeFogRegions 포그 영역 목록을 jsonb 문자열로 직렬화
func EncodeFogRegions(regions []FogRegion) (string, error) {
	if regions == nil {
		regions = []FogRegion{}
	}
	for i, r := range regions {
		if err := r.Validate(); err != nil {
			return "", fmt.Errorf("fog data[%d]: %w", i, err)
		}
	}
	b, err := json.Marshal(regions)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DrawingRegion 플레이어 드로잉 한 획
type DrawingRegion struct {
	Points     []Point `json:"points"`
	Color      string  `json:"color"`
	BrushWidth float64 `json:"brush_width"`
	CreatedBy  string  `json:"created_by"`
}

// ParseDrawingRegions jsonb 문자열을 드로잉 목록으로 파싱
func ParseDrawingRegions(data string) ([]DrawingRegion, error) {
	if data == "" {
		return []DrawingRegion{}, nil
	}
	var regions []DrawingRegion
	if err := json.Unmarshal([]byte(data), &regions); err != nil {
		return nil, fmt.Errorf("drawing data: %w", err)
	}
	if regions == nil {
		regions = []DrawingRegion{}
	}
	return regions, nil
}

// EncodeDrawingRegions 드로잉 목록 직렬화
func EncodeDrawingRegions(regions []DrawingRegion) (string, error) {
	if regions == nil {
		regions = []DrawingRegion{}
	}
	b, err := json.Marshal(regions)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EffectTile 맵 위 이펙트 타일
type EffectTile struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ParseEffectTiles jsonb 문자열을 이펙트 타일 목록으로 파싱
func ParseEffectTiles(data string) ([]EffectTile, error) {
	if data == "" {
		return []EffectTile{}, nil
	}
	var tiles []EffectTile
	if err := json.Unmarshal([]byte(data), &tiles); err != nil {
		return nil, fmt.Errorf("effect data: %w", err)
	}
	if tiles == nil {
		tiles = []EffectTile{}
	}
	return tiles, nil
}

// InventoryItem 캐릭터 인벤토리 항목
type InventoryItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

// ParseInventory jsonb 문자열을 인벤토리 목록으로 파싱
func ParseInventory(data string) ([]InventoryItem, error) {
	if data == "" {
		return []InventoryItem{}, nil
	}
	var items []InventoryItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("inventory data: %w", err)
	}
	for i, item := range items {
		if item.Name == "" {
			return nil, fmt.Errorf("inventory data[%d]: empty name", i)
		}
		if item.Quantity < 0 {
			return nil, fmt.Errorf("inventory data[%d]: negative quantity", i)
		}
	}
	if items == nil {
		items = []InventoryItem{}
	}
	return items, nil
}

// EncodeInventory 인벤토리 목록 직렬화
func EncodeInventory(items []InventoryItem) (string, error) {
	if items == nil {
		items = []InventoryItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseDiceResults 주사위 개별 눈 목록 파싱
func ParseDiceResults(data string) ([]int, error) {
	if data == "" {
		return []int{}, nil
	}
	var results []int
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, fmt.Errorf("dice results: %w", err)
	}
	if results == nil {
		results = []int{}
	}
	return results, nil
}

// EncodeDiceResults 주사위 개별 눈 목록 직렬화
func EncodeDiceResults(results []int) string {
	if results == nil {
		results = []int{}
	}
	b, _ := json.Marshal(results)
	return string(b)
}
