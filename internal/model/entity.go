package model

import (
	"time"
)

// Session 게임 세션
type Session struct {
	ID                string  `gorm:"type:uuid;primaryKey" json:"id"`
	JoinCode          string  `gorm:"type:varchar(8);uniqueIndex;not null" json:"join_code"`
	Name              string  `gorm:"type:varchar(200);not null" json:"name"`
	ActiveMapID       *string `gorm:"type:uuid" json:"active_map_id,omitempty"`
	CurrentGMUsername *string `gorm:"type:varchar(100)" json:"current_gm_username,omitempty"`
	NotepadContent    string  `gorm:"type:text" json:"notepad_content"`

	// Feature toggles
	AllowPlayerNPCEdit  bool `gorm:"default:false" json:"allow_player_npc_edit"`
	InitiativeEnabled   bool `gorm:"default:false" json:"initiative_enabled"`
	PlotDiceEnabled     bool `gorm:"default:false" json:"plot_dice_enabled"`
	AllowPlayerDrawings bool `gorm:"default:true" json:"allow_player_drawings"`
	Blindfold           bool `gorm:"default:false" json:"blindfold"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// SessionPlayer 세션 참가자 (접속 플레이어 1명당 1행, username은 세션 내 유일)
type SessionPlayer struct {
	ID                 string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_session_username,priority:1" json:"session_id"`
	Username           string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_session_username,priority:2" json:"username"`
	CharacterID        *string   `gorm:"type:uuid" json:"character_id,omitempty"`
	IsGM               bool      `gorm:"column:is_gm;default:false" json:"is_gm"`
	InitiativeModifier int       `gorm:"default:0" json:"initiative_modifier"`
	LastSeen           time.Time `json:"last_seen"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SessionPlayer) TableName() string {
	return "session_players"
}

// GameMap 맵. 포그/드로잉/이펙트 오버레이는 jsonb 배열 문자열로 저장
type GameMap struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"type:uuid;not null;index" json:"session_id"`
	Name      string `gorm:"type:varchar(200);not null" json:"name"`
	ImageURL  string `gorm:"type:text" json:"image_url"`
	Width     int    `gorm:"not null" json:"width"`
	Height    int    `gorm:"not null" json:"height"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`

	// Grid settings
	GridEnabled bool    `gorm:"default:true" json:"grid_enabled"`
	GridOffsetX float64 `gorm:"default:0" json:"grid_offset_x"`
	GridOffsetY float64 `gorm:"default:0" json:"grid_offset_y"`
	GridSize    float64 `gorm:"default:50" json:"grid_size"`
	GridColor   string  `gorm:"type:varchar(20);default:'#000000'" json:"grid_color"`

	// Fog of war
	FogEnabled      bool   `gorm:"default:false" json:"fog_enabled"`
	FogDefaultState string `gorm:"type:varchar(10);default:'fogged'" json:"fog_default_state"`
	FogData         string `gorm:"type:jsonb;default:'[]'" json:"fog_data"`

	DrawingData string `gorm:"type:jsonb;default:'[]'" json:"drawing_data"`
	EffectData  string `gorm:"type:jsonb;default:'[]'" json:"effect_data"`

	ShowPlayerTokens bool `gorm:"default:true" json:"show_player_tokens"`
	EffectsEnabled   bool `gorm:"default:false" json:"effects_enabled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GameMap) TableName() string {
	return "maps"
}

// Character 플레이어 토큰
type Character struct {
	ID          string  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   string  `gorm:"type:uuid;not null;index" json:"session_id"`
	Name        string  `gorm:"type:varchar(100);not null" json:"name"`
	TokenURL    string  `gorm:"type:text" json:"token_url"`
	Size        string  `gorm:"type:varchar(20);default:'medium'" json:"size"`
	StatusColor string  `gorm:"type:varchar(20);default:''" json:"status_color"`
	X           float64 `gorm:"default:0" json:"x"`
	Y           float64 `gorm:"default:0" json:"y"`

	// Claim state (최대 1명, 조건부 UPDATE로 선점)
	IsClaimed         bool    `gorm:"default:false" json:"is_claimed"`
	ClaimedByUsername *string `gorm:"type:varchar(100)" json:"claimed_by_username,omitempty"`

	Inventory string `gorm:"type:jsonb;default:'[]'" json:"inventory"`
	Notes     string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Character) TableName() string {
	return "characters"
}

// NPCTemplate NPC 스텐실. 맵에 배치되지 않는 재사용 정의
type NPCTemplate struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;index" json:"session_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	TokenURL  string    `gorm:"type:text" json:"token_url"`
	Size      string    `gorm:"type:varchar(20);default:'medium'" json:"size"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (NPCTemplate) TableName() string {
	return "npc_templates"
}

// NPCInstance 맵에 배치된 NPC. 배치 시점에 토큰/크기를 복사한다.
// 템플릿 삭제는 인스턴스를 건드리지 않는다 (TemplateID dangling 허용).
type NPCInstance struct {
	ID          string  `gorm:"type:uuid;primaryKey" json:"id"`
	MapID       string  `gorm:"type:uuid;not null;index" json:"map_id"`
	TemplateID  *string `gorm:"type:uuid" json:"template_id,omitempty"`
	Name        string  `gorm:"type:varchar(100);not null" json:"name"`
	TokenURL    string  `gorm:"type:text" json:"token_url"`
	Size        string  `gorm:"type:varchar(20);default:'medium'" json:"size"`
	StatusColor string  `gorm:"type:varchar(20);default:''" json:"status_color"`
	X           float64 `gorm:"default:0" json:"x"`
	Y           float64 `gorm:"default:0" json:"y"`
	Hidden      bool    `gorm:"default:false" json:"hidden"`
	Notes       string  `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NPCInstance) TableName() string {
	return "npc_instances"
}

// Handout 핸드아웃. kind에 따라 body/image 중 정확히 하나만 채워진다
type Handout struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;index" json:"session_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Kind      string    `gorm:"type:varchar(10);not null" json:"kind"`
	Body      *string   `gorm:"type:text" json:"body,omitempty"`
	ImageURL  *string   `gorm:"type:text" json:"image_url,omitempty"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Handout) TableName() string {
	return "handouts"
}

// InitiativeEntry 이니셔티브 트래커 엔트리 (수정 가능한 목록)
type InitiativeEntry struct {
	ID               string  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        string  `gorm:"type:uuid;not null;index" json:"session_id"`
	SourceType       string  `gorm:"type:varchar(10);not null" json:"source_type"`
	SourceID         *string `gorm:"type:uuid" json:"source_id,omitempty"`
	SourceName       string  `gorm:"type:varchar(100);not null" json:"source_name"`
	RolledByUsername string  `gorm:"type:varchar(100);not null" json:"rolled_by_username"`
	Modifier         int     `gorm:"default:0" json:"modifier"`
	RollValue        *int    `json:"roll_value,omitempty"`
	Total            *int    `json:"total,omitempty"`
	Phase            string  `gorm:"type:varchar(10);default:'fast'" json:"phase"`
	Visibility       string  `gorm:"type:varchar(10);default:'public'" json:"visibility"`
	ManualOverride   bool    `gorm:"default:false" json:"manual_override"`
	SortOrder        int     `gorm:"default:0" json:"sort_order"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InitiativeEntry) TableName() string {
	return "initiative_entries"
}

// InitiativeRollLog 이니셔티브 롤 감사 기록 (append-only, 수정/재정렬 없음)
type InitiativeRollLog struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        string    `gorm:"type:uuid;not null;index" json:"session_id"`
	SourceName       string    `gorm:"type:varchar(100);not null" json:"source_name"`
	RolledByUsername string    `gorm:"type:varchar(100);not null" json:"rolled_by_username"`
	RollValue        int       `gorm:"not null" json:"roll_value"`
	Modifier         int       `gorm:"default:0" json:"modifier"`
	Total            int       `gorm:"not null" json:"total"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (InitiativeRollLog) TableName() string {
	return "initiative_roll_logs"
}

// ChatMessage 채팅 메시지 (insert-only)
type ChatMessage struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;index:idx_chat_session_created" json:"session_id"`
	Username  string    `gorm:"type:varchar(100);not null" json:"username"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_session_created" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// DiceRoll 주사위 결과 (insert-only, visibility로 수신측 필터링)
type DiceRoll struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string    `gorm:"type:uuid;not null;index:idx_dice_session_created" json:"session_id"`
	Username   string    `gorm:"type:varchar(100);not null" json:"username"`
	Expression string    `gorm:"type:varchar(200);not null" json:"expression"`
	Results    string    `gorm:"type:jsonb;default:'[]'" json:"results"`
	Total      int       `gorm:"not null" json:"total"`
	Visibility string    `gorm:"type:varchar(10);default:'public'" json:"visibility"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_dice_session_created" json:"created_at"`
}

func (DiceRoll) TableName() string {
	return "dice_rolls"
}
