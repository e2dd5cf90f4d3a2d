// Package repo 호스팅 백엔드(관계형 저장소)에 대한 타입 있는 클라이언트.
// 커밋된 쓰기마다 세션 feed 토픽으로 행 변경 이벤트를 발행한다.
// feed 발행은 best-effort다: 실패해도 본 작업은 성공으로 남고 로그만 남긴다.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vtt-engine/internal/realtime"
)

// Repo gorm 핸들 + feed 발행자
type Repo struct {
	db  *gorm.DB
	rt  realtime.Publisher
	log zerolog.Logger
}

// New 리포 생성. rt가 nil이면 feed 발행 없이 동작한다
func New(db *gorm.DB, rt realtime.Publisher, log zerolog.Logger) *Repo {
	return &Repo{db: db, rt: rt, log: log}
}

// DB 내부 gorm 핸들 (진단용)
func (r *Repo) DB() *gorm.DB {
	return r.db
}

// publishChange 행 변경 이벤트 발행 (best-effort)
func (r *Repo) publishChange(ctx context.Context, sessionID, table string, op realtime.Op, row any) {
	if r.rt == nil {
		return
	}
	ev, err := realtime.NewChangeEvent(table, op, row)
	if err != nil {
		r.log.Warn().Err(err).Str("table", table).Msg("change event encode failed")
		return
	}
	if err := r.rt.PublishChange(ctx, sessionID, ev); err != nil {
		r.log.Warn().Err(err).Str("table", table).Msg("change feed publish failed")
	}
}

// deletedRow DELETE 이벤트용 최소 행
type deletedRow struct {
	ID string `json:"id"`
}

// isUndefinedTable 백엔드 스키마에 테이블이 없는 경우 (42P01).
// 이니셔티브 테이블은 선택적이라 이 에러는 "기능 없음"으로 취급된다.
func isUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	// sqlite (테스트 백엔드)
	return strings.Contains(err.Error(), "no such table")
}

// IsDuplicateKey unique 제약 위반 여부 (23505). 조인 코드 충돌 재시도 판별에 쓰인다
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite (테스트 백엔드)
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
