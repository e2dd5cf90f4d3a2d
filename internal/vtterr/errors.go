package vtterr

import (
	"errors"
	"fmt"
)

// ErrFeatureUnavailable 백엔드 스키마에 해당 테이블이 없는 경우 (기능 비활성화)
var ErrFeatureUnavailable = errors.New("feature unavailable on this backend")

// NotFoundError 대상 없음 (세션/맵/캐릭터 조회 실패)
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// PermissionError 권한 없음 (GM 전용 동작, 선점 실패 등)
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

// ValidationError 네트워크 호출 전에 걸러낸 잘못된 입력
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// BackendError 스토리지/채널 협력자 실패 래핑 (원본 메시지 유지)
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *BackendError) Unwrap() error { return e.Err }

// UnknownError 분류되지 않은 실패
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string { return "unknown error: " + e.Err.Error() }

func (e *UnknownError) Unwrap() error { return e.Err }

// NotFound NotFoundError 생성
func NotFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// Permission PermissionError 생성
func Permission(format string, args ...any) error {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

// Validation ValidationError 생성
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Backend 협력자 에러 래핑
func Backend(err error, format string, args ...any) error {
	return &BackendError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsNotFound 편의 판별자
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsPermission 편의 판별자
func IsPermission(err error) bool {
	var e *PermissionError
	return errors.As(err, &e)
}

// IsValidation 편의 판별자
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
