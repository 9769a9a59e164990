package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类（调用方据此决定 HTTP 状态码 / 批量条目的 error_code）
type ErrorKind string

const (
	KindNotFound                ErrorKind = "NOT_FOUND"
	KindInvalidTransition       ErrorKind = "INVALID_TRANSITION"
	KindRuleNotMatched          ErrorKind = "RULE_NOT_MATCHED"
	KindScoreBelowThreshold     ErrorKind = "SCORE_BELOW_THRESHOLD"
	KindNoEligibleOrganizations ErrorKind = "NO_ELIGIBLE_ORGANIZATIONS"
	KindUnknownStrategy         ErrorKind = "UNKNOWN_STRATEGY"
	KindValidation              ErrorKind = "VALIDATION_ERROR"
	KindConflict                ErrorKind = "CONFLICT"
	KindPersistence             ErrorKind = "PERSISTENCE_FAILED"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrRuleNotMatched          = errors.New("rule not matched")
	ErrScoreBelowThreshold     = errors.New("score below threshold")
	ErrNoEligibleOrganizations = errors.New("no eligible organizations")
	ErrUnknownStrategy         = errors.New("unknown strategy")
	ErrValidation              = errors.New("validation error")
	ErrConflict                = errors.New("concurrent modification")
	ErrPersistence             = errors.New("persistence failed")
)

var sentinels = map[ErrorKind]error{
	KindNotFound:                ErrNotFound,
	KindInvalidTransition:       ErrInvalidTransition,
	KindRuleNotMatched:          ErrRuleNotMatched,
	KindScoreBelowThreshold:     ErrScoreBelowThreshold,
	KindNoEligibleOrganizations: ErrNoEligibleOrganizations,
	KindUnknownStrategy:         ErrUnknownStrategy,
	KindValidation:              ErrValidation,
	KindConflict:                ErrConflict,
	KindPersistence:             ErrPersistence,
}

// Error 带分类的业务错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // 底层原因（可选）
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 同时暴露哨兵错误和底层原因
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewError 创建分类错误
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 创建带底层原因的分类错误
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(entity, id string) *Error {
	return NewError(KindNotFound, "%s not found: %s", entity, id)
}

func Validation(format string, args ...any) *Error {
	return NewError(KindValidation, format, args...)
}

// KindOf 返回错误分类；非业务错误返回空字符串
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Reason 返回适合展示给操作员的错误描述
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	}
	return err.Error()
}
