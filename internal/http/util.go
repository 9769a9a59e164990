package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"drmp-assignment/internal/domain"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Validation("invalid request body: %v", err)
	}
	return nil
}

// statusFor 错误分类 -> HTTP 状态码
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation, domain.KindUnknownStrategy:
		return http.StatusBadRequest
	case domain.KindInvalidTransition, domain.KindConflict:
		return http.StatusConflict
	case domain.KindRuleNotMatched, domain.KindScoreBelowThreshold, domain.KindNoEligibleOrganizations:
		return http.StatusUnprocessableEntity
	case domain.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	kind := string(domain.KindOf(err))
	if kind == "" {
		kind = "INTERNAL_ERROR"
	}
	writeJSON(w, status, Result[ErrorDetail]{
		Code:    ResultError,
		Type:    "error",
		Message: domain.Reason(err),
		Result:  ErrorDetail{ErrorCode: kind},
	})
}

// callerFromReq 调用方由上游网关通过请求头传入
func callerFromReq(r *http.Request) domain.Caller {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		return domain.SystemCaller
	}
	return domain.Caller{
		UserID:   userID,
		UserName: strings.TrimSpace(r.Header.Get("X-User-Name")),
		OrgID:    strings.TrimSpace(r.Header.Get("X-Org-Id")),
	}
}
