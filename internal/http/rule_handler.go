package httpapi

import (
	"net/http"
	"strings"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/service"

	"go.uber.org/zap"
)

// RuleHandler 分配规则接口
type RuleHandler struct {
	svc    *service.RuleService
	logger *zap.Logger
}

func NewRuleHandler(svc *service.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{svc: svc, logger: logger}
}

// ListRules GET /api/v1/rules?enabled_only=true&rule_type=REGION_BASED
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RuleFilter{
		EnabledOnly: q.Get("enabled_only") == "true",
		RuleType:    domain.RuleType(strings.ToUpper(strings.TrimSpace(q.Get("rule_type")))),
	}
	list, err := h.svc.ListRules(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

// CreateRule POST /api/v1/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req service.RuleRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	rule, err := h.svc.CreateRule(r.Context(), callerFromReq(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(rule))
}

// GetRule GET /api/v1/rules/{ruleID}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.GetRule(r.Context(), r.PathValue("ruleID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rule))
}

// UpdateRule PUT /api/v1/rules/{ruleID}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req service.RuleRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	rule, err := h.svc.UpdateRule(r.Context(), callerFromReq(r), r.PathValue("ruleID"), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rule))
}

// DeleteRule DELETE /api/v1/rules/{ruleID}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(r.Context(), callerFromReq(r), r.PathValue("ruleID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

type testRuleRequest struct {
	PackageID string `json:"package_id"`
	Limit     int    `json:"limit"`
}

// TestRule POST /api/v1/rules/{ruleID}/test
func (h *RuleHandler) TestRule(w http.ResponseWriter, r *http.Request) {
	var req testRuleRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.PackageID == "" {
		writeError(w, h.logger, domain.Validation("package_id is required"))
		return
	}
	res, err := h.svc.TestRule(r.Context(), callerFromReq(r), r.PathValue("ruleID"), req.PackageID, req.Limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
