package httpapi

import (
	"net/http"
	"strings"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/service"

	"go.uber.org/zap"
)

// AssignmentHandler 分配相关接口
type AssignmentHandler struct {
	svc    *service.AssignmentService
	logger *zap.Logger
}

func NewAssignmentHandler(svc *service.AssignmentService, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{svc: svc, logger: logger}
}

// ListStrategies GET /api/v1/assignment/strategies
func (h *AssignmentHandler) ListStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.ListStrategies()))
}

// GetRecommendations GET /api/v1/assignment/packages/{packageID}/recommendations?limit=10
func (h *AssignmentHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 0)
	resp, err := h.svc.GetRecommendations(r.Context(), callerFromReq(r), r.PathValue("packageID"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

type autoAssignRequest struct {
	RuleID string `json:"rule_id"`
}

// ExecuteAutoAssignment POST /api/v1/assignment/packages/{packageID}/auto
func (h *AssignmentHandler) ExecuteAutoAssignment(w http.ResponseWriter, r *http.Request) {
	var req autoAssignRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.svc.ExecuteAutoAssignment(r.Context(), callerFromReq(r), r.PathValue("packageID"), req.RuleID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

type batchAssignRequest struct {
	PackageIDs []string `json:"package_ids"`
	Strategy   string   `json:"strategy"`
}

// ExecuteBatchAssignment POST /api/v1/assignment/batch
// 单项失败体现在结果中，整体仍返回 200
func (h *AssignmentHandler) ExecuteBatchAssignment(w http.ResponseWriter, r *http.Request) {
	var req batchAssignRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.svc.ExecuteBatchAssignment(r.Context(), callerFromReq(r), req.PackageIDs, req.Strategy)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// AssessMatching GET /api/v1/assignment/assess?org_id=&package_id=
func (h *AssignmentHandler) AssessMatching(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orgID := strings.TrimSpace(q.Get("org_id"))
	packageID := strings.TrimSpace(q.Get("package_id"))
	if orgID == "" || packageID == "" {
		writeError(w, h.logger, domain.Validation("org_id and package_id are required"))
		return
	}
	res, err := h.svc.AssessMatching(r.Context(), callerFromReq(r), orgID, packageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
