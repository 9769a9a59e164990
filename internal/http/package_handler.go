package httpapi

import (
	"net/http"
	"strings"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/service"

	"go.uber.org/zap"
)

// PackageHandler 案件包生命周期接口
type PackageHandler struct {
	svc    *service.PackageStatusService
	logger *zap.Logger
}

func NewPackageHandler(svc *service.PackageStatusService, logger *zap.Logger) *PackageHandler {
	return &PackageHandler{svc: svc, logger: logger}
}

func statusParam(r *http.Request, name string) domain.PackageStatus {
	return domain.PackageStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(name))))
}

// ListPackages GET /api/v1/packages?status=PUBLISHED&source_org_id=&limit=
func (h *PackageHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	filter := repository.PackageFilter{
		Status:      statusParam(r, "status"),
		SourceOrgID: r.URL.Query().Get("source_org_id"),
		Limit:       parseInt(r.URL.Query().Get("limit"), 100),
	}
	list, err := h.svc.ListPackages(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

// CreatePackage POST /api/v1/packages
func (h *PackageHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var pkg domain.CasePackage
	if err := readBodyJSON(r, maxBodyBytes, &pkg); err != nil {
		writeError(w, h.logger, err)
		return
	}
	created, err := h.svc.CreatePackage(r.Context(), callerFromReq(r), &pkg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(created))
}

// GetPackage GET /api/v1/packages/{packageID}
func (h *PackageHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.svc.GetPackage(r.Context(), r.PathValue("packageID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pkg))
}

type transitionRequest struct {
	Event         domain.PackageEvent `json:"event"`
	DisposalOrgID string              `json:"disposal_org_id"`
}

// Transition POST /api/v1/packages/{packageID}/transitions
func (h *PackageHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Event == "" {
		writeError(w, h.logger, domain.Validation("event is required"))
		return
	}
	pkg, err := h.svc.Transition(r.Context(), callerFromReq(r), r.PathValue("packageID"), req.Event, req.DisposalOrgID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pkg))
}

// PossibleNextStatuses GET /api/v1/packages/{packageID}/next-statuses
func (h *PackageHandler) PossibleNextStatuses(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.svc.GetPackage(r.Context(), r.PathValue("packageID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status":        pkg.Status,
		"next_statuses": h.svc.PossibleNextStatuses(pkg.Status),
	}))
}

// History GET /api/v1/packages/{packageID}/history?limit=50
func (h *PackageHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.History(r.Context(), r.PathValue("packageID"), parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

// ValidateTransition GET /api/v1/transitions/validate?from=&to=&event=
func (h *PackageHandler) ValidateTransition(w http.ResponseWriter, r *http.Request) {
	event := domain.PackageEvent(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("event"))))
	valid := h.svc.ValidateTransition(statusParam(r, "from"), statusParam(r, "to"), event)
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"valid": valid}))
}

// RequiredEvent GET /api/v1/transitions/required-event?from=&to=
func (h *PackageHandler) RequiredEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.RequiredEvent(statusParam(r, "from"), statusParam(r, "to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]domain.PackageEvent{"event": ev}))
}
