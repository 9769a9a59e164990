// Package httpapi 分配引擎的 JSON API
package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（方法 + 路径模式）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes 存活检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterAssignmentRoutes 推荐 / 自动分配 / 批量分配 / 评估
func (r *Router) RegisterAssignmentRoutes(h *AssignmentHandler) {
	r.Handle("GET /api/v1/assignment/strategies", h.ListStrategies)
	r.Handle("GET /api/v1/assignment/packages/{packageID}/recommendations", h.GetRecommendations)
	r.Handle("POST /api/v1/assignment/packages/{packageID}/auto", h.ExecuteAutoAssignment)
	r.Handle("POST /api/v1/assignment/batch", h.ExecuteBatchAssignment)
	r.Handle("GET /api/v1/assignment/assess", h.AssessMatching)
}

// RegisterRuleRoutes 分配规则管理
func (r *Router) RegisterRuleRoutes(h *RuleHandler) {
	r.Handle("GET /api/v1/rules", h.ListRules)
	r.Handle("POST /api/v1/rules", h.CreateRule)
	r.Handle("GET /api/v1/rules/{ruleID}", h.GetRule)
	r.Handle("PUT /api/v1/rules/{ruleID}", h.UpdateRule)
	r.Handle("DELETE /api/v1/rules/{ruleID}", h.DeleteRule)
	r.Handle("POST /api/v1/rules/{ruleID}/test", h.TestRule)
}

// RegisterPackageRoutes 案件包生命周期
func (r *Router) RegisterPackageRoutes(h *PackageHandler) {
	r.Handle("GET /api/v1/packages", h.ListPackages)
	r.Handle("POST /api/v1/packages", h.CreatePackage)
	r.Handle("GET /api/v1/packages/{packageID}", h.GetPackage)
	r.Handle("POST /api/v1/packages/{packageID}/transitions", h.Transition)
	r.Handle("GET /api/v1/packages/{packageID}/next-statuses", h.PossibleNextStatuses)
	r.Handle("GET /api/v1/packages/{packageID}/history", h.History)
	r.Handle("GET /api/v1/transitions/validate", h.ValidateTransition)
	r.Handle("GET /api/v1/transitions/required-event", h.RequiredEvent)
}
