package handlers

import (
	"net/http"

	"github.com/ukydev/plant-maintenance/internal/middleware"
	"github.com/ukydev/plant-maintenance/internal/models"
)

// Router bundles everything served by the API.
type Router struct {
	Auth        *middleware.AuthMiddleware
	Login       *AuthHandler
	Maintenance *MaintenanceHandler
	Attachments *AttachmentHandler
	Plant       *PlantHandler
	Health      http.Handler
	Metrics     http.Handler
}

// Register mounts every route on mux.
func (rt Router) Register(mux *http.ServeMux) {
	perm := func(action string, h http.HandlerFunc) http.Handler {
		return rt.Auth.RequirePermission(action)(h)
	}

	mux.HandleFunc("POST /api/auth/login", rt.Login.Login)
	mux.HandleFunc("GET /api/auth/profile", rt.Login.GetProfile)

	m := rt.Maintenance
	mux.Handle("POST /api/requests", perm(models.PermCreateRequest, m.Create))
	mux.Handle("GET /api/requests", perm(models.PermViewRequests, m.List))
	mux.Handle("GET /api/requests/summary", perm(models.PermViewSummary, m.Summary))
	mux.Handle("GET /api/requests/{id}", perm(models.PermViewRequests, m.Get))
	mux.Handle("DELETE /api/requests/{id}", perm(models.PermDeleteRequest, m.Delete))
	mux.Handle("POST /api/requests/{id}/assign", perm(models.PermAssignRequest, m.Assign))
	mux.Handle("POST /api/requests/{id}/status", perm(models.PermUpdateStatus, m.UpdateStatus))
	mux.Handle("POST /api/requests/{id}/close", perm(models.PermCloseRequest, m.Close))

	if p := rt.Plant; p != nil {
		mux.Handle("POST /api/lines", perm(models.PermManagePlant, p.CreateLine))
		mux.Handle("GET /api/lines/{id}", perm(models.PermViewRequests, p.GetLine))
		mux.Handle("PATCH /api/lines/{id}", perm(models.PermManagePlant, p.UpdateLine))
		mux.Handle("DELETE /api/lines/{id}", perm(models.PermManagePlant, p.DeleteLine))
		mux.Handle("POST /api/machines", perm(models.PermManagePlant, p.CreateMachine))
		mux.Handle("GET /api/machines/{id}", perm(models.PermViewRequests, p.GetMachine))
		mux.Handle("PATCH /api/machines/{id}", perm(models.PermManagePlant, p.UpdateMachine))
		mux.Handle("DELETE /api/machines/{id}", perm(models.PermManagePlant, p.DeleteMachine))
	}
	if rt.Attachments != nil {
		mux.Handle("GET /api/attachments/{key...}", perm(models.PermViewRequests, rt.Attachments.Get))
	}
	if rt.Health != nil {
		mux.Handle("GET /health", rt.Health)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
}
