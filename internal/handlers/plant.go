package handlers

import (
	"context"
	"net/http"

	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/plant"
)

// PlantService manages production lines and machines.
type PlantService interface {
	CreateLine(ctx context.Context, in plant.LineInput) (*models.ProductionLine, error)
	GetLine(ctx context.Context, id string) (*models.ProductionLine, error)
	UpdateLine(ctx context.Context, id string, in plant.LineUpdate) (*models.ProductionLine, error)
	DeleteLine(ctx context.Context, id string) error
	CreateMachine(ctx context.Context, in plant.MachineInput) (*models.Machine, error)
	GetMachine(ctx context.Context, id string) (*models.Machine, error)
	UpdateMachine(ctx context.Context, id string, in plant.MachineUpdate) (*models.Machine, error)
	DeleteMachine(ctx context.Context, id string) error
}

// PlantHandler serves the line and machine endpoints.
type PlantHandler struct {
	service PlantService
}

// NewPlantHandler creates the handler.
func NewPlantHandler(service PlantService) *PlantHandler {
	return &PlantHandler{service: service}
}

// CreateLine handles POST /api/lines.
func (h *PlantHandler) CreateLine(w http.ResponseWriter, r *http.Request) {
	var in plant.LineInput
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	l, err := h.service.CreateLine(r.Context(), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *PlantHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetLine(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// UpdateLine applies the fields present in the body.
func (h *PlantHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var in plant.LineUpdate
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	l, err := h.service.UpdateLine(r.Context(), r.PathValue("id"), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *PlantHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLine(r.Context(), r.PathValue("id")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateMachine handles POST /api/machines.
func (h *PlantHandler) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var in plant.MachineInput
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.CreateMachine(r.Context(), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *PlantHandler) GetMachine(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMachine(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateMachine applies the fields present in the body; production_line_id
// moves the machine.
func (h *PlantHandler) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	var in plant.MachineUpdate
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.UpdateMachine(r.Context(), r.PathValue("id"), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *PlantHandler) DeleteMachine(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMachine(r.Context(), r.PathValue("id")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
