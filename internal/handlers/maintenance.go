package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
	"github.com/ukydev/plant-maintenance/internal/maintenance"
	"github.com/ukydev/plant-maintenance/internal/middleware"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/report"
	"github.com/ukydev/plant-maintenance/internal/storage"
)

const maxMultipartMemory = 32 << 20

// MaintenanceService is the lifecycle engine as seen by the HTTP layer.
type MaintenanceService interface {
	Create(ctx context.Context, in maintenance.CreateInput) (*models.MaintenanceRequest, error)
	Assign(ctx context.Context, id string, in maintenance.AssignInput) (*models.MaintenanceRequest, error)
	UpdateStatus(ctx context.Context, id string, in maintenance.StatusInput) (*models.MaintenanceRequest, error)
	Close(ctx context.Context, id string, in maintenance.CloseInput) (*models.MaintenanceRequest, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.MaintenanceRequest, error)
	ListForSupervisor(ctx context.Context, p *models.Principal, in maintenance.ListInput) (*models.RequestPage, error)
	Summary(ctx context.Context) ([]models.MachineSummary, error)
}

// AttachmentSaver stores uploaded files and returns their keys. Discard
// removes keys again and reports the ones it could not remove.
type AttachmentSaver interface {
	SaveAll(ctx context.Context, folder string, files []*multipart.FileHeader) ([]string, error)
	Discard(ctx context.Context, keys []string) []string
}

// MaintenanceHandler serves the maintenance request endpoints.
type MaintenanceHandler struct {
	service MaintenanceService
	uploads AttachmentSaver
	clock   clock.Clock
	log     logrus.FieldLogger
}

// NewMaintenanceHandler creates the handler. uploads may be nil, in which
// case multipart bodies are rejected.
func NewMaintenanceHandler(service MaintenanceService, uploads AttachmentSaver, c clock.Clock, log logrus.FieldLogger) *MaintenanceHandler {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MaintenanceHandler{service: service, uploads: uploads, clock: c, log: log}
}

func isMultipart(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "multipart/form-data"
}

// uploadedFiles parses the multipart form and stores its "attachments" files.
func (h *MaintenanceHandler) uploadedFiles(r *http.Request, folder string) ([]string, error) {
	if h.uploads == nil {
		return nil, apperr.Validation("attachments are not supported", nil)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, apperr.Validation("invalid multipart form", err)
	}
	files := r.MultipartForm.File["attachments"]
	if len(files) == 0 {
		return nil, nil
	}
	return h.uploads.SaveAll(r.Context(), folder, files)
}

// discard removes attachments uploaded for a request that was not saved.
func (h *MaintenanceHandler) discard(ctx context.Context, keys []string) {
	if len(keys) == 0 || h.uploads == nil {
		return
	}
	if failed := h.uploads.Discard(ctx, keys); len(failed) > 0 {
		h.log.WithField("keys", failed).Warn("Failed to remove unreferenced attachments")
	}
}

func (h *MaintenanceHandler) principal(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Unauthorized("authentication required"))
	}
	return p, ok
}

// Create raises a maintenance request from JSON or multipart form data.
func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var in maintenance.CreateInput
	var keys []string
	if isMultipart(r) {
		var err error
		keys, err = h.uploadedFiles(r, storage.FolderRequests)
		if err != nil {
			apperr.Write(w, err)
			return
		}
		in = maintenance.CreateInput{
			ProductionLineID:    r.FormValue("production_line_id"),
			MachineID:           r.FormValue("machine_id"),
			ProductionLineState: models.LineState(r.FormValue("production_line_state")),
			MachineState:        models.MachineState(r.FormValue("machine_state")),
			Symptoms:            r.FormValue("symptoms"),
			RootCause:           r.FormValue("root_cause"),
			Attachments:         keys,
		}
	} else if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	in.CreatedBy = p.EmployeeID

	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.discard(r.Context(), keys)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns a page of requests. Query: status, assigned_to, page, limit.
func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	in := maintenance.ListInput{
		Status:     q.Get("status"),
		AssignedTo: q.Get("assigned_to"),
	}
	var err error
	if in.Page, err = queryInt(q.Get("page")); err != nil {
		apperr.Write(w, apperr.Validation("page must be a number", err))
		return
	}
	if in.Limit, err = queryInt(q.Get("limit")); err != nil {
		apperr.Write(w, apperr.Validation("limit must be a number", err))
		return
	}

	page, err := h.service.ListForSupervisor(r.Context(), p, in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// Get returns one request.
func (h *MaintenanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Assign hands the request to a technician.
func (h *MaintenanceHandler) Assign(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var in maintenance.AssignInput
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	in.AssignedBy = p.EmployeeID

	updated, err := h.service.Assign(r.Context(), r.PathValue("id"), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UpdateStatus moves the request along its workflow.
func (h *MaintenanceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in maintenance.StatusInput
	if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Close settles the request. Multipart bodies carry spare_parts as a JSON
// array field next to the attachment files.
func (h *MaintenanceHandler) Close(w http.ResponseWriter, r *http.Request) {
	var in maintenance.CloseInput
	var keys []string
	if isMultipart(r) {
		var err error
		keys, err = h.uploadedFiles(r, storage.FolderClosures)
		if err != nil {
			apperr.Write(w, err)
			return
		}
		if raw := r.FormValue("spare_parts"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.SpareParts); err != nil {
				h.discard(r.Context(), keys)
				apperr.Write(w, apperr.Validation("spare_parts must be a JSON array", err))
				return
			}
		}
		in.Solution = r.FormValue("solution")
		in.Recommendations = r.FormValue("recommendations")
		in.Attachments = keys
	} else if err := decodeJSON(r, &in); err != nil {
		apperr.Write(w, err)
		return
	}

	closed, err := h.service.Close(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.discard(r.Context(), keys)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

// Delete removes a request.
func (h *MaintenanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary returns per-machine figures as JSON, or as a workbook with ?format=xlsx.
func (h *MaintenanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summary(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, rows)
	case "xlsx":
		now := h.clock.Now()
		data, err := report.SummaryWorkbook(rows, now)
		if err != nil {
			h.log.WithError(err).Error("failed to build summary workbook")
			apperr.Write(w, apperr.Internal("failed to build workbook", err))
			return
		}
		w.Header().Set("Content-Type", report.ContentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="maintenance-summary-%s.xlsx"`, now.Format("20060102")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		apperr.Write(w, apperr.Validation("format must be json or xlsx", nil))
	}
}
