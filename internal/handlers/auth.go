package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/auth"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/middleware"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmployeeStore looks employees up for login and profile
type EmployeeStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Employee, error)
	FindByEmail(ctx context.Context, email string) (*models.Employee, error)
}

// DepartmentStore resolves an employee's department
type DepartmentStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Department, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *auth.Service
	employees   EmployeeStore
	departments DepartmentStore
	log         logrus.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, employees EmployeeStore, departments DepartmentStore, log logrus.FieldLogger) *AuthHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthHandler{
		authService: authService,
		employees:   employees,
		departments: departments,
		log:         log,
	}
}

// ProfileResponse is the authenticated employee with the department name
type ProfileResponse struct {
	Employee   models.Employee       `json:"employee"`
	Department models.DepartmentName `json:"department"`
}

// Login handles employee login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := decodeJSON(r, &loginReq); err != nil {
		apperr.Write(w, err)
		return
	}

	loginReq.Email = strings.TrimSpace(strings.ToLower(loginReq.Email))
	if loginReq.Email == "" || loginReq.Password == "" {
		apperr.Write(w, apperr.Validation("email and password are required", nil))
		return
	}

	employee, err := h.employees.FindByEmail(r.Context(), loginReq.Email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.log.WithError(err).Error("failed to look up employee")
			apperr.Write(w, apperr.Internal("failed to log in", err))
			return
		}
		apperr.Write(w, apperr.Unauthorized("invalid credentials"))
		return
	}

	if !h.authService.CheckPassword(loginReq.Password, employee.PasswordHash) {
		h.log.WithField("email", loginReq.Email).Warn("failed login attempt")
		apperr.Write(w, apperr.Unauthorized("invalid credentials"))
		return
	}

	department, err := h.departments.FindByID(r.Context(), employee.DepartmentID)
	if err != nil {
		h.log.WithError(err).WithField("employee_id", employee.ID.Hex()).Error("employee has no department")
		apperr.Write(w, apperr.Forbidden("employee is not assigned to a department"))
		return
	}

	token, err := h.authService.GenerateToken(employee, department.Name)
	if err != nil {
		apperr.Write(w, apperr.Internal("failed to generate token", err))
		return
	}

	h.log.WithFields(logrus.Fields{
		"employee_id": employee.ID.Hex(),
		"department":  department.Name,
	}).Info("employee logged in")

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:    token,
		Employee: *employee,
	})
}

// GetProfile returns the current employee's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Unauthorized("authentication required"))
		return
	}

	id, err := db.ParseID(principal.EmployeeID)
	if err != nil {
		apperr.Write(w, apperr.Unauthorized("invalid token subject"))
		return
	}

	employee, err := h.employees.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			apperr.Write(w, apperr.NotFound("employee not found"))
			return
		}
		apperr.Write(w, apperr.Internal("failed to load employee", err))
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Employee: *employee, Department: principal.Department})
}
