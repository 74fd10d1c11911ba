package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"repairdesk/internal/models"
	"repairdesk/internal/service"
	"repairdesk/internal/util"
)

const maxAvatarUploadBytes = 10 << 20 // 10 MiB

var allowedAvatarExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// EmployeeHandler serves the employee management endpoints. Mutations are
// super-admin only; forms arrive as multipart because of the avatar file.
type EmployeeHandler struct {
	employees  *service.EmployeeService
	uploadsDir string
	logger     *zap.Logger
}

func NewEmployeeHandler(employees *service.EmployeeService, uploadsDir string, logger *zap.Logger) *EmployeeHandler {
	return &EmployeeHandler{
		employees:  employees,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
}

func (h *EmployeeHandler) RegisterRoutes(router chi.Router) {
	router.Route("/employees", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{employeeID}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(RequirePrivileged)
			r.Post("/", h.Create)
			r.Put("/{employeeID}", h.Update)
			r.Delete("/{employeeID}", h.Delete)
		})
	})
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	employees, err := h.employees.ListEmployees(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list employees")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(employees, "Employees retrieved"))
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "employeeID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid employee id")
		return
	}

	employee, err := h.employees.GetEmployee(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Employee not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to get employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(employee, "Employee retrieved"))
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxAvatarUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid multipart form")
		return
	}

	displayName := r.FormValue("display_name")
	password := r.FormValue("password")
	if displayName == "" || password == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("display_name and password are required"), "Invalid request")
		return
	}

	avatarPath, err := h.saveAvatar(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Avatar upload failed")
		return
	}

	claims := ClaimsFromContext(ctx)
	employee, err := h.employees.CreateEmployee(ctx, service.CreateEmployeeInput{
		DisplayName: displayName,
		Password:    password,
		Role:        models.RoleStandard,
		AvatarPath:  avatarPath,
		CreatedBy:   claims.AccountID,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to create employee")
		return
	}

	h.logger.Info("Employee created via HTTP",
		util.Uint("account_id", employee.ID),
		util.Uint("created_by", claims.AccountID))
	respondWithJSON(w, http.StatusCreated, successResponse(employee, "Employee created"))
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "employeeID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid employee id")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid multipart form")
		return
	}

	avatarPath, err := h.saveAvatar(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Avatar upload failed")
		return
	}

	claims := ClaimsFromContext(ctx)
	employee, err := h.employees.UpdateEmployee(ctx, id, service.UpdateEmployeeInput{
		DisplayName: r.FormValue("display_name"),
		Password:    r.FormValue("password"),
		AvatarPath:  avatarPath,
		ModifiedBy:  claims.AccountID,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Employee not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to update employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(employee, "Employee updated"))
}

func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "employeeID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid employee id")
		return
	}

	if err := h.employees.DeactivateEmployee(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Employee not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to delete employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Employee deleted"))
}

// saveAvatar stores the uploaded avatar file under the uploads directory and
// returns its relative path. Returns "" when the form carries no avatar.
func (h *EmployeeHandler) saveAvatar(r *http.Request) (string, error) {
	file, header, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAvatarExtensions[ext] {
		return "", fmt.Errorf("unsupported avatar type %q", ext)
	}

	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare uploads dir: %w", err)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(h.uploadsDir, name)
	if err := writeUpload(path, file); err != nil {
		return "", err
	}
	return path, nil
}

func writeUpload(path string, src multipart.File) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write upload file: %w", err)
	}
	return nil
}

func parseID(r *http.Request, param string) (uint, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
