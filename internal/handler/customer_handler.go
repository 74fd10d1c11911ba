package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"repairdesk/internal/service"
	"repairdesk/internal/util"
)

// CustomerHandler serves the repair-record endpoints, including search and
// spreadsheet export.
type CustomerHandler struct {
	customers *service.CustomerService
	logger    *zap.Logger
}

func NewCustomerHandler(customers *service.CustomerService, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{customers: customers, logger: logger}
}

func (h *CustomerHandler) RegisterRoutes(router chi.Router) {
	router.Route("/customers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/export", h.Export)
		r.Get("/{customerID}", h.Get)
		r.Post("/", h.Create)
		r.Put("/{customerID}", h.Update)
		r.Delete("/{customerID}", h.Delete)
	})

	router.Get("/device-types", h.ListDeviceTypes)
}

type customerRequest struct {
	CustomerName  string  `json:"customer_name"`
	PhoneNumber   string  `json:"phone_number"`
	DeviceTypeID  *uint   `json:"device_type"`
	Warranty      string  `json:"warranty"`
	Model         string  `json:"model"`
	RepairType    string  `json:"repair_type"`
	ReceivedDate  string  `json:"received_date"`
	DeliveryDate  string  `json:"delivery_date"`
	Cost          float64 `json:"cost"`
	InvoiceNumber string  `json:"invoice_number"`
}

func (req *customerRequest) toInput(actorID uint) (service.CustomerInput, error) {
	received, err := parseDate(req.ReceivedDate)
	if err != nil {
		return service.CustomerInput{}, fmt.Errorf("invalid received_date: %w", err)
	}
	delivery, err := parseDate(req.DeliveryDate)
	if err != nil {
		return service.CustomerInput{}, fmt.Errorf("invalid delivery_date: %w", err)
	}

	return service.CustomerInput{
		CustomerName:  req.CustomerName,
		PhoneNumber:   req.PhoneNumber,
		DeviceTypeID:  req.DeviceTypeID,
		Warranty:      req.Warranty,
		Model:         req.Model,
		RepairType:    req.RepairType,
		ReceivedDate:  received,
		DeliveryDate:  delivery,
		Cost:          req.Cost,
		InvoiceNumber: req.InvoiceNumber,
		ActorID:       actorID,
	}, nil
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.CustomerName == "" || req.PhoneNumber == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("customer_name and phone_number are required"), "Invalid request")
		return
	}

	input, err := req.toInput(ClaimsFromContext(ctx).AccountID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	customer, err := h.customers.CreateCustomer(ctx, input)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to create customer")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(customer, "Customer created"))
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "customerID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid customer id")
		return
	}

	customer, err := h.customers.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Customer not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to get customer")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(customer, "Customer retrieved"))
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.ListCustomers(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list customers")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(customers, "Customers retrieved"))
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "customerID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid customer id")
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	input, err := req.toInput(ClaimsFromContext(ctx).AccountID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	customer, err := h.customers.UpdateCustomer(ctx, id, input)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Customer not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to update customer")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(customer, "Customer updated"))
}

func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "customerID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid customer id")
		return
	}

	if err := h.customers.DeleteCustomer(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Customer not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to delete customer")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Customer deleted"))
}

func (h *CustomerHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("query parameter q is required"), "Invalid request")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	customers, err := h.customers.SearchCustomers(r.Context(), query, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Search failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(customers, "Search results"))
}

// Export streams every active repair record as an XLSX attachment.
func (h *CustomerHandler) Export(w http.ResponseWriter, r *http.Request) {
	buf, err := h.customers.ExportXLSX(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Export failed")
		return
	}

	filename := fmt.Sprintf("customers-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("Failed to stream export", util.ErrorField(err))
	}
}

func (h *CustomerHandler) ListDeviceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.customers.ListDeviceTypes(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list device types")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(types, "Device types retrieved"))
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
