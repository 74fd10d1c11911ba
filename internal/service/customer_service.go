package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"repairdesk/internal/models"
	"repairdesk/internal/repository/es"
	"repairdesk/internal/repository/postgres"
	"repairdesk/internal/util"
)

// CustomerService manages repair records. Postgres is the source of truth;
// the search index follows it best-effort.
type CustomerService struct {
	customers   postgres.CustomerRepository
	deviceTypes postgres.DeviceTypeRepository
	search      *es.CustomerIndex
	logger      *zap.Logger
}

func NewCustomerService(
	customers postgres.CustomerRepository,
	deviceTypes postgres.DeviceTypeRepository,
	search *es.CustomerIndex,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		customers:   customers,
		deviceTypes: deviceTypes,
		search:      search,
		logger:      logger,
	}
}

// CustomerInput is the payload for creating or updating a repair record.
type CustomerInput struct {
	CustomerName  string
	PhoneNumber   string
	DeviceTypeID  *uint
	Warranty      string
	Model         string
	RepairType    string
	ReceivedDate  *time.Time
	DeliveryDate  *time.Time
	Cost          float64
	InvoiceNumber string
	ActorID       uint
}

func (s *CustomerService) CreateCustomer(ctx context.Context, input CustomerInput) (*models.Customer, error) {
	actorID := input.ActorID
	customer := &models.Customer{
		CustomerName:  util.SanitizeInput(input.CustomerName),
		PhoneNumber:   util.SanitizeInput(input.PhoneNumber),
		DeviceTypeID:  input.DeviceTypeID,
		Warranty:      util.SanitizeInput(input.Warranty),
		Model:         util.SanitizeInput(input.Model),
		RepairType:    util.SanitizeInput(input.RepairType),
		ReceivedDate:  input.ReceivedDate,
		DeliveryDate:  input.DeliveryDate,
		Cost:          input.Cost,
		InvoiceNumber: util.SanitizeInput(input.InvoiceNumber),
		CreatedBy:     &actorID,
		IsActive:      true,
	}
	if err := s.customers.Create(ctx, customer); err != nil {
		return nil, err
	}

	s.indexCustomer(ctx, customer)
	return customer, nil
}

func (s *CustomerService) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	customer, err := s.customers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

func (s *CustomerService) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return s.customers.ListActive(ctx)
}

func (s *CustomerService) UpdateCustomer(ctx context.Context, id uint, input CustomerInput) (*models.Customer, error) {
	customer, err := s.customers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	customer.CustomerName = util.SanitizeInput(input.CustomerName)
	customer.PhoneNumber = util.SanitizeInput(input.PhoneNumber)
	customer.DeviceTypeID = input.DeviceTypeID
	customer.Warranty = util.SanitizeInput(input.Warranty)
	customer.Model = util.SanitizeInput(input.Model)
	customer.RepairType = util.SanitizeInput(input.RepairType)
	customer.ReceivedDate = input.ReceivedDate
	customer.DeliveryDate = input.DeliveryDate
	customer.Cost = input.Cost
	customer.InvoiceNumber = util.SanitizeInput(input.InvoiceNumber)
	actorID := input.ActorID
	customer.ModifiedBy = &actorID

	if err := s.customers.Update(ctx, customer); err != nil {
		return nil, err
	}

	s.indexCustomer(ctx, customer)
	return customer, nil
}

// DeleteCustomer soft-deletes the record and drops it from the search index.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id uint) error {
	if err := s.customers.Deactivate(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if s.search != nil {
		if err := s.search.Remove(ctx, id); err != nil {
			s.logger.Warn("Failed to remove customer from search index",
				util.Uint("customer_id", id),
				util.ErrorField(err))
		}
	}
	return nil
}

// SearchCustomers resolves a free-text query through the search index and
// hydrates the hits from Postgres, keeping relevance order. Rows deleted
// since their last indexing are skipped.
func (s *CustomerService) SearchCustomers(ctx context.Context, query string, limit int) ([]*models.Customer, error) {
	if s.search == nil {
		return nil, fmt.Errorf("search is not configured")
	}

	ids, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	customers := make([]*models.Customer, 0, len(ids))
	for _, id := range ids {
		customer, err := s.customers.GetByID(ctx, id)
		if errors.Is(err, postgres.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

// ListDeviceTypes returns the active device-type catalog.
func (s *CustomerService) ListDeviceTypes(ctx context.Context) ([]*models.DeviceType, error) {
	return s.deviceTypes.ListActive(ctx)
}

var exportHeaders = []string{
	"Invoice Number", "Customer Name", "Phone Number", "Device Type",
	"Model", "Repair Type", "Warranty", "Received Date", "Delivery Date", "Cost",
}

// ExportXLSX renders every active repair record into a spreadsheet.
func (s *CustomerService) ExportXLSX(ctx context.Context) (*bytes.Buffer, error) {
	customers, err := s.customers.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	const sheet = "Customers"
	f.SetSheetName("Sheet1", sheet)

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, customer := range customers {
		deviceType := ""
		if customer.DeviceType != nil {
			deviceType = customer.DeviceType.Name
		}
		row := []interface{}{
			customer.InvoiceNumber,
			customer.CustomerName,
			customer.PhoneNumber,
			deviceType,
			customer.Model,
			customer.RepairType,
			customer.Warranty,
			formatDate(customer.ReceivedDate),
			formatDate(customer.DeliveryDate),
			customer.Cost,
		}
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render spreadsheet: %w", err)
	}
	return buf, nil
}

// indexCustomer pushes the row into the search index; a failure only logs.
func (s *CustomerService) indexCustomer(ctx context.Context, customer *models.Customer) {
	if s.search == nil {
		return
	}
	if err := s.search.Index(ctx, customer); err != nil {
		s.logger.Warn("Failed to index customer",
			util.Uint("customer_id", customer.ID),
			util.ErrorField(err))
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
