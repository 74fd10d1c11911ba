package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
	"repairdesk/internal/util"
)

// CustomerIndex maintains the search index over repair records.
type CustomerIndex struct {
	client *client.ESClient
	logger *zap.Logger
}

func NewCustomerIndex(esClient *client.ESClient, logger *zap.Logger) *CustomerIndex {
	return &CustomerIndex{client: esClient, logger: logger}
}

type customerDoc struct {
	ID            uint    `json:"id"`
	CustomerName  string  `json:"customer_name"`
	PhoneNumber   string  `json:"phone_number"`
	Model         string  `json:"model"`
	RepairType    string  `json:"repair_type"`
	InvoiceNumber string  `json:"invoice_number"`
	Cost          float64 `json:"cost"`
	IsActive      bool    `json:"is_active"`
}

// Index upserts one customer document. Callers treat failures as best-effort.
func (i *CustomerIndex) Index(ctx context.Context, customer *models.Customer) error {
	doc := customerDoc{
		ID:            customer.ID,
		CustomerName:  customer.CustomerName,
		PhoneNumber:   customer.PhoneNumber,
		Model:         customer.Model,
		RepairType:    customer.RepairType,
		InvoiceNumber: customer.InvoiceNumber,
		Cost:          customer.Cost,
		IsActive:      customer.IsActive,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal customer doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.client.CustomerIndex(),
		DocumentID: strconv.FormatUint(uint64(customer.ID), 10),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, i.client.Client)
	if err != nil {
		return fmt.Errorf("failed to index customer %d: %w", customer.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("indexing customer %d returned %s", customer.ID, res.Status())
	}

	util.Debug("Customer indexed", zap.Uint("customer_id", customer.ID))
	return nil
}

// Remove deletes a customer document, ignoring 404s.
func (i *CustomerIndex) Remove(ctx context.Context, customerID uint) error {
	req := esapi.DeleteRequest{
		Index:      i.client.CustomerIndex(),
		DocumentID: strconv.FormatUint(uint64(customerID), 10),
	}

	res, err := req.Do(ctx, i.client.Client)
	if err != nil {
		return fmt.Errorf("failed to remove customer %d from index: %w", customerID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("removing customer %d returned %s", customerID, res.Status())
	}
	return nil
}

// Search runs a multi-field match over active customers and returns matching ids.
func (i *CustomerIndex) Search(ctx context.Context, query string, limit int) ([]uint, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	searchBody := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"customer_name", "phone_number", "model", "repair_type", "invoice_number"},
						"type":   "best_fields",
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"is_active": true},
				},
			},
		},
	}

	body, err := json.Marshal(searchBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := i.client.Client.Search(
		i.client.Client.Search.WithContext(ctx),
		i.client.Client.Search.WithIndex(i.client.CustomerIndex()),
		i.client.Client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("customer search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("customer search returned %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source customerDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]uint, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.Source.ID)
	}
	return ids, nil
}
