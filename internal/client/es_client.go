package client

import (
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"repairdesk/internal/config"
	"repairdesk/internal/util"
)

// ESClient wraps the Elasticsearch client backing customer search.
type ESClient struct {
	Client *elasticsearch.Client
	config *config.ElasticsearchConfig
	logger *zap.Logger
}

func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	esConfig := cfg.Elasticsearch

	elasticConfig := elasticsearch.Config{
		Addresses: []string{esConfig.URL},
		Username:  esConfig.Username,
		Password:  esConfig.Password,
	}

	client, err := elasticsearch.NewClient(elasticConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	esClient := &ESClient{
		Client: client,
		config: &esConfig,
		logger: logger,
	}

	if err := esClient.HealthCheck(); err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}

	util.Info("Elasticsearch client initialized",
		zap.String("url", esConfig.URL),
		zap.String("customer_index", esConfig.CustomerIndex))

	return esClient, nil
}

// HealthCheck pings the cluster.
func (e *ESClient) HealthCheck() error {
	res, err := e.Client.Ping()
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

// CustomerIndex returns the configured index name.
func (e *ESClient) CustomerIndex() string {
	return strings.ToLower(e.config.CustomerIndex)
}

// Close is a no-op; the underlying transport has no explicit close.
func (e *ESClient) Close() {}
