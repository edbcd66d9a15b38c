package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/lifecycle"
)

// Index names, before the configured prefix
const (
	StudiesIndex          = "studies"
	PatientsIndex         = "patients"
	ProtocolVersionsIndex = "protocol-versions"
	VisitsIndex           = "visits"
	EventsIndex           = "events"
)

// NewElasticsearchClient creates a new Elasticsearch client
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	elasticCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}

	client, err := elasticsearch.NewClient(elasticCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	// Check the connection
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("error connecting to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	log.Info().Msg("Successfully connected to Elasticsearch")
	return client, nil
}

// EnsureIndices ensures that all required indices exist
func EnsureIndices(client *elasticsearch.Client, cfg config.ElasticsearchConfig) error {
	indices := []string{
		StudiesIndex,
		PatientsIndex,
		ProtocolVersionsIndex,
		VisitsIndex,
		EventsIndex,
	}

	for _, index := range indices {
		formattedIndex := cfg.FormatIndex(index)

		exists, err := indexExists(client, formattedIndex)
		if err != nil {
			return err
		}

		if !exists {
			log.Info().Msgf("Creating index %s", formattedIndex)
			if err := createIndex(client, formattedIndex); err != nil {
				return err
			}
		}
	}

	return nil
}

func indexExists(client *elasticsearch.Client, index string) (bool, error) {
	res, err := client.Indices.Exists([]string{index})
	if err != nil {
		return false, fmt.Errorf("error checking if index %s exists: %w", index, err)
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func createIndex(client *elasticsearch.Client, index string) error {
	res, err := client.Indices.Create(index)
	if err != nil {
		return fmt.Errorf("error creating index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", index, res.String())
	}

	return nil
}

// SearchIndexer mirrors read rows and events into Elasticsearch. A nil
// *SearchIndexer indexes nothing.
type SearchIndexer struct {
	client *elasticsearch.Client
	cfg    config.ElasticsearchConfig
}

// NewSearchIndexer creates a new indexer
func NewSearchIndexer(client *elasticsearch.Client, cfg config.ElasticsearchConfig) *SearchIndexer {
	return &SearchIndexer{client: client, cfg: cfg}
}

func entityIndex(entity lifecycle.EntityType) (string, error) {
	switch entity {
	case lifecycle.EntityStudy:
		return StudiesIndex, nil
	case lifecycle.EntityPatient:
		return PatientsIndex, nil
	case lifecycle.EntityProtocolVersion:
		return ProtocolVersionsIndex, nil
	case lifecycle.EntityVisit:
		return VisitsIndex, nil
	default:
		return "", fmt.Errorf("no search index for entity %q", entity)
	}
}

// IndexRow stores the current row of an aggregate under its aggregate id
func (s *SearchIndexer) IndexRow(ctx context.Context, entity lifecycle.EntityType, documentID string, row interface{}) error {
	if s == nil || s.client == nil {
		return nil
	}
	index, err := entityIndex(entity)
	if err != nil {
		return err
	}
	return s.index(ctx, s.cfg.FormatIndex(index), documentID, row)
}

// IndexEvent stores the event itself
func (s *SearchIndexer) IndexEvent(ctx context.Context, event domain.Event) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.index(ctx, s.cfg.FormatIndex(EventsIndex), event.ID, event)
}

func (s *SearchIndexer) index(ctx context.Context, index, documentID string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document for %s: %w", index, err)
	}

	res, err := s.client.Index(
		index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(documentID),
		s.client.Index.WithRefresh("true"),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document in %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document in %s: %s", index, res.String())
	}
	return nil
}
