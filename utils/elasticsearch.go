package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"consultation-desk/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const ConsultationIndexName = "consultations"

// searchFields are matched by the cross-month search, the same fields the
// dashboard filter looks at plus the consultant's name.
var searchFields = []string{"name", "furigana", "content", "consultantName"}

type ConsultationIndex interface {
	IndexConsultation(ctx context.Context, c *models.Consultation) error
	SearchConsultations(ctx context.Context, text string, size int) ([]models.Consultation, error)
	Close() error
}

type elasticsearchClient struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchClient(url string) (ConsultationIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch ping error: %s", res.Status())
	}

	return &elasticsearchClient{client: es, index: ConsultationIndexName}, nil
}

func (e *elasticsearchClient) Close() error {
	return nil
}

func (e *elasticsearchClient) IndexConsultation(ctx context.Context, c *models.Consultation) error {
	if c.ID == "" {
		return fmt.Errorf("cannot index unsaved consultation")
	}

	jsonDoc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: c.ID,
		Body:       bytes.NewReader(jsonDoc),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

func (e *elasticsearchClient) SearchConsultations(ctx context.Context, text string, size int) ([]models.Consultation, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchQuery(text, size)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return r.consultations(), nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Consultation `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r searchResponse) consultations() []models.Consultation {
	out := make([]models.Consultation, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out
}

// BuildSearchQuery returns a match-all query for empty text, otherwise a
// multi_match across the searchable fields, newest reception date first.
func BuildSearchQuery(text string, size int) map[string]interface{} {
	if size <= 0 {
		size = 50
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if text != "" {
		query = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": searchFields,
				"type":   "phrase_prefix",
			},
		}
	}

	return map[string]interface{}{
		"size":  size,
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"receptionDate.keyword": map[string]interface{}{"order": "desc", "unmapped_type": "keyword"}},
		},
	}
}
