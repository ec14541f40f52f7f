package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

// collectionMapping is applied to the document type of collecting watchers.
var collectionMapping = map[string]any{
	"properties": map[string]any{
		"content": map[string]any{
			"type":    "object",
			"dynamic": true,
		},
		"timestamp": map[string]any{
			"type": "date",
		},
	},
}

type elasticStore struct {
	client *elasticsearch.Client
}

func openElastic(ctx context.Context, address string) (Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create elasticsearch client: %w", err)
	}

	s := &elasticStore{client: client}
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage: connect elasticsearch: %w", err)
	}
	return s, nil
}

func (s *elasticStore) Create(ctx context.Context, index, docType string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	req := esapi.CreateRequest{
		Index:        index,
		DocumentType: docType,
		DocumentID:   newDocumentID(),
		Body:         bytes.NewReader(payload),
	}
	return s.do(ctx, "create", req)
}

func (s *elasticStore) Bulk(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(map[string]BulkAction{"index": item.Action}); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(item.Body); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}

	res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("bulk", res)
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("bulk: decode response: %w", err)
	}
	if !result.Errors {
		return nil
	}
	for i, item := range result.Items {
		for _, outcome := range item {
			if outcome.Status >= http.StatusBadRequest {
				return fmt.Errorf("bulk: item %d: %s: %s", i, outcome.Error.Type, outcome.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk: request reported errors")
}

func (s *elasticStore) EnsureCollection(ctx context.Context, index, docType string) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		if err := s.do(ctx, "create index", esapi.IndicesCreateRequest{Index: index}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("check index %s: status %d", index, res.StatusCode)
	}

	payload, err := json.Marshal(collectionMapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	includeTypeName := true
	return s.do(ctx, "put mapping", esapi.IndicesPutMappingRequest{
		Index:           []string{index},
		DocumentType:    docType,
		Body:            bytes.NewReader(payload),
		IncludeTypeName: &includeTypeName,
	})
}

func (s *elasticStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", esapi.PingRequest{})
}

func (s *elasticStore) Close() error {
	return nil
}

func (s *elasticStore) do(ctx context.Context, op string, req esapi.Request) error {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(op, res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s: status %d: %s", op, res.StatusCode, bytes.TrimSpace(body))
}
