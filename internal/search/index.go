// Package search keeps an Elasticsearch index of task titles. The index only
// selects candidate ids; the store stays the source of truth.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"gigflow/internal/models"
)

const (
	DefaultIndex = "gigflow-tasks"
	maxResults   = 500
)

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

type TaskIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewTaskIndex(client *elasticsearch.Client, index string) *TaskIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &TaskIndex{client: client, index: index}
}

type taskDocument struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// EnsureIndex creates the index with its title mapping when it is missing.
func (x *TaskIndex) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index exists check: %w", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id": map[string]interface{}{"type": "keyword"},
				"title": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 512},
					},
				},
				"status": map[string]interface{}{"type": "keyword"},
			},
		},
	}
	body, _ := json.Marshal(mapping)

	res, err := esapi.IndicesCreateRequest{
		Index: x.index,
		Body:  strings.NewReader(string(body)),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.index, err)
	}
	defer res.Body.Close()

	// A concurrent creator wins with 400 resource_already_exists_exception.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("create index %s failed: %s", x.index, res.String())
	}
	return nil
}

// IndexTask upserts the task's title document.
func (x *TaskIndex) IndexTask(ctx context.Context, task *models.Task) error {
	body, err := json.Marshal(taskDocument{ID: task.ID, Title: task.Title, Status: string(task.Status)})
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: task.ID,
		Body:       strings.NewReader(string(body)),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index task %s: %w", task.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index task %s failed: %s", task.ID, res.String())
	}
	return nil
}

// SearchTaskIDs returns ids of open tasks whose title matches query, either
// as analysed terms or as a case-insensitive substring.
func (x *TaskIndex) SearchTaskIDs(ctx context.Context, query string) ([]string, error) {
	body, _ := json.Marshal(buildTitleQuery(query, maxResults))

	res, err := esapi.SearchRequest{
		Index:          []string{x.index},
		Body:           strings.NewReader(string(body)),
		SourceIncludes: []string{"id"},
	}.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID     string      `json:"_id"`
				Source taskDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id := hit.Source.ID
		if id == "" {
			id = hit.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildTitleQuery(query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"title": map[string]interface{}{"query": query, "operator": "and"},
						},
					},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"title.keyword": map[string]interface{}{
								"value":            "*" + wildcardEscaper.Replace(query) + "*",
								"case_insensitive": true,
							},
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"status": string(models.TaskOpen)},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}
}
