package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ppiankov/factrag/internal/model"
)

const factIDProperty = "factId"

// Weaviate is an Index backed by a Weaviate class with client-supplied vectors
type Weaviate struct {
	client *weaviate.Client
	class  string
	dim    int
	count  atomic.Int64
	logger *slog.Logger
}

// NewWeaviate connects to Weaviate and makes sure the class exists.
// When cfg.Rebuild is set the class is dropped and recreated first.
func NewWeaviate(ctx context.Context, cfg model.IndexConfig, dim int, logger *slog.Logger) (*Weaviate, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	host, scheme := splitHost(cfg.Host, cfg.Scheme)
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create weaviate client", goerr.V("host", host))
	}

	class := cfg.Class
	if class == "" {
		class = "Fact"
	}

	w := &Weaviate{
		client: client,
		class:  class,
		dim:    dim,
		logger: logger.With("component", "index", "class", class),
	}
	if err := w.ensureClass(ctx, cfg.Rebuild); err != nil {
		return nil, err
	}
	w.refreshCount(ctx)
	return w, nil
}

// Class returns the Weaviate class name
func (w *Weaviate) Class() string { return w.class }

func (w *Weaviate) ensureClass(ctx context.Context, rebuild bool) error {
	_, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx)
	exists := err == nil

	if exists && rebuild {
		w.logger.Info("dropping weaviate class for rebuild")
		if err := w.client.Schema().ClassDeleter().WithClassName(w.class).Do(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete weaviate class", goerr.V("class", w.class))
		}
		exists = false
	}
	if exists {
		return nil
	}

	if err := w.client.Schema().ClassCreator().WithClass(factClass(w.class)).Do(ctx); err != nil {
		return goerr.Wrap(err, "failed to create weaviate class", goerr.V("class", w.class))
	}
	w.logger.Info("created weaviate class")
	return nil
}

func factClass(name string) *models.Class {
	text := []string{"text"}
	return &models.Class{
		Class:       name,
		Description: "Verified facts with precomputed embeddings",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: factIDProperty, DataType: text},
			{Name: "claim", DataType: text},
			{Name: "category", DataType: text},
			{Name: "source", DataType: text},
		},
	}
}

// Upsert writes a single vector
func (w *Weaviate) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	return w.UpsertBatch(ctx, []Item{{ID: id, Vector: vector, Metadata: metadata}})
}

// UpsertBatch writes all items in one batch request. Object IDs are derived
// from fact IDs so repeated loads overwrite instead of duplicating.
func (w *Weaviate) UpsertBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(items))
	for i, it := range items {
		if len(it.Vector) != w.dim {
			return fmt.Errorf("%w: fact %s has %d, want %d", ErrDimension, it.ID, len(it.Vector), w.dim)
		}
		props := map[string]interface{}{factIDProperty: it.ID}
		for _, k := range []string{"claim", "category", "source"} {
			if v, ok := it.Metadata[k]; ok {
				props[k] = v
			}
		}
		objects[i] = &models.Object{
			Class:      w.class,
			ID:         ObjectID(it.ID),
			Vector:     it.Vector,
			Properties: props,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return goerr.Wrap(err, "weaviate batch import failed", goerr.V("objects", len(objects)))
	}

	var failed []string
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			failed = append(failed, e.Message)
		}
	}
	if len(failed) > 0 {
		return goerr.New("weaviate batch import had item errors",
			goerr.V("errors", len(failed)), goerr.V("first", failed[0]))
	}

	w.refreshCount(ctx)
	return nil
}

// Query runs a nearVector search and returns hits in Weaviate's order
func (w *Weaviate) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != w.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vector), w.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	near := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	fields := []graphql.Field{
		{Name: factIDProperty},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(near).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "weaviate nearVector query failed", goerr.V("class", w.class))
	}
	if len(result.Errors) > 0 {
		return nil, goerr.New("weaviate query returned errors",
			goerr.V("class", w.class), goerr.V("error", result.Errors[0].Message))
	}

	return parseHits(result.Data, w.class), nil
}

// Len returns the object count last observed in the class
func (w *Weaviate) Len() int {
	return int(w.count.Load())
}

func (w *Weaviate) refreshCount(ctx context.Context) {
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil || len(result.Errors) > 0 {
		w.logger.Warn("failed to count weaviate objects", "error", err)
		return
	}
	w.count.Store(int64(parseCount(result.Data, w.class)))
}

func parseHits(data map[string]models.JSONObject, class string) []Hit {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := obj[factIDProperty].(string)
		if id == "" {
			continue
		}
		hit := Hit{ID: id, Distance: 1}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

func parseCount(data map[string]models.JSONObject, class string) int {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	rows, ok := agg[class].([]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	n, _ := meta["count"].(float64)
	return int(n)
}

var factNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://factrag/fact"))

// ObjectID maps a fact ID to its stable Weaviate object UUID
func ObjectID(factID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(factNamespace, []byte(factID)).String())
}

func splitHost(host, scheme string) (string, string) {
	switch {
	case strings.HasPrefix(host, "https://"):
		return strings.TrimPrefix(host, "https://"), "https"
	case strings.HasPrefix(host, "http://"):
		return strings.TrimPrefix(host, "http://"), "http"
	}
	if scheme == "" {
		scheme = "http"
	}
	return host, scheme
}
