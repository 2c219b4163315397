package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "note_chunks"

const (
	payloadChunkID     = "chunk_id"
	payloadEmbeddingID = "embedding_id"
)

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimensions int
	// Reset drops and recreates the collection on open. Only the process
	// that owns the index sets it; others attach to the existing collection.
	Reset bool
}

// Qdrant is an approximate (HNSW) index backed by a Qdrant collection shared
// by every process using the same content store. Point ids are random UUIDs
// so concurrent writers never overwrite each other; the sequential embedding
// id travels in the payload.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimensions int

	mu     sync.Mutex // serializes id assignment
	nextID int64
}

var _ Index = (*Qdrant)(nil)

// NewQdrant connects to Qdrant, waits for it to become healthy and then either
// resets the collection (cfg.Reset) or creates it when missing.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		nextID:     1,
	}

	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnreachable, err)
	}

	if cfg.Reset {
		err = q.resetCollection(ctx)
	} else {
		err = q.ensureCollection(ctx)
	}
	if err != nil {
		client.Close()
		return nil, err
	}

	// Continue the sequence after points other processes already wrote.
	size, err := q.Size(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	q.nextID = int64(size) + 1

	return q, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry retries Health with exponential backoff for up to 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (q *Qdrant) collectionExists(ctx context.Context) (bool, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

// resetCollection drops the collection if present and recreates it.
func (q *Qdrant) resetCollection(ctx context.Context) error {
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}
	return q.createCollection(ctx)
}

// ensureCollection creates the collection unless it already exists.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.collectionExists(ctx)
	if err != nil || exists {
		return err
	}
	return q.createCollection(ctx)
}

// createCollection creates the collection with cosine distance and a keyword
// index on chunk_id.
func (q *Qdrant) createCollection(ctx context.Context) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Has() filters on chunk_id; without the index it scans every point.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      payloadChunkID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field chunk_id: %w", err)
	}
	return nil
}

func (q *Qdrant) Add(ctx context.Context, chunkID string, vector []float32) (int64, error) {
	if err := checkDimensions(q.dimensions, vector, "embedding"); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextID
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(uuid.NewString()),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadChunkID:     chunkID,
			payloadEmbeddingID: id,
		}),
	}

	err := backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert embedding for %s: %w", chunkID, err)
	}

	q.nextID++
	return id, nil
}

func (q *Qdrant) Has(ctx context.Context, chunkID string) (bool, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadChunkID, chunkID)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to count embeddings for %s: %w", chunkID, err)
	}
	return count > 0, nil
}

func (q *Qdrant) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if err := checkDimensions(q.dimensions, query, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		// Qdrant reports cosine similarity as the score.
		sim := float64(result.Score)
		matches = append(matches, Match{
			ChunkID:     result.Payload[payloadChunkID].GetStringValue(),
			EmbeddingID: result.Payload[payloadEmbeddingID].GetIntegerValue(),
			Similarity:  sim,
			Distance:    1 - sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].EmbeddingID < matches[j].EmbeddingID
	})
	return matches, nil
}

func (q *Qdrant) Size(ctx context.Context) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return int(count), nil
}

func (q *Qdrant) Dimensions() int {
	return q.dimensions
}

// Close closes the Qdrant client connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
