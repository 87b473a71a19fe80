package store

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/xhad/pai/internal/models"
)

const payloadContent = "content"

// QdrantStore keeps chunks as points of a Qdrant collection. The collection is
// created on the first Add, sized to the vectors it receives.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	name        string
	logger      *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewQdrant dials the Qdrant gRPC endpoint at addr (host:port).
func NewQdrant(addr, collection string, logger *zap.Logger) (*QdrantStore, error) {
	if collection == "" {
		collection = "personal_assistant"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		name:        collection,
		logger:      logger,
	}, nil
}

func (s *QdrantStore) Name() string { return BackendQdrant }

// exists reports whether the collection is present, remembering a positive answer.
func (s *QdrantStore) exists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return true, nil
	}
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.name})
	if err == nil {
		s.ready = true
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, fmt.Errorf("get collection %s: %w", s.name, err)
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimension uint64) error {
	ok, err := s.exists(ctx)
	if err != nil || ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create collection %s: %w", s.name, err)
	}
	s.ready = true
	s.logger.Info("created collection", zap.String("collection", s.name), zap.Uint64("dimension", dimension))
	return nil
}

func (s *QdrantStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) ([]string, error) {
	if err := checkLengths(chunks, vectors); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}
	if err := s.ensureCollection(ctx, uint64(len(vectors[0]))); err != nil {
		return nil, err
	}

	ids := chunkIDs(chunks)
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: ids[i]}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}}},
			Payload: chunkPayload(c),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", s.name, err)
	}
	return ids, nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, n int, documentID string) ([]models.SearchHit, error) {
	if n <= 0 {
		return nil, nil
	}
	if ok, err := s.exists(ctx); err != nil || !ok {
		return nil, err
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.name,
		Vector:         vector,
		Limit:          uint64(n),
		Filter:         documentFilter(documentID),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.name, err)
	}

	hits := make([]models.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, models.SearchHit{
			Chunk: chunkFromPayload(r.Id.GetUuid(), r.Payload),
			Score: r.Score,
		})
	}
	return hits, nil
}

func (s *QdrantStore) count(ctx context.Context, filter *pb.Filter) (int, error) {
	if ok, err := s.exists(ctx); err != nil || !ok {
		return 0, err
	}
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.name,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	filter := documentFilter(documentID)
	n, err := s.count(ctx, filter)
	if err != nil || n == 0 {
		return false, err
	}

	wait := true
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.name,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return true, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	return s.count(ctx, nil)
}

// Reset drops the collection; the next Add recreates it.
func (s *QdrantStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.name})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete collection %s: %w", s.name, err)
	}
	s.ready = false
	s.logger.Warn("vector store reset", zap.String("collection", s.name))
	return nil
}

// Close tears down the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func documentFilter(documentID string) *pb.Filter {
	if documentID == "" {
		return nil
	}
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   models.MetaDocumentID,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: documentID}},
				},
			},
		}},
	}
}

func chunkPayload(c models.Chunk) map[string]*pb.Value {
	meta := chunkMetadata(c)
	payload := make(map[string]*pb.Value, len(meta)+1)
	for k, v := range meta {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	payload[payloadContent] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: sanitizeUTF8(c.Content)}}
	return payload
}

func chunkFromPayload(id string, payload map[string]*pb.Value) models.Chunk {
	meta := make(map[string]string, len(payload))
	var content string
	for k, v := range payload {
		sv, ok := v.GetKind().(*pb.Value_StringValue)
		if !ok {
			continue
		}
		if k == payloadContent {
			content = sv.StringValue
			continue
		}
		meta[k] = sv.StringValue
	}
	return chunkFromMetadata(id, content, meta)
}
