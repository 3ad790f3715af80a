// Package semantic owns the vector index: a Qdrant collection of chunk
// embeddings, plus an in-process cosine search used when the index is
// unavailable.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/groundwork/engine/domain"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations. The collection
// uses cosine distance and a fixed dimensionality.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr, collection string, dims int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// NewWithClients builds a VectorStore on pre-made clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, dims int) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection, dims: dims}
}

// Close closes the underlying gRPC connection, if any.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Dimensions returns the collection's vector length.
func (v *VectorStore) Dimensions() int { return v.dims }

// CollectionExists reports whether the collection is present.
func (v *VectorStore) CollectionExists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, domain.External("qdrant", fmt.Errorf("semantic: list collections: %w", err))
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	ok, err := v.CollectionExists(ctx)
	if err != nil || ok {
		return err
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return domain.External("qdrant", fmt.Errorf("semantic: create collection %s: %w", v.collection, err))
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: v.collection})
	if err != nil {
		return domain.External("qdrant", fmt.Errorf("semantic: delete collection %s: %w", v.collection, err))
	}
	return nil
}

// Upsert writes points, replacing any existing point with the same ID.
// Every vector is checked against the collection dimensionality before the
// request is sent. Within one call the last point for an ID wins.
func (v *VectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pos := make(map[string]int, len(points))
	out := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		if err := domain.ValidateVector("vector", p.Vector, v.dims); err != nil {
			return fmt.Errorf("semantic: upsert %s: %w", p.ID, err)
		}
		ps := &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: toPayload(p.Payload),
		}
		if i, ok := pos[p.ID]; ok {
			out[i] = ps
			continue
		}
		pos[p.ID] = len(out)
		out = append(out, ps)
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         out,
	})
	if err != nil {
		return domain.External("qdrant", fmt.Errorf("semantic: upsert %d points: %w", len(out), err))
	}
	return nil
}

// DeleteByDocument removes all points of a document. Used for re-ingestion.
func (v *VectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch(KeyDocumentID, documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return domain.External("qdrant", fmt.Errorf("semantic: delete by document %s: %w", documentID, err))
	}
	return nil
}

// Search returns up to limit nearest points, best first.
func (v *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if err := domain.ValidateVector("query", vector, v.dims); err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	if limit <= 0 {
		return nil, nil
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, domain.External("qdrant", fmt.Errorf("semantic: search: %w", err))
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{ID: r.GetId().GetUuid(), Score: r.GetScore()}
		p := r.GetPayload()
		sr.DocumentID = p[KeyDocumentID].GetStringValue()
		sr.SourcePath = p[KeySourcePath].GetStringValue()
		sr.Title = p[KeyTitle].GetStringValue()
		sr.ChunkIndex = int(p[KeyChunkIndex].GetIntegerValue())
		sr.Content = p[KeyContent].GetStringValue()
		results[i] = sr
	}
	return results, nil
}

// Get fetches one point's payload. It returns nil, nil when the point is
// absent. The vector is not loaded.
func (v *VectorStore) Get(ctx context.Context, id string) (*Point, error) {
	resp, err := v.points.Get(ctx, &pb.GetPoints{
		CollectionName: v.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, domain.External("qdrant", fmt.Errorf("semantic: get %s: %w", id, err))
	}
	for _, r := range resp.GetResult() {
		if r.GetId().GetUuid() != id {
			continue
		}
		return &Point{ID: id, Payload: fromPayload(r.GetPayload())}, nil
	}
	return nil, nil
}

func toPayload(in map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(in))
	for k, val := range in {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fromPayload(in map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, val := range in {
		switch kind := val.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
