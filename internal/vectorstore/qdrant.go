// Package vectorstore wraps the Qdrant gRPC API used by screenshot recall.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

// DefaultCollection holds screenshot descriptions.
const DefaultCollection = "screen_recall"

// Point is one stored vector with its payload. Payload values may be
// string, bool, int, int64, float64 or time.Time.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Query narrows a search.
type Query struct {
	Limit uint64
	// Match keeps only points whose payload field equals the keyword.
	Match map[string]string
	// MinScore drops weaker hits when positive.
	MinScore float32
}

// SearchResult holds a single vector search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert inserts or updates a single point.
func (c *Client) Upsert(ctx context.Context, collection string, p Point) error {
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: toPayload(p.Payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

func toPayload(in map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
		case time.Time:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val.UTC().Format(time.RFC3339)}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
		}
	}
	return out
}

func fromPayload(in map[string]*pb.Value) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = val.StringValue
		case *pb.Value_BoolValue:
			out[k] = fmt.Sprint(val.BoolValue)
		case *pb.Value_IntegerValue:
			out[k] = fmt.Sprint(val.IntegerValue)
		case *pb.Value_DoubleValue:
			out[k] = fmt.Sprint(val.DoubleValue)
		}
	}
	return out
}

func toFilter(match map[string]string) *pb.Filter {
	if len(match) == 0 {
		return nil
	}
	f := &pb.Filter{}
	for k, v := range match {
		f.Must = append(f.Must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   k,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
			}},
		})
	}
	return f
}

// Search performs a nearest-neighbor search.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, q Query) ([]*SearchResult, error) {
	if q.Limit == 0 {
		q.Limit = 5
	}
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          q.Limit,
		Filter:         toFilter(q.Match),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if q.MinScore > 0 {
		threshold := q.MinScore
		req.ScoreThreshold = &threshold
	}
	resp, err := c.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	results := make([]*SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, &SearchResult{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: fromPayload(r.Payload),
		})
	}
	return results, nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
