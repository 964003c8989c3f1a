package semantic

import (
	"context"
	"fmt"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/google/uuid"
)

// QdrantStore implements Store on a Qdrant collection over gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// NewQdrant connects to Qdrant at the given gRPC address.
func NewQdrant(addr, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error { return s.conn.Close() }

// Init creates the collection with a cosine metric if it does not exist.
// An existing collection with a different vector width fails with ErrDims.
func (s *QdrantStore) Init(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: invalid dims %d", dims)
	}

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != s.collection {
			continue
		}
		info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
		if err != nil {
			return fmt.Errorf("semantic: get collection %s: %w", s.collection, err)
		}
		existing := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existing != dims {
			return fmt.Errorf("%w: collection %s has %d, requested %d", ErrDims, s.collection, existing, dims)
		}
		s.dims = dims
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", s.collection, err)
	}
	s.dims = dims
	return nil
}

// InsertMany upserts chunks as points. Point ids are derived
// deterministically from entity id and sentence so a re-run of the same
// dump does not duplicate rows.
func (s *QdrantStore) InsertMany(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(s.dims, chunks); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.EntityID+"\x00"+c.Text)).String()
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: c.Embedding}},
			},
			Payload: map[string]*pb.Value{
				"qid":  {Kind: &pb.Value_StringValue{StringValue: c.EntityID}},
				"text": {Kind: &pb.Value_StringValue{StringValue: c.Text}},
			},
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(chunks), err)
	}
	return nil
}

// ANN performs k-NN search. Qdrant reports cosine similarity; it is
// converted to cosine distance so both engines rank identically.
func (s *QdrantStore) ANN(ctx context.Context, embedding []float32, k int, threshold float32) ([]Hit, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hit := Hit{Distance: 1 - r.GetScore()}
		for key, val := range r.GetPayload() {
			switch key {
			case "qid":
				hit.EntityID = val.GetStringValue()
			case "text":
				hit.Text = val.GetStringValue()
			}
		}
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return belowThreshold(hits, threshold), nil
}
