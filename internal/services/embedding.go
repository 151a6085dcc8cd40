package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// bearerAuth implements credentials.PerRPCCredentials for Qdrant
type bearerAuth struct {
	token string
}

func (b *bearerAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b *bearerAuth) RequireTransportSecurity() bool { return false }

// embeddingDimension matches text-embedding-3-small
const embeddingDimension = 1536

// EmbeddingService indexes feed products into Qdrant so generated content
// can be grounded on similar catalog entries.
type EmbeddingService struct {
	openaiClient *openai.Client
	collections  qdrant.CollectionsClient
	points       qdrant.PointsClient
	conn         *grpc.ClientConn
}

// NewEmbeddingService connects to Qdrant and prepares the OpenAI client
// used for embedding generation.
func NewEmbeddingService(openaiAPIKey, qdrantURL, qdrantPassword string) (*EmbeddingService, error) {
	var dialOpts []grpc.DialOption
	if qdrantPassword != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(&bearerAuth{token: qdrantPassword}))
	}
	dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))

	conn, err := grpc.Dial(qdrantURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &EmbeddingService{
		openaiClient: openai.NewClient(openaiAPIKey),
		collections:  qdrant.NewCollectionsClient(conn),
		points:       qdrant.NewPointsClient(conn),
		conn:         conn,
	}, nil
}

// Close releases the Qdrant connection
func (s *EmbeddingService) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func collectionName(feedID uuid.UUID) string {
	return "feed_products_" + feedID.String()
}

// ContentHash identifies the indexed text so unchanged products skip
// re-embedding.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GenerateEmbedding embeds one text with text-embedding-3-small
func (s *EmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.openaiClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.SmallEmbedding3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return resp.Data[0].Embedding, nil
}

// IndexProduct embeds a feed product's search text and upserts it into
// the feed's collection. Returns the content hash for bookkeeping, or ""
// when the product was already indexed with identical text.
func (s *EmbeddingService) IndexProduct(ctx context.Context, product *models.FeedProduct) (string, error) {
	text := product.SearchText()
	hash := ContentHash(text)
	if product.EmbeddingHash == hash {
		return "", nil
	}

	name := collectionName(product.FeedID)
	if err := s.ensureCollection(ctx, name); err != nil {
		return "", err
	}

	embedding, err := s.GenerateEmbedding(ctx, text)
	if err != nil {
		return "", err
	}

	payload := map[string]*qdrant.Value{
		"product_id": {Kind: &qdrant.Value_StringValue{StringValue: product.ID.String()}},
		"sku":        {Kind: &qdrant.Value_StringValue{StringValue: product.SKU}},
		"title":      {Kind: &qdrant.Value_StringValue{StringValue: product.Title}},
	}

	_, err = s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: product.ID.String()},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: embedding},
				},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store embedding: %w", err)
	}

	log.Debug().
		Str("product_id", product.ID.String()).
		Str("sku", product.SKU).
		Msg("product embedding indexed")
	return hash, nil
}

// DeleteProduct drops a product's vector after the mirrored row goes away
func (s *EmbeddingService) DeleteProduct(ctx context.Context, feedID, productID uuid.UUID) error {
	_, err := s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName(feedID),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{
						PointIdOptions: &qdrant.PointId_Uuid{Uuid: productID.String()},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// ProductMatch is one semantic search hit
type ProductMatch struct {
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Title     string    `json:"title"`
	Score     float32   `json:"score"`
}

// SearchProducts embeds the query and returns the closest catalog entries
// of a feed, best match first.
func (s *EmbeddingService) SearchProducts(ctx context.Context, feedID uuid.UUID, query string, limit int) ([]ProductMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	vector, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collectionName(feedID),
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	matches := make([]ProductMatch, 0, len(resp.Result))
	for _, point := range resp.Result {
		match := ProductMatch{Score: point.Score}
		if v, ok := point.Payload["product_id"]; ok {
			if id, err := uuid.Parse(v.GetStringValue()); err == nil {
				match.ProductID = id
			}
		}
		if v, ok := point.Payload["sku"]; ok {
			match.SKU = v.GetStringValue()
		}
		if v, ok := point.Payload["title"]; ok {
			match.Title = v.GetStringValue()
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *EmbeddingService) ensureCollection(ctx context.Context, name string) error {
	_, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     embeddingDimension,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}
