package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
)

// BatchGetItem accepts at most 100 keys per call.
const dynamoBatchLimit = 100

// DynamoBatchGetter is the part of the DynamoDB client the catalog needs.
type DynamoBatchGetter interface {
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// DynamoProductRepository reads the catalog from a DynamoDB table keyed by
// the string attribute "id".
type DynamoProductRepository struct {
	client DynamoBatchGetter
	table  string
}

func NewDynamoProductRepository(client DynamoBatchGetter, table string) *DynamoProductRepository {
	return &DynamoProductRepository{client: client, table: table}
}

type ddbProduct struct {
	ID         string  `dynamodbav:"id"`
	Title      string  `dynamodbav:"title"`
	Price      float64 `dynamodbav:"price"`
	FileKey    string  `dynamodbav:"file_key"`
	CoverImage string  `dynamodbav:"cover_image,omitempty"`
}

func (d *DynamoProductRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	seen := make(map[string]struct{}, len(ids))
	var unique []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var products []models.Product
	for start := 0; start < len(unique); start += dynamoBatchLimit {
		end := start + dynamoBatchLimit
		if end > len(unique) {
			end = len(unique)
		}
		batch, err := d.getBatch(ctx, unique[start:end])
		if err != nil {
			return nil, err
		}
		products = append(products, batch...)
	}
	return products, nil
}

func (d *DynamoProductRepository) getBatch(ctx context.Context, ids []string) ([]models.Product, error) {
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		key, err := attributevalue.MarshalMap(map[string]string{"id": id})
		if err != nil {
			return nil, fmt.Errorf("marshal key: %w", err)
		}
		keys = append(keys, key)
	}

	request := map[string]types.KeysAndAttributes{d.table: {Keys: keys}}
	var products []models.Product

	// Unprocessed keys are retried a bounded number of times.
	for attempt := 0; attempt < 3 && len(request) > 0; attempt++ {
		out, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, fmt.Errorf("dynamodb BatchGetItem failed: %w", err)
		}

		for _, item := range out.Responses[d.table] {
			var dp ddbProduct
			if err := attributevalue.UnmarshalMap(item, &dp); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			products = append(products, models.Product{
				ID:         dp.ID,
				Title:      dp.Title,
				Price:      dp.Price,
				FileKey:    dp.FileKey,
				CoverImage: dp.CoverImage,
			})
		}
		request = out.UnprocessedKeys
	}

	if len(request) > 0 {
		return nil, fmt.Errorf("dynamodb BatchGetItem left %d keys unprocessed", len(request[d.table].Keys))
	}
	return products, nil
}
