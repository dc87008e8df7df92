package correlation

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps records in a DynamoDB table keyed by deployment_id.
type DynamoStore struct {
	api   DynamoAPI
	table string
}

// OpenDynamo builds a store for table using the default AWS credential chain.
// An empty region leaves it to the environment and shared config.
func OpenDynamo(ctx context.Context, table, region string) (*DynamoStore, error) {
	if table == "" {
		return nil, errors.Wrap(ErrInvalidInput, "dynamodb table is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table), nil
}

// NewDynamoStore wraps an existing DynamoDB client.
func NewDynamoStore(api DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{api: api, table: table}
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"deployment_id": &types.AttributeValueMemberS{Value: id}}
}

func (s *DynamoStore) FindOrCreate(ctx context.Context, id string, fields Fields) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := Record{DeploymentID: id}
	fresh.merge(fields)
	item, err := attributevalue.MarshalMap(fresh)
	if err != nil {
		return nil, errors.Wrap(err, "marshal record")
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(deployment_id)"),
	})
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		// the companion event created it between our read and write
		return s.Get(ctx, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "put deployment %s", id)
	}
	return nil, nil
}

func (s *DynamoStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := checkUpdate(id, fields); err != nil {
		return err
	}
	expr := "SET"
	values := map[string]types.AttributeValue{}
	if fields.PipelineID != "" {
		expr += " pipeline_id = :p"
		values[":p"] = &types.AttributeValueMemberS{Value: fields.PipelineID}
	}
	if fields.TaskDef != "" {
		if len(values) > 0 {
			expr += ","
		}
		expr += " task_def = :t"
		values[":t"] = &types.AttributeValueMemberS{Value: fields.TaskDef}
	}
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(id),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	})
	return errors.Wrapf(err, "update deployment %s", id)
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get deployment %s", id)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal record")
	}
	return &rec, nil
}

func (s *DynamoStore) Close() error { return nil }

// parseDynamoDSN splits "table?region=xx" into its parts.
func parseDynamoDSN(rest string) (table, region string, err error) {
	table, query, _ := strings.Cut(rest, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", "", errors.Wrapf(ErrInvalidInput, "dynamodb dsn query %q", query)
	}
	return table, values.Get("region"), nil
}
