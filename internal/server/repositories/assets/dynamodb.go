package assets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository stores one item per asset in a table keyed by owner
// (partition) and filename (sort).
type DynamoRepository struct {
	client dynamoAPI
	table  string
}

var newDynamoClientFromConfig = func(cfg aws.Config, optFns ...func(*dynamodb.Options)) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, optFns...)
}

// NewDynamoRepository builds a repository for table. endpoint overrides the
// service endpoint, e.g. DynamoDB Local.
func NewDynamoRepository(cfg aws.Config, table, endpoint string) *DynamoRepository {
	client := newDynamoClientFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DynamoRepository{client: client, table: table}
}

const (
	attrOwner            = "owner"
	attrFilename         = "filename"
	attrStorageKey       = "storageKey"
	attrChecksum         = "checksum"
	attrSize             = "size"
	attrProcessed        = "processed"
	attrUploadedAt       = "uploadedAt"
	attrLastTranscodedAt = "lastTranscodedAt"
	attrLastFailure      = "lastFailure"
)

func (r *DynamoRepository) key(ownerID, filename string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrOwner:    &types.AttributeValueMemberS{Value: ownerID},
		attrFilename: &types.AttributeValueMemberS{Value: filename},
	}
}

func (r *DynamoRepository) Put(ctx context.Context, a *models.Asset) error {
	if err := validateAsset(a); err != nil {
		return err
	}
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      itemFromAsset(a),
	})
	if err != nil {
		return metadataError("put asset", err)
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, ownerID, filename string) (*models.Asset, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(ownerID, filename),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, metadataError("get asset", err)
	}
	if len(out.Item) == 0 {
		return nil, common.ErrorNotFound
	}
	a, err := assetFromItem(out.Item)
	if err != nil {
		return nil, metadataError("decode asset", err)
	}
	return a, nil
}

// List queries one owner's partition, or scans the table when ownerID is
// empty.
func (r *DynamoRepository) List(ctx context.Context, ownerID string) ([]*models.Asset, error) {
	var items []map[string]types.AttributeValue

	if ownerID != "" {
		p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:                aws.String(r.table),
			KeyConditionExpression:   aws.String("#o = :o"),
			ExpressionAttributeNames: map[string]string{"#o": attrOwner},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":o": &types.AttributeValueMemberS{Value: ownerID},
			},
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, metadataError("query assets", err)
			}
			items = append(items, page.Items...)
		}
	} else {
		p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.table)})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, metadataError("scan assets", err)
			}
			items = append(items, page.Items...)
		}
	}

	result := make([]*models.Asset, 0, len(items))
	for _, item := range items {
		a, err := assetFromItem(item)
		if err != nil {
			return nil, metadataError("decode asset", err)
		}
		result = append(result, a)
	}
	sortAssets(result)
	return result, nil
}

// AppendVariant relies on a conditional list_append so the check and the
// append happen in one server-side operation.
func (r *DynamoRepository) AppendVariant(ctx context.Context, rec models.VariantRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	at := &types.AttributeValueMemberS{Value: formatTime(rec.At)}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(rec.OwnerID, rec.Filename),
		UpdateExpression: aws.String("SET #p = list_append(if_not_exists(#p, :empty), :v), #t = :at, " +
			"#sk = if_not_exists(#sk, :sk), #u = if_not_exists(#u, :at)"),
		ConditionExpression: aws.String("attribute_not_exists(#p) OR NOT contains(#p, :name)"),
		ExpressionAttributeNames: map[string]string{
			"#p":  attrProcessed,
			"#t":  attrLastTranscodedAt,
			"#sk": attrStorageKey,
			"#u":  attrUploadedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":v":     &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: rec.Variant}}},
			":name":  &types.AttributeValueMemberS{Value: rec.Variant},
			":sk":    &types.AttributeValueMemberS{Value: rec.StorageKey},
			":at":    at,
		},
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return metadataError("append variant", err)
	}

	// Already cataloged: only the transcode time moves.
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.key(rec.OwnerID, rec.Filename),
		UpdateExpression:          aws.String("SET #t = :at"),
		ExpressionAttributeNames:  map[string]string{"#t": attrLastTranscodedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":at": at},
	})
	if err != nil {
		return metadataError("touch asset", err)
	}
	return nil
}

func (r *DynamoRepository) SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.table),
		Key:                      r.key(ownerID, filename),
		UpdateExpression:         aws.String("SET #f = :f"),
		ConditionExpression:      aws.String("attribute_exists(#fn)"),
		ExpressionAttributeNames: map[string]string{"#f": attrLastFailure, "#fn": attrFilename},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f": failureAttr(f),
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return common.ErrorNotFound
	}
	if err != nil {
		return metadataError("set failure", err)
	}
	return nil
}

func itemFromAsset(a *models.Asset) map[string]types.AttributeValue {
	processed := make([]types.AttributeValue, 0, len(a.Processed))
	for _, v := range a.Processed {
		processed = append(processed, &types.AttributeValueMemberS{Value: v})
	}
	item := map[string]types.AttributeValue{
		attrOwner:      &types.AttributeValueMemberS{Value: a.OwnerID},
		attrFilename:   &types.AttributeValueMemberS{Value: a.Filename},
		attrStorageKey: &types.AttributeValueMemberS{Value: a.StorageKey},
		attrSize:       &types.AttributeValueMemberN{Value: strconv.FormatInt(a.Size, 10)},
		attrProcessed:  &types.AttributeValueMemberL{Value: processed},
		attrUploadedAt: &types.AttributeValueMemberS{Value: formatTime(a.UploadedAt)},
	}
	if a.Checksum != "" {
		item[attrChecksum] = &types.AttributeValueMemberS{Value: a.Checksum}
	}
	if a.LastTranscodedAt != nil {
		item[attrLastTranscodedAt] = &types.AttributeValueMemberS{Value: formatTime(*a.LastTranscodedAt)}
	}
	if a.LastFailure != nil {
		item[attrLastFailure] = failureAttr(*a.LastFailure)
	}
	return item
}

func failureAttr(f models.Failure) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"variant": &types.AttributeValueMemberS{Value: f.Variant},
		"reason":  &types.AttributeValueMemberS{Value: f.Reason},
		"at":      &types.AttributeValueMemberS{Value: formatTime(f.At)},
	}}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func timeAttr(item map[string]types.AttributeValue, name string) (*time.Time, error) {
	s := stringAttr(item, name)
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &t, nil
}

func assetFromItem(item map[string]types.AttributeValue) (*models.Asset, error) {
	a := &models.Asset{
		OwnerID:    stringAttr(item, attrOwner),
		Filename:   stringAttr(item, attrFilename),
		StorageKey: stringAttr(item, attrStorageKey),
		Checksum:   stringAttr(item, attrChecksum),
		Processed:  []string{},
	}
	if n, ok := item[attrSize].(*types.AttributeValueMemberN); ok {
		size, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse size: %w", err)
		}
		a.Size = size
	}
	if l, ok := item[attrProcessed].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				a.Processed = models.AppendUnique(a.Processed, s.Value)
			}
		}
	}

	uploaded, err := timeAttr(item, attrUploadedAt)
	if err != nil {
		return nil, err
	}
	if uploaded != nil {
		a.UploadedAt = *uploaded
	}
	if a.LastTranscodedAt, err = timeAttr(item, attrLastTranscodedAt); err != nil {
		return nil, err
	}

	if m, ok := item[attrLastFailure].(*types.AttributeValueMemberM); ok {
		f := &models.Failure{
			Variant: stringAttr(m.Value, "variant"),
			Reason:  stringAttr(m.Value, "reason"),
		}
		at, err := timeAttr(m.Value, "at")
		if err != nil {
			return nil, err
		}
		if at != nil {
			f.At = *at
		}
		a.LastFailure = f
	}
	return a, nil
}
