package store

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/crosswalk-io/crosswalk/internal/config"
	"github.com/crosswalk-io/crosswalk/pkg/keys"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// controlKeyIndex is the GSI on the controls table keyed by controlKey alone.
const controlKeyIndex = "ControlKeyIndex"

// batchGetLimit is the DynamoDB BatchGetItem per-request key cap.
const batchGetLimit = 100

// DynamoCatalog implements Catalog against the controls, frameworks and
// enrichment tables.
type DynamoCatalog struct {
	client          *dynamodb.Client
	controlsTable   string
	frameworksTable string
	enrichmentTable string
}

// NewDynamoCatalog creates a catalog over the given client and table names.
func NewDynamoCatalog(client *dynamodb.Client, tables config.TableConfig) *DynamoCatalog {
	return &DynamoCatalog{
		client:          client,
		controlsTable:   tables.Controls,
		frameworksTable: tables.Frameworks,
		enrichmentTable: tables.Enrichment,
	}
}

// GetControl looks a control up by its full key via the ControlKeyIndex GSI.
func (c *DynamoCatalog) GetControl(ctx context.Context, controlKey string) (*models.Control, error) {
	out, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              awsv2.String(c.controlsTable),
		IndexName:              awsv2.String(controlKeyIndex),
		KeyConditionExpression: awsv2.String("controlKey = :ck"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ck": &types.AttributeValueMemberS{Value: controlKey},
		},
		Limit: awsv2.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query control %s: %w", controlKey, err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}

	var control models.Control
	if err := attributevalue.UnmarshalMap(out.Items[0], &control); err != nil {
		return nil, fmt.Errorf("unmarshal control %s: %w", controlKey, err)
	}
	return &control, nil
}

// ControlExists checks for the control and, on a miss, builds a best-effort
// suggestion naming sibling controls in the same framework.
func (c *DynamoCatalog) ControlExists(ctx context.Context, controlKey string) (bool, string, error) {
	_, err := c.GetControl(ctx, controlKey)
	if err == nil {
		return true, "", nil
	}
	if err != ErrNotFound {
		return false, "", err
	}

	frameworkKey, kerr := keys.FrameworkKeyOf(controlKey)
	if kerr != nil {
		return false, "", nil
	}

	out, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              awsv2.String(c.controlsTable),
		KeyConditionExpression: awsv2.String("frameworkKey = :fk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fk": &types.AttributeValueMemberS{Value: frameworkKey},
		},
		Limit: awsv2.Int32(3),
	})
	if err != nil {
		return false, "", fmt.Errorf("query framework controls %s: %w", frameworkKey, err)
	}
	if len(out.Items) == 0 {
		return false, "", nil
	}

	samples := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if av, ok := item["controlKey"].(*types.AttributeValueMemberS); ok {
			samples = append(samples, av.Value)
		}
	}
	suggestion := fmt.Sprintf("Framework '%s' exists. Sample control keys: %v", frameworkKey, samples)
	return false, suggestion, nil
}

// FrameworkExists checks the frameworks table for an exact (name, version)
// match. On a miss it returns the known versions of that framework, or a
// bounded sample of all frameworks when the name itself is unknown.
func (c *DynamoCatalog) FrameworkExists(ctx context.Context, frameworkKey string) (bool, []string, error) {
	name, version, ok := splitFrameworkKey(frameworkKey)
	if !ok {
		return false, nil, nil
	}

	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: awsv2.String(c.frameworksTable),
		Key: map[string]types.AttributeValue{
			"frameworkName": &types.AttributeValueMemberS{Value: name},
			"version":       &types.AttributeValueMemberS{Value: version},
		},
	})
	if err != nil {
		return false, nil, fmt.Errorf("get framework %s: %w", frameworkKey, err)
	}
	if out.Item != nil {
		return true, nil, nil
	}

	// Same name, other versions.
	q, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              awsv2.String(c.frameworksTable),
		KeyConditionExpression: awsv2.String("frameworkName = :fn"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fn": &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return false, nil, fmt.Errorf("query framework versions %s: %w", name, err)
	}
	if len(q.Items) > 0 {
		available := make([]string, 0, len(q.Items))
		for _, item := range q.Items {
			if av, ok := item["version"].(*types.AttributeValueMemberS); ok {
				available = append(available, name+"#"+av.Value)
			}
		}
		return false, available, nil
	}

	// Unknown name: sample what does exist.
	scan, err := c.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: awsv2.String(c.frameworksTable),
		Limit:     awsv2.Int32(20),
	})
	if err != nil {
		return false, nil, fmt.Errorf("scan frameworks: %w", err)
	}
	available := make([]string, 0, len(scan.Items))
	for _, item := range scan.Items {
		fn, okName := item["frameworkName"].(*types.AttributeValueMemberS)
		v, okVersion := item["version"].(*types.AttributeValueMemberS)
		if okName && okVersion {
			available = append(available, fn.Value+"#"+v.Value)
		}
	}
	return false, available, nil
}

// ListFrameworkControls fetches every control in the framework partition,
// consuming all result pages.
func (c *DynamoCatalog) ListFrameworkControls(ctx context.Context, frameworkKey string) ([]models.Control, error) {
	paginator := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:              awsv2.String(c.controlsTable),
		KeyConditionExpression: awsv2.String("frameworkKey = :fk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fk": &types.AttributeValueMemberS{Value: frameworkKey},
		},
	})

	var controls []models.Control
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list framework controls %s: %w", frameworkKey, err)
		}
		var batch []models.Control
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal framework controls %s: %w", frameworkKey, err)
		}
		controls = append(controls, batch...)
	}
	return controls, nil
}

// BatchGetControls fetches an explicit set of controls by composed key,
// chunked to the provider's 100-key batch limit. Unprocessed keys are fed
// back into the work list.
func (c *DynamoCatalog) BatchGetControls(ctx context.Context, frameworkKey string, controlIDs []string) ([]models.Control, error) {
	pending := make([]map[string]types.AttributeValue, 0, len(controlIDs))
	for _, id := range controlIDs {
		pending = append(pending, map[string]types.AttributeValue{
			"frameworkKey": &types.AttributeValueMemberS{Value: frameworkKey},
			"controlKey":   &types.AttributeValueMemberS{Value: keys.BuildControlKey(frameworkKey, id)},
		})
	}

	var controls []models.Control
	for len(pending) > 0 {
		chunk := pending
		if len(chunk) > batchGetLimit {
			chunk = chunk[:batchGetLimit]
		}
		pending = pending[len(chunk):]

		out, err := c.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				c.controlsTable: {Keys: chunk},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("batch get controls %s: %w", frameworkKey, err)
		}

		var batch []models.Control
		if err := attributevalue.UnmarshalListOfMaps(out.Responses[c.controlsTable], &batch); err != nil {
			return nil, fmt.Errorf("unmarshal controls %s: %w", frameworkKey, err)
		}
		controls = append(controls, batch...)

		if unprocessed, ok := out.UnprocessedKeys[c.controlsTable]; ok && len(unprocessed.Keys) > 0 {
			pending = append(pending, unprocessed.Keys...)
		}
	}
	return controls, nil
}

// GetEnrichment returns the pre-computed enriched description for a control.
// Absence is not an error; the pipeline falls back to the raw control text.
func (c *DynamoCatalog) GetEnrichment(ctx context.Context, controlKey string) (string, bool, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: awsv2.String(c.enrichmentTable),
		Key: map[string]types.AttributeValue{
			"control_id": &types.AttributeValueMemberS{Value: controlKey},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("get enrichment %s: %w", controlKey, err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	av, ok := out.Item["enriched_text"].(*types.AttributeValueMemberS)
	if !ok || av.Value == "" {
		return "", false, nil
	}
	return av.Value, true, nil
}

func splitFrameworkKey(frameworkKey string) (name, version string, ok bool) {
	for i := 0; i < len(frameworkKey); i++ {
		if frameworkKey[i] == '#' {
			name, version = frameworkKey[:i], frameworkKey[i+1:]
			return name, version, name != "" && version != ""
		}
	}
	return "", "", false
}

var _ Catalog = (*DynamoCatalog)(nil)
