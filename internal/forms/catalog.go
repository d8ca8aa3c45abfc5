package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/models"
)

// Catalog is the immutable set of harvested form schemas, keyed by form id.
// Built once at startup and injected; never mutated at request time.
type Catalog struct {
	byID map[string]*models.FormSchema
}

// Lookup returns the schema for a form id, or (nil, false) if unknown.
func (c *Catalog) Lookup(formID string) (*models.FormSchema, bool) {
	schema, ok := c.byID[formID]
	return schema, ok
}

// Len returns the number of schemas in the catalog.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// rawEntry mirrors the harvest tool's output shape, which nests fields under
// the service desk API's own response envelope.
type rawEntry struct {
	FormID          json.RawMessage `json:"form_id"`
	ProjectName     string          `json:"projectName"`
	RequestTypeName string          `json:"requestTypeName"`
	ProjectID       json.RawMessage `json:"projectId"`
	RequestTypeID   json.RawMessage `json:"requestTypeId"`
	Fields          struct {
		RequestTypeFields []rawField `json:"requestTypeFields"`
	} `json:"fields"`
}

type rawField struct {
	FieldID    string `json:"fieldId"`
	Required   bool   `json:"required"`
	JiraSchema struct {
		Type string `json:"type"`
	} `json:"jiraSchema"`
}

// rawString normalizes a JSON value that may be a string or a number into its
// string form; the harvester has emitted both over time.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// ParseCatalog decodes harvested form data into a Catalog. Duplicate form ids
// and entries missing routing identifiers are load errors.
func ParseCatalog(data []byte) (*Catalog, error) {
	var entries []rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse form data: %w", err)
	}

	byID := make(map[string]*models.FormSchema, len(entries))
	for i, entry := range entries {
		formID := rawString(entry.FormID)
		if formID == "" {
			return nil, fmt.Errorf("form data entry %d has no form_id", i)
		}
		if _, exists := byID[formID]; exists {
			return nil, fmt.Errorf("duplicate form_id %q in form data", formID)
		}

		schema := &models.FormSchema{
			FormID:        formID,
			ProjectName:   entry.ProjectName,
			RequestType:   entry.RequestTypeName,
			ProjectID:     rawString(entry.ProjectID),
			RequestTypeID: rawString(entry.RequestTypeID),
		}
		if schema.ProjectID == "" || schema.RequestTypeID == "" {
			return nil, fmt.Errorf("form %q is missing projectId/requestTypeId routing", formID)
		}

		for _, f := range entry.Fields.RequestTypeFields {
			kind := models.FieldKindText
			if f.JiraSchema.Type == "array" {
				kind = models.FieldKindChoice
			}
			schema.Fields = append(schema.Fields, models.FormField{
				FieldID:  f.FieldID,
				Required: f.Required,
				Kind:     kind,
			})
		}
		byID[formID] = schema
	}

	return &Catalog{byID: byID}, nil
}

// LoadCatalogFromFile reads harvested form data from disk.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form data file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// LoadCatalogFromS3 fetches harvested form data from an S3 object. Used in
// deployments where the harvest tool publishes straight to a bucket.
func LoadCatalogFromS3(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.FormDataS3Bucket),
		Key:    aws.String(cfg.FormDataS3Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch form data from s3://%s/%s: %w", cfg.FormDataS3Bucket, cfg.FormDataS3Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read form data object body: %w", err)
	}
	return ParseCatalog(data)
}

// LoadCatalog picks the configured source: S3 when a bucket is set, otherwise
// the local file path.
func LoadCatalog(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	if cfg.FormDataS3Bucket != "" {
		return LoadCatalogFromS3(ctx, cfg)
	}
	return LoadCatalogFromFile(cfg.FormDataPath)
}
