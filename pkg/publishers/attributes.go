package publishers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const fifoSuffix = ".fifo"

// eventAttributes are the routing attributes every queue message carries, so subscribers can
// filter on outlet or bias without decoding the body.
func eventAttributes(evt Event) map[string]string {
	attrs := map[string]string{
		"event_type":  evt.Type,
		"source_slug": evt.Source.Slug,
		"bias_label":  evt.Source.Bias,
	}
	if evt.Article.Category != "" {
		attrs["category"] = evt.Article.Category
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}

// isFIFO reports whether an SQS queue url or SNS topic arn names a FIFO target.
func isFIFO(target string) bool {
	return strings.HasSuffix(strings.TrimSpace(target), fifoSuffix)
}

// fifoKeys groups messages per outlet and deduplicates on the article id, so a retried
// admission never produces a second message.
func fifoKeys(evt Event) (group, dedup string) {
	group = evt.Source.Slug
	if group == "" {
		group = "unknown"
	}
	dedup = evt.Article.ID
	if dedup == "" {
		dedup = evt.ID
	}
	return group, dedup
}

// loadAWSConfig uses static keys when both are set and the default credential chain otherwise.
func loadAWSConfig(ctx context.Context, region, keyID, secret string) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if keyID != "" && secret != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
