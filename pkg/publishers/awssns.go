package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// awsSNSSender fans events out through one SNS topic. The article title is the subject so
// email and SMS subscribers get something readable.
type awsSNSSender struct {
	topicARN string
	fifo     bool
	client   snsClient
	log      Logger
}

// SNS subjects must stay under 100 ASCII characters.
const maxSNSSubject = 99

func newAWSSNSSender(ctx context.Context, cfg *AWSSNSPublisherConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("aws sns configuration is missing")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &awsSNSSender{
		topicARN: cfg.TopicARN,
		fifo:     isFIFO(cfg.TopicARN),
		client:   sns.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

// Send publishes the event as a JSON message.
func (s *awsSNSSender) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range eventAttributes(evt) {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	input := &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if subject := snsSubject(evt.Article.Title); subject != "" {
		input.Subject = aws.String(subject)
	}
	if s.fifo {
		group, dedup := fifoKeys(evt)
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(dedup)
	}

	resp, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns publish failed", "publisher_sns_error", map[string]any{
			"event_id":    evt.ID,
			"article_url": evt.Article.URL,
			"error":       err.Error(),
		})
		return fmt.Errorf("send message to sns: %w", err)
	}
	s.log.DebugObj("sns message published", "publisher_sns_delivery", map[string]any{
		"message_id": aws.ToString(resp.MessageId),
		"event_id":   evt.ID,
	})
	return nil
}

// snsSubject reduces title to printable ASCII on one line within the SNS subject limit.
func snsSubject(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		}
	}
	subject := strings.Join(strings.Fields(b.String()), " ")
	if len(subject) > maxSNSSubject {
		subject = strings.TrimSpace(subject[:maxSNSSubject])
	}
	return subject
}
