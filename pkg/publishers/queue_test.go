package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSNS struct {
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{MessageId: aws.String("n-1")}, nil
}

func TestAWSSQSSender_Send(t *testing.T) {
	client := &fakeSQS{}
	sender := &awsSQSSender{queueURL: "https://sqs.example/q", client: client, log: ensureLogger(nil)}
	evt := sampleEvent()

	require.NoError(t, sender.Send(context.Background(), evt))
	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.example/q", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, "daily", aws.ToString(client.input.MessageAttributes["source_slug"].StringValue))
	assert.Equal(t, "lean-left", aws.ToString(client.input.MessageAttributes["bias_label"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
}

func TestQueuePublisher_WrapsSenderError(t *testing.T) {
	sender := &awsSQSSender{queueURL: "q", client: &fakeSQS{err: errors.New("throttled")}, log: ensureLogger(nil)}
	pub := &queuePublisher{id: "q", typ: TypeQueue, provider: QueueProviderAWSSQS, sender: sender, log: ensureLogger(nil)}

	err := pub.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws-sqs")
	assert.NoError(t, pub.Close())
}

func TestAWSSNSSender_Send(t *testing.T) {
	client := &fakeSNS{}
	sender := &awsSNSSender{topicARN: "arn:aws:sns:us-east-1:1:articles", client: client, log: ensureLogger(nil)}

	require.NoError(t, sender.Send(context.Background(), sampleEvent()))
	assert.Equal(t, "arn:aws:sns:us-east-1:1:articles", aws.ToString(client.input.TopicArn))
	assert.Equal(t, EventArticleAdmitted, aws.ToString(client.input.MessageAttributes["event_type"].StringValue))
}

func TestNewQueuePublisher_Unsupported(t *testing.T) {
	_, err := newQueuePublisher(context.Background(), PublisherConfig{ID: "x", Queue: &QueuePublisherConfig{Provider: "azure"}}, nil)
	assert.Error(t, err)

	_, err = newQueuePublisher(context.Background(), PublisherConfig{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestAWSSQSSender_FIFOKeys(t *testing.T) {
	client := &fakeSQS{}
	sender := &awsSQSSender{queueURL: "https://sqs.example/articles.fifo", fifo: isFIFO("https://sqs.example/articles.fifo"), client: client, log: ensureLogger(nil)}

	require.NoError(t, sender.Send(context.Background(), sampleEvent()))
	assert.Equal(t, "daily", aws.ToString(client.input.MessageGroupId))
	assert.Equal(t, "a1", aws.ToString(client.input.MessageDeduplicationId), "article id deduplicates retries")

	plain := &fakeSQS{}
	sender = &awsSQSSender{queueURL: "https://sqs.example/articles", client: plain, log: ensureLogger(nil)}
	require.NoError(t, sender.Send(context.Background(), sampleEvent()))
	assert.Nil(t, plain.input.MessageGroupId)
	assert.Nil(t, plain.input.MessageDeduplicationId)
}

func TestAWSSNSSender_SubjectAndFIFO(t *testing.T) {
	client := &fakeSNS{}
	sender := &awsSNSSender{topicARN: "arn:aws:sns:us-east-1:1:articles.fifo", fifo: true, client: client, log: ensureLogger(nil)}

	evt := sampleEvent()
	evt.Article.Title = "Café vote\ndelayed " + strings.Repeat("x", 200)
	require.NoError(t, sender.Send(context.Background(), evt))

	subject := aws.ToString(client.input.Subject)
	assert.True(t, strings.HasPrefix(subject, "Caf vote delayed xxx"), subject)
	assert.LessOrEqual(t, len(subject), maxSNSSubject)
	assert.Equal(t, "daily", aws.ToString(client.input.MessageGroupId))
}

func TestEventAttributes(t *testing.T) {
	evt := sampleEvent()
	assert.Equal(t, map[string]string{
		"event_type":  EventArticleAdmitted,
		"source_slug": "daily",
		"bias_label":  "lean-left",
	}, eventAttributes(evt))

	evt.Article.Category = "politics"
	evt.Source.Bias = ""
	attrs := eventAttributes(evt)
	assert.Equal(t, "politics", attrs["category"])
	assert.NotContains(t, attrs, "bias_label")
}

func TestIsFIFO(t *testing.T) {
	assert.True(t, isFIFO("https://sqs.us-east-1.amazonaws.com/1/articles.fifo"))
	assert.True(t, isFIFO("arn:aws:sns:us-east-1:1:articles.fifo "))
	assert.False(t, isFIFO("https://sqs.us-east-1.amazonaws.com/1/articles"))
}
