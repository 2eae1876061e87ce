package consumer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/queue"
)

const receiveRetryDelay = time.Second

// ReceiverConfig controls the SQS long-poll parameters.
type ReceiverConfig struct {
	MaxMessages     int32
	WaitTimeSeconds int32
	BufferSize      int
}

// Receiver long-polls the event queue and feeds raw messages to the parser
// stage. It owns the output channel and closes it on shutdown.
type Receiver struct {
	queue queue.QueueConsumer
	cfg   ReceiverConfig
	log   *zap.Logger
}

func NewReceiver(consumer queue.QueueConsumer, cfg ReceiverConfig, log *zap.Logger) *Receiver {
	return &Receiver{queue: consumer, cfg: cfg, log: log}
}

// Start polls until the context is cancelled.
func (r *Receiver) Start(ctx context.Context, out chan<- types.Message) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			r.log.Info("Receiver stopped")
			return
		}

		messages, err := r.poll(ctx)
		if err != nil {
			r.log.Error("Receive from queue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveRetryDelay):
			}
			continue
		}

		if len(messages) == 0 {
			continue
		}

		r.log.Info("Received event messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			select {
			case <-ctx.Done():
				r.log.Info("Receiver stopped mid-batch")
				return
			case out <- msg:
			}
		}
	}
}

func (r *Receiver) poll(ctx context.Context) ([]types.Message, error) {
	result, err := r.queue.ReceiveMessages(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:              aws.String(r.queue.QueueURL()),
		MaxNumberOfMessages:   r.cfg.MaxMessages,
		WaitTimeSeconds:       r.cfg.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}
