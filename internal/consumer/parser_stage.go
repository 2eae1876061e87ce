package consumer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/queue"
)

// ParserStage decodes raw queue messages into event envelopes. Messages that
// fail to decode are removed from the queue, since redelivery cannot fix a
// malformed body.
type ParserStage struct {
	queue  queue.QueueConsumer
	parser MessageParser
	log    *zap.Logger
}

func NewParserStage(consumer queue.QueueConsumer, parser MessageParser, log *zap.Logger) *ParserStage {
	return &ParserStage{queue: consumer, parser: parser, log: log}
}

// Start consumes raw messages until the input channel closes or the context
// is cancelled, forwarding one envelope per decodable message.
func (p *ParserStage) Start(ctx context.Context, in <-chan types.Message, out chan<- *Envelope) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Parser stage stopped")
			return
		case msg, ok := <-in:
			if !ok {
				p.log.Info("Parser stage input drained")
				return
			}

			env := p.decode(ctx, msg)
			if env == nil {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- env:
			}
		}
	}
}

func (p *ParserStage) decode(ctx context.Context, msg types.Message) *Envelope {
	event, err := p.parser.Parse([]byte(aws.ToString(msg.Body)))
	if err != nil {
		p.log.Warn("Dropping undecodable message",
			zap.String("message_id", aws.ToString(msg.MessageId)),
			zap.Error(err))
		if delErr := p.remove(ctx, msg); delErr != nil {
			p.log.Error("Failed to remove undecodable message",
				zap.String("message_id", aws.ToString(msg.MessageId)),
				zap.Error(delErr))
		}
		return nil
	}

	ack := func(ctx context.Context) error {
		return p.remove(ctx, msg)
	}
	// A nack leaves the message alone; SQS redelivers it once the
	// visibility timeout expires.
	nack := func(ctx context.Context) error {
		return nil
	}

	return NewEnvelope(event, ack, nack)
}

func (p *ParserStage) remove(ctx context.Context, msg types.Message) error {
	_, err := p.queue.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queue.QueueURL()),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		p.log.Error("Failed to delete message",
			zap.String("message_id", aws.ToString(msg.MessageId)),
			zap.Error(err))
	}
	return err
}
