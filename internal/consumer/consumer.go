package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/config"
	"github.com/jeetkatariya/experimentation-platform/internal/queue"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// Consumer runs the ingestion pipeline: receive from the queue, decode into
// events, batch-write to the event store. Each stage runs in its own
// goroutine and hands work to the next over a bounded channel, so a slow
// store write backpressures all the way to the queue poll.
type Consumer struct {
	receiver *Receiver
	parser   *ParserStage
	writer   *BatchWriter
	buffer   int
}

func NewConsumer(cfg *config.Config, queueConsumer queue.QueueConsumer, repo repository.EventRepository, log *zap.Logger) *Consumer {
	recvCfg := ReceiverConfig{
		MaxMessages:     10,
		WaitTimeSeconds: 20,
		BufferSize:      100,
	}

	return &Consumer{
		receiver: NewReceiver(queueConsumer, recvCfg, log),
		parser:   NewParserStage(queueConsumer, NewJSONEventParser(), log),
		writer: NewBatchWriter(repo, BatchWriterConfig{
			MaxBatchSize: cfg.Consumer.BatchSizeMax,
			FlushTimeout: time.Duration(cfg.Consumer.BatchTimeoutSec) * time.Second,
		}, log),
		buffer: recvCfg.BufferSize,
	}
}

// Start runs all three stages and blocks until every stage has drained
// after the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	messages := make(chan types.Message, c.buffer)
	envelopes := make(chan *Envelope, c.buffer)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, messages)
	}()
	go func() {
		defer wg.Done()
		c.parser.Start(ctx, messages, envelopes)
	}()
	go func() {
		defer wg.Done()
		c.writer.Start(ctx, envelopes)
	}()

	wg.Wait()
	return nil
}
