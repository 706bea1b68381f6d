package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/rs/zerolog"
)

var ErrConsumerClosed = errors.New("consumer closed")

/*
PurchaseConsumer 從 kafka 讀 purchase 事件交給 sender
送出失敗只記 log 仍然 commit，分析事件不值得卡住整個 partition
*/
type PurchaseConsumer struct {
	reader    KafkaReader
	sender    Sender
	timeout   time.Duration
	logger    zerolog.Logger
	closeOnce sync.Once
	closeChan chan struct{}
}

func NewPurchaseConsumer(reader KafkaReader, sender Sender, timeout time.Duration, logger zerolog.Logger) *PurchaseConsumer {
	if timeout <= 0 {
		timeout = DefaultPoolConfig().TaskTimeout
	}
	return &PurchaseConsumer{
		reader:    reader,
		sender:    sender,
		timeout:   timeout,
		logger:    logger,
		closeChan: make(chan struct{}),
	}
}

func (c *PurchaseConsumer) checkIsClosed() bool {
	select {
	case <-c.closeChan:
		return true
	default:
		return false
	}
}

// Run 阻塞直到 ctx 結束或 Stop
func (c *PurchaseConsumer) Run(ctx context.Context) error {
	if c.checkIsClosed() {
		return ErrConsumerClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closeChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("fetch purchase event failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var event model.PurchaseEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("unknown purchase event format")
		} else {
			c.handle(ctx, event)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("commit purchase event failed")
		}
	}
}

func (c *PurchaseConsumer) handle(ctx context.Context, event model.PurchaseEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("order_id", event.OrderID).Msg("purchase sender panic")
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.sender.SendPurchase(sendCtx, event); err != nil {
		c.logger.Error().Err(err).Str("order_id", event.OrderID).Msg("send purchase event failed")
		return
	}
	c.logger.Info().Str("order_id", event.OrderID).Msg("purchase event sent")
}

func (c *PurchaseConsumer) Stop() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		err = c.reader.Close()
	})
	return err
}
