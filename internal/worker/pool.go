package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/rs/zerolog"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

type PoolConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:     2,
		QueueSize:   256,
		TaskTimeout: 10 * time.Second,
	}
}

/*
PoolDispatcher 固定數量的 worker 從 queue 取事件送出
queue 滿了直接丟棄並記 log，不會卡住呼叫端
sender panic 只影響該筆事件
*/
type PoolDispatcher struct {
	sender Sender
	cfg    PoolConfig
	logger zerolog.Logger

	queue     chan model.PurchaseEvent
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPoolDispatcher(sender Sender, cfg PoolConfig, logger zerolog.Logger) *PoolDispatcher {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	d := &PoolDispatcher{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan model.PurchaseEvent, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	return d
}

func (d *PoolDispatcher) Dispatch(event model.PurchaseEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn().Str("order_id", event.OrderID).Msg("dispatcher closed, drop purchase event")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn().Str("order_id", event.OrderID).Int("queue_size", d.cfg.QueueSize).Msg("dispatch queue full, drop purchase event")
	}
}

// Close 不再收新事件，等 queue 裡的事件送完或 ctx 到期
func (d *PoolDispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *PoolDispatcher) work(id int) {
	defer d.wg.Done()
	for event := range d.queue {
		if err := d.run(event); err != nil {
			d.logger.Error().Err(err).Int("worker", id).Str("order_id", event.OrderID).Msg("purchase event failed")
			continue
		}
		d.logger.Debug().Int("worker", id).Str("order_id", event.OrderID).Msg("purchase event sent")
	}
}

func (d *PoolDispatcher) run(event model.PurchaseEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.TaskTimeout)
	defer cancel()
	return d.sender.SendPurchase(ctx, event)
}

var _ Dispatcher = (*PoolDispatcher)(nil)
