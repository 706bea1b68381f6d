package cart

import (
	"context"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const DefaultIdleTTL = 30 * time.Minute

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

// Registry 每個 cart session 一個 Store，第一次使用時才建立並從 storage 還原
type Registry struct {
	mu      sync.Mutex
	engine  *pricing.Engine
	storage Storage
	idleTTL time.Duration
	logger  zerolog.Logger
	opts    []Option
	now     func() time.Time
	stores  map[string]*registryEntry
	closed  bool
	// 同一個 session 同時只有一個 goroutine 在還原，不同 session 互不等待
	loading singleflight.Group
}

func NewRegistry(engine *pricing.Engine, storage Storage, idleTTL time.Duration, logger zerolog.Logger, opts ...Option) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		engine:  engine,
		storage: storage,
		idleTTL: idleTTL,
		logger:  logger,
		opts:    append([]Option{WithLogger(logger)}, opts...),
		now:     time.Now,
		stores:  make(map[string]*registryEntry),
	}
}

// Get 還原 storage 時不持有 r.mu，慢的 Load 只會擋住同一個 session
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	if store := r.lookup(sessionID); store != nil {
		return store
	}

	v, _, _ := r.loading.Do(sessionID, func() (interface{}, error) {
		if store := r.lookup(sessionID); store != nil {
			return store, nil
		}
		// 還原結果會被其他等待的 request 共用，不跟著第一個 request 被取消
		store := NewStore(context.WithoutCancel(ctx), r.engine, r.storage, sessionID, r.opts...)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			store.Close()
			return store, nil
		}
		r.stores[sessionID] = &registryEntry{store: store, lastUsed: r.now()}
		r.mu.Unlock()
		return store, nil
	})
	return v.(*Store)
}

func (r *Registry) lookup(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stores[sessionID]; ok {
		e.lastUsed = r.now()
		return e.store
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep 關閉閒置超過 idleTTL 的 Store，回傳移除數量
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var idle []*Store
	cutoff := r.now().Add(-r.idleTTL)
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug().Int("evicted", len(idle)).Msg("evicted idle carts")
	}
	return len(idle)
}

func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*registryEntry)
	r.closed = true
	r.mu.Unlock()

	for _, e := range stores {
		e.store.Close()
	}
}
