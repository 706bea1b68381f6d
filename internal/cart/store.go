// Package cart holds one shopper's basket: entries, derived totals and the transient
// add/undo notifications. Every mutation is persisted in the background.
package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const storageTimeout = 5 * time.Second

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithAddedToastTTL(d time.Duration) Option {
	return func(s *Store) { s.addedTTL = d }
}

func WithUndoWindow(d time.Duration) Option {
	return func(s *Store) { s.undoWindow = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu      sync.Mutex
	engine  *pricing.Engine
	storage Storage
	key     string
	logger  zerolog.Logger

	addedTTL   time.Duration
	undoWindow time.Duration
	now        func() time.Time

	entries []Entry
	toasts  []*toastState
	closed  bool

	persistCh chan []byte
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStore 建立時從 storage 還原一次，資料壞掉就當空購物車並刪除舊資料
func NewStore(ctx context.Context, engine *pricing.Engine, storage Storage, key string, opts ...Option) *Store {
	s := &Store{
		engine:     engine,
		storage:    storage,
		key:        key,
		logger:     zerolog.Nop(),
		addedTTL:   DefaultAddedToastTTL,
		undoWindow: DefaultUndoWindow,
		now:        time.Now,
		persistCh:  make(chan []byte, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.restore(ctx)

	s.wg.Add(1)
	go s.persistLoop()
	return s
}

func (s *Store) restore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	data, err := s.storage.Load(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Str("cart_key", s.key).Msg("failed to load cart, start empty")
		return
	}
	if len(data) == 0 {
		return
	}

	var stored []Entry
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Warn().Err(err).Str("cart_key", s.key).Msg("discard corrupt cart data")
		if err := s.storage.Remove(ctx, s.key); err != nil {
			s.logger.Warn().Err(err).Str("cart_key", s.key).Msg("failed to remove corrupt cart data")
		}
		return
	}

	// 同一商品只保留一筆，數量 <= 0 的丟掉
	seen := make(map[string]int, len(stored))
	for _, e := range stored {
		if e.ProductID == "" || e.Quantity <= 0 {
			continue
		}
		if idx, ok := seen[e.ProductID]; ok {
			s.entries[idx].Quantity += e.Quantity
			continue
		}
		seen[e.ProductID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
}

// AddItem 已存在就數量 +1，否則新增一筆數量 1
func (s *Store) AddItem(p model.Product) Toast {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(p.ID); idx >= 0 {
		s.entries[idx].Quantity++
	} else {
		s.entries = append(s.entries, newEntry(p))
	}
	s.persistLocked()

	return s.pushToastLocked(Toast{
		Type:        ToastSuccess,
		Message:     MsgAdded,
		ProductName: p.Name,
	}, s.addedTTL, nil)
}

// RemoveItem 商品不在購物車裡時不做任何事，回傳 false
func (s *Store) RemoveItem(productID string) (Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(productID)
}

func (s *Store) removeLocked(productID string) (Toast, bool) {
	idx := s.indexOf(productID)
	if idx < 0 {
		return Toast{}, false
	}
	removed := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.persistLocked()

	return s.pushToastLocked(Toast{
		Type:        ToastUndo,
		Message:     MsgRemoved,
		ProductName: removed.Name,
		Undoable:    true,
	}, s.undoWindow, &removed), true
}

// UpdateQuantity quantity <= 0 等同 RemoveItem
func (s *Store) UpdateQuantity(productID string, quantity int) (Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(productID)
	}
	idx := s.indexOf(productID)
	if idx < 0 {
		return Toast{}, false
	}
	s.entries[idx].Quantity = quantity
	s.persistLocked()
	return Toast{}, false
}

func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	// 清空後舊的 undo 也不能再用
	for _, ts := range s.toasts {
		ts.timer.Stop()
	}
	s.toasts = nil
	s.persistLocked()
}

/*
Undo 在時間內還原被移除的那一筆 (加在最後面)
下列情況回傳 false:
  - toast 不存在或已過期
  - 不是 undo toast
  - 同一商品在這段期間又被加回購物車
*/
func (s *Store) Undo(toastID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.toastIndex(toastID)
	if idx < 0 {
		return false
	}
	ts := s.toasts[idx]
	if ts.removed == nil {
		return false
	}
	s.dismissLocked(idx)

	if s.indexOf(ts.removed.ProductID) >= 0 {
		return false
	}
	s.entries = append(s.entries, *ts.removed)
	s.persistLocked()
	return true
}

func (s *Store) DismissToast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.toastIndex(id); idx >= 0 {
		s.dismissLocked(idx)
	}
}

func (s *Store) Items() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *Store) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TotalsFromQuote(s.engine.Quote(toLines(s.entries)))
}

func (s *Store) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toastsLocked()
}

type Snapshot struct {
	Items  []Entry `json:"items"`
	Totals Totals  `json:"totals"`
	Toasts []Toast `json:"toasts"`
}

// Snapshot 同一把鎖內讀出，items 與 totals 一定一致
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Items:  s.itemsLocked(),
		Totals: TotalsFromQuote(s.engine.Quote(toLines(s.entries))),
		Toasts: s.toastsLocked(),
	}
}

// Close 停掉所有 toast timer 並把最後一次變更寫入 storage
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for _, ts := range s.toasts {
			ts.timer.Stop()
		}
		s.toasts = nil
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()
	})
}

func (s *Store) itemsLocked() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) toastsLocked() []Toast {
	out := make([]Toast, 0, len(s.toasts))
	for _, ts := range s.toasts {
		out = append(out, ts.toast)
	}
	return out
}

func (s *Store) indexOf(productID string) int {
	for i, e := range s.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) toastIndex(id string) int {
	for i, ts := range s.toasts {
		if ts.toast.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) pushToastLocked(t Toast, ttl time.Duration, removed *Entry) Toast {
	t.ID = uuid.NewString()
	t.ExpiresAt = s.now().Add(ttl)
	if s.closed {
		return t
	}
	ts := &toastState{toast: t, removed: removed}
	id := t.ID
	ts.timer = time.AfterFunc(ttl, func() { s.DismissToast(id) })
	s.toasts = append(s.toasts, ts)
	return t
}

func (s *Store) dismissLocked(idx int) {
	s.toasts[idx].timer.Stop()
	s.toasts = append(s.toasts[:idx], s.toasts[idx+1:]...)
}

// persistLocked 只保留最新一份，寫入在背景 goroutine 進行
func (s *Store) persistLocked() {
	if s.closed {
		return
	}
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_key", s.key).Msg("failed to encode cart")
		return
	}

	select {
	case s.persistCh <- data:
	default:
		select {
		case <-s.persistCh:
		default:
		}
		s.persistCh <- data
	}
}

func (s *Store) persistLoop() {
	defer s.wg.Done()
	for {
		select {
		case data := <-s.persistCh:
			s.save(data)
		case <-s.done:
			select {
			case data := <-s.persistCh:
				s.save(data)
			default:
			}
			return
		}
	}
}

func (s *Store) save(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		s.logger.Warn().Err(err).Str("cart_key", s.key).Msg("failed to persist cart")
	}
}
