package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("event queue closed")
	ErrQueueFull   = errors.New("event queue full")
)

// EventHandler 处理一条客户端消息。ctx 在队列关闭时取消。
// 返回的 error 只记录日志和统计，不会中断队列。
type EventHandler func(ctx context.Context, msg *ClientMessage) error

// EventQueue 串行处理单个连接上的客户端消息：
// 同一连接的 start/cancel/reset/submit 严格按到达顺序作用在引擎上。
type EventQueue struct {
	name    string
	handler EventHandler
	events  chan queuedEvent
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	logger  *log.Logger

	mu    sync.Mutex
	stats QueueStats
}

// QueueStats 是队列的累计统计。
type QueueStats struct {
	Enqueued  int64 `json:"enqueued"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
	Capacity  int   `json:"capacity"`
}

type queuedEvent struct {
	msg *ClientMessage
	at  time.Time
}

const defaultQueueCapacity = 32

// NewEventQueue 创建并启动事件队列，capacity <= 0 时使用默认容量。
func NewEventQueue(name string, capacity int, handler EventHandler, logger *log.Logger) *EventQueue {
	if logger == nil {
		logger = log.Default()
	}
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &EventQueue{
		name:    name,
		handler: handler,
		events:  make(chan queuedEvent, capacity),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}

	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue 非阻塞入队；队列满时丢弃并返回 ErrQueueFull。
func (q *EventQueue) Enqueue(msg *ClientMessage) error {
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}

	select {
	case q.events <- queuedEvent{msg: msg, at: time.Now()}:
		q.mu.Lock()
		q.stats.Enqueued++
		q.mu.Unlock()
		return nil
	default:
		q.mu.Lock()
		q.stats.Dropped++
		q.mu.Unlock()
		q.logger.Printf("[EventQueue] ⚠️  %s queue full, dropping %s", q.name, msg.Type)
		return ErrQueueFull
	}
}

func (q *EventQueue) loop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case ev := <-q.events:
			q.process(ev)
		}
	}
}

func (q *EventQueue) process(ev queuedEvent) {
	start := time.Now()
	err := q.handler(q.ctx, ev.msg)

	q.mu.Lock()
	q.stats.Processed++
	if err != nil {
		q.stats.Failed++
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Printf("[EventQueue] ❌ %s %s failed: %v (queued %v)", q.name, ev.msg.Type, err, start.Sub(ev.at))
	}
}

// Stats 返回统计快照。
func (q *EventQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = len(q.events)
	s.Capacity = cap(q.events)
	return s
}

// Close 停止处理并等待处理协程退出，未处理的消息被丢弃。可重复调用。
func (q *EventQueue) Close() {
	q.once.Do(func() {
		q.cancel()
		q.wg.Wait()

		s := q.Stats()
		q.logger.Printf("[EventQueue] %s closed: enqueued=%d processed=%d failed=%d dropped=%d pending=%d",
			q.name, s.Enqueued, s.Processed, s.Failed, s.Dropped, s.Pending)
	})
}
