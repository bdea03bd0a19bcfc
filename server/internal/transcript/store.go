package transcript

import (
	"errors"
	"sync"
	"time"

	"kairos-demo/server/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrNotStreaming = errors.New("message is not streaming")
)

// ChangeKind 描述一次 transcript 变更。
type ChangeKind string

const (
	ChangeAppended  ChangeKind = "appended"
	ChangeUpdated   ChangeKind = "updated"
	ChangeFinalized ChangeKind = "finalized"
	ChangeCleared   ChangeKind = "cleared"
)

// Change 是推送给观察者的变更通知，Message 为副本（Cleared 时为零值）。
type Change struct {
	Kind    ChangeKind    `json:"kind"`
	Message model.Message `json:"message"`
}

// Store 是一个对话窗口内的有序消息列表。
//
// 契约：
// - 只追加：消息按创建顺序排列，Seq 单调递增，时间戳不回退。
// - 只有 Streaming 的消息可以改写文本；Finalize 之后不可变。
// - 每次变更都同步通知观察者（按变更顺序）。观察者回调内不要再调用 Store 的写方法。
type Store struct {
	// wmu 串行化写操作（含通知），保证观察者看到的顺序与变更顺序一致。
	wmu      sync.Mutex
	mu       sync.RWMutex
	messages []model.Message
	index    map[string]int
	seq      int64
	lastTS   time.Time
	now      func() time.Time

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		index:     make(map[string]int),
		now:       now,
		observers: make(map[int]func(Change)),
	}
}

// Subscribe 注册观察者，返回取消函数。
func (s *Store) Subscribe(fn func(Change)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Append 追加一条消息并返回分配的 ID。
// 副作用：分配 ID/Seq/时间戳，调用方传入的这三个字段会被覆盖。
func (s *Store) Append(msg model.Message) string {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.seq++
	ts := s.now()
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts

	msg = msg.Clone()
	msg.ID = uuid.NewString()
	msg.Seq = s.seq
	msg.Timestamp = ts
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	out := msg.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAppended, Message: out})
	return out.ID
}

// UpdateText 改写一条流式消息的文本。
func (s *Store) UpdateText(id, text string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !s.messages[i].Streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.messages[i].Text = text
	out := s.messages[i].Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Message: out})
	return nil
}

// Finalize 结束流式输出并挂上附件，此后消息不可变。
func (s *Store) Finalize(id string, attachments []model.Attachment) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !s.messages[i].Streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.messages[i].Streaming = false
	if len(attachments) > 0 {
		atts := make([]model.Attachment, len(attachments))
		copy(atts, attachments)
		s.messages[i].Attachments = atts
	}
	out := s.messages[i].Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeFinalized, Message: out})
	return nil
}

// Clear 清空全部消息。Seq 继续递增，便于前端区分新旧消息。
func (s *Store) Clear() {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.messages = nil
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCleared})
}

// Get 返回指定消息的副本。
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// List 返回全部消息（按插入顺序）。
// 兼容性：返回切片副本，避免调用方修改内部数据。
func (s *Store) List() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
