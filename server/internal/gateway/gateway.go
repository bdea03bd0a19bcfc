package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/session"
	"kairos-demo/server/internal/transcript"

	"github.com/gorilla/websocket"
)

// Config 网关配置
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// OutboundBuffer 是待发送消息的缓冲，满了之后丢弃增量并在下一次空闲时补发快照。
	OutboundBuffer int
	// InboundBuffer 是待处理的客户端消息缓冲。
	InboundBuffer int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 256
	}
	return c
}

// Gateway 是一个对话窗口的实时视图通道（每个 WebSocket 连接一个实例）
// 职责：
// 1. 连接建立时推送快照，之后把 transcript / 回放状态的每次变更推给客户端
// 2. 把客户端操作（播放话题/停止/重置/手动输入）串行交给回放引擎
// 3. 慢客户端：丢弃增量，缓冲排空后补发快照重新同步
type Gateway struct {
	dialog *session.Dialog
	conn   *websocket.Conn
	config Config
	logger *log.Logger
	now    func() time.Time

	queue *EventQueue
	out   chan *ServerMessage
	seq   int64 // 只由 writeLoop 修改

	// live 之前的变更先暂存，保证快照是客户端收到的第一条消息
	mu      sync.Mutex
	live    bool
	pending []*ServerMessage

	resync  atomic.Bool
	dropped atomic.Int64

	unsubscribe []func()
	closeOnce   sync.Once
	closeChan   chan struct{}
}

// New 创建网关，调用 Start 后开始收发。
func New(dialog *session.Dialog, conn *websocket.Conn, cfg Config, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()

	g := &Gateway{
		dialog:    dialog,
		conn:      conn,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		out:       make(chan *ServerMessage, cfg.OutboundBuffer),
		closeChan: make(chan struct{}),
	}
	g.queue = NewEventQueue(dialog.ID, cfg.InboundBuffer, g.handleClientEvent, logger)
	dialog.Attach()
	return g
}

// Start 订阅对话变更，推送快照并启动读写协程。
func (g *Gateway) Start() {
	g.unsubscribe = append(g.unsubscribe,
		g.dialog.Transcript().Subscribe(g.onTranscriptChange),
		g.dialog.Engine.Subscribe(g.onStateChange),
	)

	snap := TakeSnapshot(g.dialog)

	g.mu.Lock()
	g.push(&ServerMessage{Type: EventTypeSnapshot, Snapshot: &snap, ServerTS: g.now()})
	for _, msg := range g.pending {
		g.push(msg)
	}
	g.pending = nil
	g.live = true
	g.mu.Unlock()

	go g.readLoop()
	go g.writeLoop()
	go g.pingLoop()

	g.logger.Printf("[Gateway] started for dialog %s (agent=%s)", g.dialog.ID, g.dialog.Agent.ID)
}

// Done 在连接关闭后返回
func (g *Gateway) Done() <-chan struct{} {
	return g.closeChan
}

// Dropped 返回因缓冲已满被丢弃的增量条数。
func (g *Gateway) Dropped() int64 {
	return g.dropped.Load()
}

// TakeSnapshot 读取对话当前的完整视图。
func TakeSnapshot(d *session.Dialog) Snapshot {
	return Snapshot{
		Agent:      d.Agent,
		State:      d.Engine.State(),
		Transcript: d.Transcript().List(),
	}
}

var changeTypes = map[transcript.ChangeKind]EventType{
	transcript.ChangeAppended:  EventTypeMessageAppended,
	transcript.ChangeUpdated:   EventTypeMessageUpdated,
	transcript.ChangeFinalized: EventTypeMessageFinalized,
	transcript.ChangeCleared:   EventTypeTranscriptCleared,
}

// onTranscriptChange 在引擎锁内被调用，只做入队，不能阻塞。
func (g *Gateway) onTranscriptChange(c transcript.Change) {
	msg := &ServerMessage{Type: changeTypes[c.Kind], ServerTS: g.now()}
	if c.Kind != transcript.ChangeCleared {
		m := c.Message
		msg.Message = &m
	}
	g.deliver(msg)
}

func (g *Gateway) onStateChange(s model.PlaybackState) {
	g.deliver(&ServerMessage{Type: EventTypeState, State: &s, ServerTS: g.now()})
}

func (g *Gateway) deliver(msg *ServerMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.live {
		g.pending = append(g.pending, msg)
		return
	}
	g.push(msg)
}

// push 非阻塞写入发送缓冲
func (g *Gateway) push(msg *ServerMessage) {
	select {
	case g.out <- msg:
	default:
		if g.dropped.Add(1) == 1 || !g.resync.Load() {
			g.logger.Printf("[Gateway] ⚠️  outbound buffer full for dialog %s, will resync", g.dialog.ID)
		}
		g.resync.Store(true)
	}
}

func (g *Gateway) sendError(eventID string, err error) {
	g.deliver(&ServerMessage{Type: EventTypeError, EventID: eventID, Error: err.Error(), ServerTS: g.now()})
}

// readLoop 从客户端读取操作
func (g *Gateway) readLoop() {
	defer g.Close()

	g.conn.SetReadDeadline(time.Now().Add(2 * g.config.PingInterval))
	g.conn.SetPongHandler(func(string) error {
		return g.conn.SetReadDeadline(time.Now().Add(2 * g.config.PingInterval))
	})

	for {
		messageType, data, err := g.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Printf("[Gateway] client read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.sendError("", fmt.Errorf("invalid client message: %w", err))
			continue
		}
		if err := g.queue.Enqueue(&msg); err != nil {
			g.sendError(msg.EventID, err)
		}
	}
}

// handleClientEvent 把客户端操作作用到回放引擎（由 EventQueue 串行调用）
func (g *Gateway) handleClientEvent(ctx context.Context, msg *ClientMessage) error {
	// 连接已在关闭，剩余操作不再作用到对话上
	if err := ctx.Err(); err != nil {
		return err
	}
	g.dialog.Touch(g.now())
	engine := g.dialog.Engine

	var err error
	switch msg.Type {
	case EventTypeStartTopic:
		idx := 0
		if msg.TopicIndex != nil {
			idx = *msg.TopicIndex
		}
		err = engine.Start(idx)
	case EventTypeCancel:
		engine.Cancel()
	case EventTypeReset:
		engine.Reset()
	case EventTypeSubmitMessage:
		err = engine.Submit(msg.Text)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		g.sendError(msg.EventID, err)
	}
	return err
}

// writeLoop 是唯一写数据帧的协程
func (g *Gateway) writeLoop() {
	defer g.Close()

	for {
		select {
		case <-g.closeChan:
			return
		case <-g.dialog.Done():
			g.flush()
			g.logger.Printf("[Gateway] dialog %s closed, ending stream", g.dialog.ID)
			return
		case msg := <-g.out:
			if err := g.write(msg); err != nil {
				g.logger.Printf("[Gateway] write error for dialog %s: %v", g.dialog.ID, err)
				return
			}
			if len(g.out) == 0 && g.resync.CompareAndSwap(true, false) {
				snap := TakeSnapshot(g.dialog)
				if err := g.write(&ServerMessage{Type: EventTypeSnapshot, Snapshot: &snap, ServerTS: g.now()}); err != nil {
					g.logger.Printf("[Gateway] resync error for dialog %s: %v", g.dialog.ID, err)
					return
				}
			}
		}
	}
}

func (g *Gateway) write(msg *ServerMessage) error {
	g.seq++
	msg.Seq = g.seq

	if err := g.conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout)); err != nil {
		return err
	}
	return g.conn.WriteJSON(msg)
}

// flush 尽量把缓冲里剩下的消息发出去（对话关闭时的最后状态）。
func (g *Gateway) flush() {
	for {
		select {
		case msg := <-g.out:
			if err := g.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// pingLoop 定期发送ping保持连接
func (g *Gateway) pingLoop() {
	ticker := time.NewTicker(g.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.closeChan:
			return
		case <-g.dialog.Done():
			g.Close()
			return
		case <-ticker.C:
			if err := g.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					g.logger.Printf("[Gateway] ping failed for dialog %s: %v", g.dialog.ID, err)
				}
				g.Close()
				return
			}
		}
	}
}

// Close 关闭网关：退订变更、停止事件队列、关闭连接。可重复调用。
// 对话本身不受影响，回放会继续进行；对话被关闭时网关随之关闭。
func (g *Gateway) Close() error {
	var closeErr error

	g.closeOnce.Do(func() {
		for _, unsubscribe := range g.unsubscribe {
			unsubscribe()
		}
		close(g.closeChan)
		g.queue.Close()
		g.dialog.Detach()

		g.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		closeErr = g.conn.Close()

		if n := g.dropped.Load(); n > 0 {
			g.logger.Printf("[Gateway] closed dialog %s stream (dropped=%d)", g.dialog.ID, n)
		} else {
			g.logger.Printf("[Gateway] closed dialog %s stream", g.dialog.ID)
		}
	})

	return closeErr
}
