// Package playback 把静态剧本“演”成一段实时对话：模拟用户打字、智能体流式输出，
// 并支持随时取消与重置。
package playback

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/observe"
	"kairos-demo/server/internal/script"
	"kairos-demo/server/internal/transcript"
)

var (
	// ErrBusy 表示对话正在回放（或罐头回复仍在输出），拒绝新的请求。
	ErrBusy = errors.New("playback: dialog is busy")
	// ErrEmptyInput 表示手动输入为空或只有空白。
	ErrEmptyInput = errors.New("playback: empty input")
	// ErrClosed 表示对话窗口已关闭，引擎不再接受任何操作。
	ErrClosed = errors.New("playback: dialog is closed")
)

// ScriptResolver 把话题序号解析为剧本，script.Resolver 满足该接口。
type ScriptResolver interface {
	Resolve(agent model.Agent, topicIndex int) model.Script
}

// Config 是创建 Engine 所需的依赖。
type Config struct {
	Agent      model.Agent
	Resolver   ScriptResolver
	Transcript *transcript.Store
	Pacer      Pacer
	Timing     Timing
	// FallbackReply 是智能体没有示例回复时手动输入得到的回复。
	FallbackReply string
	Logger        *log.Logger
	Metrics       *observe.Metrics
}

// Engine 是一个对话窗口的回放状态机：Idle → Running → Completed → Idle。
//
// 并发模型：
//   - 每次回放 / 手动回复在独立 goroutine 中运行，所有等待都可被 ctx 取消。
//   - gen 是代际计数，Cancel/Reset 时递增；后台 goroutine 每次修改 transcript 或状态前
//     都在 mu 下核对代际，因此 Cancel/Reset 返回后旧回放不会再产生任何修改。
//   - 状态观察者在 mu 下同步调用，回调内不要再调用 Engine 的方法。
type Engine struct {
	agent         model.Agent
	resolver      ScriptResolver
	transcript    *transcript.Store
	pacer         Pacer
	timing        Timing
	fallbackReply string
	logger        *log.Logger
	metrics       *observe.Metrics

	mu       sync.Mutex
	state    model.PlaybackState
	closed   bool
	gen      uint64
	cancel   context.CancelFunc
	runStart time.Time

	observers map[int]func(model.PlaybackState)
	nextObs   int

	wg sync.WaitGroup
}

func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Pacer == nil {
		cfg.Pacer = RandomPacer{}
	}
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.NewStore(nil)
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = catalog.DefaultFallbackReply
	}
	return &Engine{
		agent:         cfg.Agent,
		resolver:      cfg.Resolver,
		transcript:    cfg.Transcript,
		pacer:         cfg.Pacer,
		timing:        cfg.Timing,
		fallbackReply: cfg.FallbackReply,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		state:         model.PlaybackState{Status: model.PlaybackIdle},
		observers:     make(map[int]func(model.PlaybackState)),
	}
}

func (e *Engine) Agent() model.Agent {
	return e.agent
}

func (e *Engine) Transcript() *transcript.Store {
	return e.transcript
}

// State 返回当前回放状态的副本。
func (e *Engine) State() model.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyState(e.state)
}

// Subscribe 注册状态观察者，返回取消函数。
func (e *Engine) Subscribe(fn func(model.PlaybackState)) func() {
	e.mu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// Start 开始播放指定话题。只在 Idle 且没有罐头回复进行中时有效，否则返回 ErrBusy。
// 副作用：清空 transcript、进度归零、清空输入框。
func (e *Engine) Start(topicIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state.Status != model.PlaybackIdle || e.state.Replying {
		return ErrBusy
	}

	steps := e.resolveLocked(topicIndex)

	ctx, gen := e.beginLocked()
	e.runStart = time.Now()
	e.transcript.Clear()

	idx := topicIndex
	e.state = model.PlaybackState{Status: model.PlaybackRunning, TopicIndex: &idx}
	e.notifyLocked()

	e.logger.Printf("[Playback] 🎬 agent=%s topic=%d start (%d turns)", e.agent.ID, topicIndex, len(steps))

	e.wg.Add(1)
	go e.run(ctx, gen, steps)
	return nil
}

// Cancel 停止回放并立即回到 Idle，已经写入的消息保留（包括输出到一半的消息）。
// Idle 时调用为空操作。
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Active() {
		return
	}
	e.stopLocked()

	e.state.Status = model.PlaybackIdle
	e.state.TopicIndex = nil
	e.state.InputBuffer = ""
	e.notifyLocked()
}

// Reset 停止一切后台输出，清空 transcript，进度归零。任何状态下都有效。
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.transcript.Clear()

	e.state = model.PlaybackState{Status: model.PlaybackIdle}
	e.notifyLocked()
}

// Close 停止一切后台输出并清空对话，之后 Start/Submit 返回 ErrClosed。可重复调用。
// 关闭后不会再启动新的后台 goroutine，因此 Close 之后调用 Wait 是安全的。
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.stopLocked()
	e.transcript.Clear()

	e.state = model.PlaybackState{Status: model.PlaybackIdle}
	e.notifyLocked()
}

// Closed 表示引擎是否已关闭。
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Wait 阻塞直到所有后台 goroutine（回放、冷却、罐头回复）退出。
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) resolveLocked(topicIndex int) model.Script {
	var steps model.Script
	if e.resolver != nil {
		steps = e.resolver.Resolve(e.agent, topicIndex)
	}
	if len(steps) == 0 {
		e.logger.Printf("[Playback] ⚠️  agent=%s topic=%d resolved to an empty script, using agent fallback", e.agent.ID, topicIndex)
		steps = script.AgentFallback(e.agent)
	}
	return steps
}

// beginLocked 开启新一代后台任务。
func (e *Engine) beginLocked() (context.Context, uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	e.gen++
	e.cancel = cancel
	return ctx, e.gen
}

// stopLocked 作废当前代的后台任务。
func (e *Engine) stopLocked() {
	if e.state.Status == model.PlaybackRunning {
		e.metrics.RecordRun(context.Background(), observe.OutcomeCancelled, time.Since(e.runStart))
		e.logger.Printf("[Playback] ⏹️  agent=%s cancelled at %d%%", e.agent.ID, e.state.Progress)
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// mutate 在代际仍然有效时执行 fn，返回 false 表示已被取消。
func (e *Engine) mutate(gen uint64, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return false
	}
	fn()
	return true
}

func (e *Engine) notifyLocked() {
	for i := 0; i < e.nextObs; i++ {
		if fn, ok := e.observers[i]; ok {
			fn(copyState(e.state))
		}
	}
}

func (e *Engine) run(ctx context.Context, gen uint64, steps model.Script) {
	defer e.wg.Done()

	n := len(steps)
	for i, turn := range steps {
		progress := int(math.Round(float64(i+1) / float64(n) * 100))
		if !e.mutate(gen, func() {
			e.state.Progress = progress
			e.notifyLocked()
		}) {
			return
		}

		if !sleep(ctx, e.turnDelay(turn)) {
			return
		}

		var ok bool
		if turn.Sender == model.SenderUser {
			ok = e.typeUser(ctx, gen, turn.Message)
		} else {
			ok = e.streamAgent(ctx, gen, turn.Message, turn.Attachments)
		}
		if !ok {
			return
		}
		e.metrics.RecordTurn(ctx, string(turn.Sender))
	}

	if !e.mutate(gen, func() {
		e.state.Status = model.PlaybackCompleted
		e.state.Progress = 100
		e.state.InputBuffer = ""
		e.notifyLocked()
		e.metrics.RecordRun(ctx, observe.OutcomeCompleted, time.Since(e.runStart))
		e.logger.Printf("[Playback] ✅ agent=%s completed (%d turns)", e.agent.ID, n)
	}) {
		return
	}

	if !sleep(ctx, e.timing.Cooldown) {
		return
	}
	e.mutate(gen, func() {
		e.state.Status = model.PlaybackIdle
		e.state.TopicIndex = nil
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.notifyLocked()
	})
}

func (e *Engine) turnDelay(turn model.Turn) time.Duration {
	if turn.DelayMS == nil {
		return e.timing.TurnDelay
	}
	return time.Duration(float64(turn.Delay(0)) * e.timing.DelayScale)
}

// typeUser 把台词逐字打进输入框，停顿后作为用户消息发送。
func (e *Engine) typeUser(ctx context.Context, gen uint64, text string) bool {
	ends := append([]int{0}, graphemeEnds(text)...)
	for _, end := range ends {
		typed := text[:end]
		if !e.mutate(gen, func() {
			e.state.InputBuffer = typed
			e.notifyLocked()
		}) {
			return false
		}
		if !sleep(ctx, e.pacer.Keystroke()) {
			return false
		}
	}

	if !sleep(ctx, e.timing.SubmitPause) {
		return false
	}
	return e.mutate(gen, func() {
		e.transcript.Append(model.Message{Sender: model.SenderUser, Text: text})
		e.state.InputBuffer = ""
		e.notifyLocked()
	})
}

// streamAgent 追加一条空的流式消息，“思考”后逐字输出，最后挂上附件。
// 中途取消时消息保持原样，不补全也不回滚。
func (e *Engine) streamAgent(ctx context.Context, gen uint64, text string, attachments []model.Attachment) bool {
	var id string
	if !e.mutate(gen, func() {
		id = e.transcript.Append(model.Message{Sender: model.SenderAgent, Streaming: true})
	}) {
		return false
	}

	if !sleep(ctx, e.timing.Thinking) {
		return false
	}

	for _, end := range graphemeEnds(text) {
		shown := text[:end]
		if !e.mutate(gen, func() {
			if err := e.transcript.UpdateText(id, shown); err != nil {
				e.logger.Printf("[Playback] ❌ update message %s: %v", id, err)
			}
		}) {
			return false
		}
		if !sleep(ctx, e.pacer.Reveal()) {
			return false
		}
	}

	return e.mutate(gen, func() {
		if err := e.transcript.Finalize(id, attachments); err != nil {
			e.logger.Printf("[Playback] ❌ finalize message %s: %v", id, err)
		}
	})
}

// sleep 是可取消的等待，返回 false 表示 ctx 已结束。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func copyState(s model.PlaybackState) model.PlaybackState {
	if s.TopicIndex != nil {
		idx := *s.TopicIndex
		s.TopicIndex = &idx
	}
	return s
}
