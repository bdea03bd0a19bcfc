package playback

import (
	"context"
	"strings"

	"kairos-demo/server/internal/model"
)

// Submit 处理用户手动输入：立即追加用户消息，等待后流式输出一条罐头回复。
// 空白输入返回 ErrEmptyInput；回放进行中或上一条回复未完成时返回 ErrBusy。
// 两种拒绝都不会修改 transcript。对话关闭后返回 ErrClosed。
func (e *Engine) Submit(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		e.metrics.RecordManualMessage(context.Background(), "rejected_empty")
		return ErrEmptyInput
	}
	if e.state.Status != model.PlaybackIdle || e.state.Replying {
		e.metrics.RecordManualMessage(context.Background(), "rejected_busy")
		return ErrBusy
	}

	e.transcript.Append(model.Message{Sender: model.SenderUser, Text: text})

	ctx, gen := e.beginLocked()
	e.state.Replying = true
	e.notifyLocked()
	e.metrics.RecordManualMessage(ctx, "accepted")

	e.wg.Add(1)
	go e.reply(ctx, gen, e.replyText())
	return nil
}

func (e *Engine) replyText() string {
	if e.agent.ExampleResponse != "" {
		return e.agent.ExampleResponse
	}
	return e.fallbackReply
}

func (e *Engine) reply(ctx context.Context, gen uint64, text string) {
	defer e.wg.Done()

	if !sleep(ctx, e.timing.ReplyDelay) {
		return
	}
	if !e.streamAgent(ctx, gen, text, nil) {
		return
	}
	e.mutate(gen, func() {
		e.state.Replying = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.notifyLocked()
	})
}
