package session

import (
	"sync"
	"sync/atomic"
	"time"

	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/playback"
	"kairos-demo/server/internal/transcript"
)

// Dialog 是一个打开的智能体对话窗口：智能体 + transcript + 回放引擎。
// 只存在于内存中，关闭或长时间闲置后即消失。
type Dialog struct {
	ID        string
	Agent     model.Agent
	Engine    *playback.Engine
	CreatedAt time.Time

	lastActive atomic.Int64
	streams    atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

func NewDialog(id string, engine *playback.Engine, now time.Time) *Dialog {
	d := &Dialog{
		ID:        id,
		Agent:     engine.Agent(),
		Engine:    engine,
		CreatedAt: now,
		done:      make(chan struct{}),
	}
	d.lastActive.Store(now.UnixNano())
	return d
}

func (d *Dialog) Transcript() *transcript.Store {
	return d.Engine.Transcript()
}

// Touch 记录一次用户操作。
func (d *Dialog) Touch(now time.Time) {
	d.lastActive.Store(now.UnixNano())
}

func (d *Dialog) LastActive() time.Time {
	return time.Unix(0, d.lastActive.Load())
}

// Attach/Detach 统计挂在该对话上的实时连接，有连接时不会被清理。
func (d *Dialog) Attach() { d.streams.Add(1) }
func (d *Dialog) Detach() { d.streams.Add(-1) }

// Idle 判断对话是否可被清理：没有连接、没有回放或回复在进行、且闲置超过 maxIdle。
func (d *Dialog) Idle(now time.Time, maxIdle time.Duration) bool {
	if d.streams.Load() > 0 {
		return false
	}
	st := d.Engine.State()
	if st.Active() || st.Replying {
		return false
	}
	return now.Sub(d.LastActive()) > maxIdle
}

// Close 停止回放、清空内容并拒绝后续操作，挂在上面的实时连接随之结束。可重复调用。
func (d *Dialog) Close() {
	d.closeOnce.Do(func() {
		d.Engine.Close()
		d.Engine.Wait()
		close(d.done)
	})
}

// Done 在对话关闭后返回。
func (d *Dialog) Done() <-chan struct{} {
	return d.done
}
