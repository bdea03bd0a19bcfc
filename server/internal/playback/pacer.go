package playback

import (
	"math/rand/v2"
	"time"

	"kairos-demo/server/internal/model"

	"github.com/rivo/uniseg"
)

// 打字节奏区间（每个字符）。
const (
	keystrokeMin = 53 * time.Millisecond
	keystrokeMax = 80 * time.Millisecond
	revealMin    = 30 * time.Millisecond
	revealMax    = 50 * time.Millisecond
)

// Pacer 决定逐字显示时每个字符之间的停顿。
type Pacer interface {
	// Keystroke 是模拟用户在输入框里打一个字的停顿。
	Keystroke() time.Duration
	// Reveal 是智能体流式输出一个字的停顿。
	Reveal() time.Duration
}

// RandomPacer 在区间内均匀随机取值，看起来像真人在打字。
type RandomPacer struct{}

func (RandomPacer) Keystroke() time.Duration { return between(keystrokeMin, keystrokeMax) }
func (RandomPacer) Reveal() time.Duration    { return between(revealMin, revealMax) }

func between(lo, hi time.Duration) time.Duration {
	return lo + rand.N(hi-lo)
}

// FixedPacer 使用固定停顿，零值表示不停顿（测试与 --instant 使用）。
type FixedPacer struct {
	KeystrokeDelay time.Duration
	RevealDelay    time.Duration
}

func (p FixedPacer) Keystroke() time.Duration { return p.KeystrokeDelay }
func (p FixedPacer) Reveal() time.Duration    { return p.RevealDelay }

// Timing 汇总回放中的固定等待。零值表示全部跳过。
type Timing struct {
	// TurnDelay 是台词未声明 delay 时的兜底等待。
	TurnDelay time.Duration
	// DelayScale 缩放剧本里声明的 delay：1 为原速，0 跳过。
	DelayScale float64
	// SubmitPause 是用户台词打完后到“发送”之间的停顿。
	SubmitPause time.Duration
	// Thinking 是智能体消息出现后开始输出前的“思考”时间。
	Thinking time.Duration
	// Cooldown 是播放完成后回到 Idle 前的展示时间。
	Cooldown time.Duration
	// ReplyDelay 是手动输入后到罐头回复出现之间的等待。
	ReplyDelay time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		TurnDelay:   model.DefaultTurnDelay,
		DelayScale:  1,
		SubmitPause: 500 * time.Millisecond,
		Thinking:    1000 * time.Millisecond,
		Cooldown:    1000 * time.Millisecond,
		ReplyDelay:  1000 * time.Millisecond,
	}
}

// graphemeEnds 返回每个字素簇结束处的字节偏移，逐字显示时不会切开 emoji 或组合字符。
func graphemeEnds(s string) []int {
	var ends []int
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		_, to := g.Positions()
		ends = append(ends, to)
	}
	return ends
}
