package model

import "time"

// Sender 标识一条台词/消息的发出方。
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid 判断 sender 是否属于闭合枚举。
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// DefaultTurnDelay 是剧本台词未声明 delay 时的兜底等待。
const DefaultTurnDelay = 1500 * time.Millisecond

// Agent 是演示平台上的一个智能体（展示元数据，来自目录）。
type Agent struct {
	ID              string `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	Description     string `json:"description" yaml:"description"`
	Icon            string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Category        string `json:"category,omitempty" yaml:"category,omitempty"`
	ExamplePrompt   string `json:"example_prompt,omitempty" yaml:"example_prompt,omitempty"`
	ExampleResponse string `json:"example_response,omitempty" yaml:"example_response,omitempty"`
	Status          string `json:"status,omitempty" yaml:"status,omitempty"`
}

// HasMetadata 表示是否有可用于构造兜底剧本的展示信息。
func (a Agent) HasMetadata() bool {
	return a.Title != ""
}

// Turn 表示剧本中的一步。
type Turn struct {
	Sender  Sender `json:"sender" yaml:"sender"`
	Message string `json:"message" yaml:"message"`
	// DelayMS 为空时使用兜底等待；目录加载时拒绝负数。
	DelayMS     *int         `json:"delay,omitempty" yaml:"delay,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// Delay 返回这一步开始前的等待时长。
func (t Turn) Delay(fallback time.Duration) time.Duration {
	if t.DelayMS == nil {
		return fallback
	}
	return time.Duration(*t.DelayMS) * time.Millisecond
}

// Script 是有序、不可变的台词序列。
type Script []Turn

// Topic 是一个智能体下的演示话题（前端话题按钮 + 对应剧本）。
type Topic struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Turns       Script `json:"turns,omitempty" yaml:"turns"`
}

// Message 是 transcript 中的一条消息。
// 流式输出期间 Text 可变；Streaming 清除后消息不可再修改。
type Message struct {
	ID          string       `json:"id"`
	Seq         int64        `json:"seq"`
	Sender      Sender       `json:"sender"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	Streaming   bool         `json:"streaming,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Clone 返回副本，调用方修改不会影响存储内的数据。
func (m Message) Clone() Message {
	if m.Attachments != nil {
		atts := make([]Attachment, len(m.Attachments))
		copy(atts, m.Attachments)
		m.Attachments = atts
	}
	return m
}

// PlaybackStatus 是回放状态机的状态。
type PlaybackStatus string

const (
	PlaybackIdle      PlaybackStatus = "idle"
	PlaybackRunning   PlaybackStatus = "running"
	PlaybackCompleted PlaybackStatus = "completed"
)

// PlaybackState 是回放会话的瞬时状态（不属于 transcript）。
type PlaybackState struct {
	Status PlaybackStatus `json:"status"`
	// TopicIndex 为空表示没有进行中的话题。
	TopicIndex *int `json:"topic_index"`
	// Progress 取值 0-100。
	Progress int `json:"progress"`
	// InputBuffer 是模拟用户打字时输入框里的内容。
	InputBuffer string `json:"input_buffer"`
	// Replying 表示手动输入后的罐头回复仍在输出。
	Replying bool `json:"replying,omitempty"`
}

// Active 表示回放是否占用对话（Running 或 Completed 冷却中）。
func (s PlaybackState) Active() bool {
	return s.Status == PlaybackRunning || s.Status == PlaybackCompleted
}
