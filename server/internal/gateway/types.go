package gateway

import (
	"time"

	"kairos-demo/server/internal/model"
)

// EventType 定义了网关收发的消息类型
type EventType string

const (
	// 客户端 → 服务端（用户操作）
	EventTypeStartTopic    EventType = "start_topic"    // 播放话题
	EventTypeCancel        EventType = "cancel"         // 停止回放
	EventTypeReset         EventType = "reset"          // 清空对话
	EventTypeSubmitMessage EventType = "submit_message" // 手动输入

	// 服务端 → 客户端（视图更新）
	EventTypeSnapshot          EventType = "snapshot"           // 连接建立/重新同步时的完整状态
	EventTypeMessageAppended   EventType = "message_appended"   // 新消息
	EventTypeMessageUpdated    EventType = "message_updated"    // 流式文本增长
	EventTypeMessageFinalized  EventType = "message_finalized"  // 流式结束，附件可见
	EventTypeTranscriptCleared EventType = "transcript_cleared" // 对话被清空
	EventTypeState             EventType = "state"              // 回放状态变化
	EventTypeError             EventType = "error"
)

// ClientMessage 客户端发送给网关的消息（WebSocket文本帧）
type ClientMessage struct {
	Type       EventType `json:"type"`
	EventID    string    `json:"event_id,omitempty"`    // 回传在 error 中，便于客户端关联
	TopicIndex *int      `json:"topic_index,omitempty"` // start_topic
	Text       string    `json:"text,omitempty"`        // submit_message
}

// ServerMessage 网关发送给客户端的消息
//
// snapshot 之后的增量可能与快照重叠，客户端应按消息 ID 幂等应用。
type ServerMessage struct {
	Type       EventType            `json:"type"`
	Seq        int64                `json:"seq,omitempty"` // 连接内序号
	EventID    string               `json:"event_id,omitempty"`
	Message    *model.Message       `json:"message,omitempty"`
	State      *model.PlaybackState `json:"state,omitempty"`
	Snapshot   *Snapshot            `json:"snapshot,omitempty"`
	ServerTS   time.Time            `json:"server_ts"`
	Error      string               `json:"error,omitempty"`
}

// Snapshot 是某一时刻对话的完整视图。
type Snapshot struct {
	Agent      model.Agent         `json:"agent"`
	State      model.PlaybackState `json:"state"`
	Transcript []model.Message     `json:"transcript"`
}
