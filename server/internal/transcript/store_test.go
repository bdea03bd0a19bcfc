package transcript

import (
	"errors"
	"testing"
	"time"

	"kairos-demo/server/internal/model"

	"github.com/google/go-cmp/cmp"
)

// TestStoreAppendAssignsSeqAndIDs 验证 Append 为消息分配唯一 ID 与递增 seq。
// 场景：连续追加两条消息，seq 递增，ID 不同。
func TestStoreAppendAssignsSeqAndIDs(t *testing.T) {
	store := NewStore(nil)

	id1 := store.Append(model.Message{Sender: model.SenderUser, Text: "hi"})
	id2 := store.Append(model.Message{Sender: model.SenderAgent, Text: "hello"})
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct ids, got %q and %q", id1, id2)
	}

	msgs := store.List()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Seq != 1 || msgs[1].Seq != 2 {
		t.Fatalf("expected seq 1,2, got %d,%d", msgs[0].Seq, msgs[1].Seq)
	}
}

// TestStoreTimestampsNeverGoBackwards 验证时钟回拨时时间戳仍不递减。
func TestStoreTimestampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	store := NewStore(func() time.Time {
		ts := ticks[i]
		i++
		return ts
	})

	for range ticks {
		store.Append(model.Message{Sender: model.SenderUser, Text: "x"})
	}

	msgs := store.List()
	for j := 1; j < len(msgs); j++ {
		if msgs[j].Timestamp.Before(msgs[j-1].Timestamp) {
			t.Fatalf("timestamp %d went backwards: %v < %v", j, msgs[j].Timestamp, msgs[j-1].Timestamp)
		}
	}
	if !msgs[1].Timestamp.Equal(base) {
		t.Fatalf("expected clamped timestamp %v, got %v", base, msgs[1].Timestamp)
	}
}

// TestStoreStreamingOnlyMutability 验证只有流式消息可以改写，Finalize 之后不可变。
func TestStoreStreamingOnlyMutability(t *testing.T) {
	store := NewStore(nil)

	final := store.Append(model.Message{Sender: model.SenderUser, Text: "done"})
	if err := store.UpdateText(final, "changed"); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("expected ErrNotStreaming for finalized message, got %v", err)
	}
	if err := store.UpdateText("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	id := store.Append(model.Message{Sender: model.SenderAgent, Streaming: true})
	if err := store.UpdateText(id, "Hel"); err != nil {
		t.Fatalf("update streaming message: %v", err)
	}
	chart := model.NewChart(model.ChartData{Title: "t"})
	if err := store.Finalize(id, []model.Attachment{chart}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := store.UpdateText(id, "Hello"); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("expected finalized message to be immutable, got %v", err)
	}
	if err := store.Finalize(id, nil); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("expected second finalize to fail, got %v", err)
	}

	msg, ok := store.Get(id)
	if !ok {
		t.Fatalf("expected message %s", id)
	}
	if msg.Text != "Hel" || msg.Streaming || len(msg.Attachments) != 1 {
		t.Fatalf("unexpected finalized message: %+v", msg)
	}
}

// TestStoreNotifiesObserversInOrder 验证观察者按变更顺序收到通知，取消订阅后不再收到。
func TestStoreNotifiesObserversInOrder(t *testing.T) {
	store := NewStore(nil)

	var kinds []ChangeKind
	unsubscribe := store.Subscribe(func(c Change) {
		kinds = append(kinds, c.Kind)
	})

	id := store.Append(model.Message{Sender: model.SenderAgent, Streaming: true})
	_ = store.UpdateText(id, "a")
	_ = store.Finalize(id, nil)
	store.Clear()

	unsubscribe()
	store.Append(model.Message{Sender: model.SenderUser, Text: "ignored"})

	want := []ChangeKind{ChangeAppended, ChangeUpdated, ChangeFinalized, ChangeCleared}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
}

// TestStoreListReturnsCopy 验证 List 返回副本，防止外部修改影响内部状态。
func TestStoreListReturnsCopy(t *testing.T) {
	store := NewStore(nil)
	store.Append(model.Message{Sender: model.SenderUser, Text: "hi"})

	msgs := store.List()
	msgs[0].Text = "mutated"

	again := store.List()
	if again[0].Text != "hi" {
		t.Fatalf("expected internal data unchanged, got %q", again[0].Text)
	}
}

// TestStoreClearEmptiesButKeepsSeq 验证 Clear 后列表为空且新消息 seq 继续递增。
func TestStoreClearEmptiesButKeepsSeq(t *testing.T) {
	store := NewStore(nil)
	store.Append(model.Message{Sender: model.SenderUser, Text: "a"})
	store.Clear()

	if store.Len() != 0 {
		t.Fatalf("expected empty transcript, got %d", store.Len())
	}
	store.Append(model.Message{Sender: model.SenderUser, Text: "b"})
	if got := store.List()[0].Seq; got != 2 {
		t.Fatalf("expected seq 2 after clear, got %d", got)
	}
}
