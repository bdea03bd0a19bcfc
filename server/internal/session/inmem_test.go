package session

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/playback"

	"github.com/google/go-cmp/cmp"
)

type oneTurn struct{}

func (oneTurn) Resolve(model.Agent, int) model.Script {
	delay := 10_000
	return model.Script{{Sender: model.SenderUser, Message: "slow", DelayMS: &delay}}
}

func newDialog(t *testing.T, id string, created time.Time) *Dialog {
	t.Helper()
	e := playback.New(playback.Config{
		Agent:    model.Agent{ID: "nav-calendar", Title: "NAV Calendar"},
		Resolver: oneTurn{},
		Pacer:    playback.FixedPacer{},
		Timing:   playback.Timing{DelayScale: 1},
		Logger:   log.New(io.Discard, "", 0),
	})
	d := NewDialog(id, e, created)
	t.Cleanup(d.Close)
	return d
}

func TestInMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(nil)
	base := time.Unix(1_700_000_000, 0)

	a := newDialog(t, "a", base)
	b := newDialog(t, "b", base.Add(time.Second))
	for _, d := range []*Dialog{b, a} {
		if err := s.Save(ctx, d); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil || got != a {
		t.Fatalf("expected dialog a, got %v %v", got, err)
	}

	list, _ := s.List(ctx)
	var ids []string
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Fatalf("list order (-want +got):\n%s", diff)
	}

	if _, err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestSweepSkipsBusyDialogs 场景：闲置的对话被清理；正在回放或有连接的对话保留。
func TestSweepSkipsBusyDialogs(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(nil)
	base := time.Unix(1_700_000_000, 0)

	idle := newDialog(t, "idle", base)
	playing := newDialog(t, "playing", base)
	watched := newDialog(t, "watched", base)
	fresh := newDialog(t, "fresh", base)
	for _, d := range []*Dialog{idle, playing, watched, fresh} {
		_ = s.Save(ctx, d)
	}

	if err := playing.Engine.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}
	watched.Attach()
	defer watched.Detach()
	fresh.Touch(base.Add(9 * time.Minute))

	removed := s.Sweep(ctx, base.Add(10*time.Minute), 5*time.Minute)
	if diff := cmp.Diff([]string{"idle"}, removed); diff != "" {
		t.Fatalf("swept (-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, "idle"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle dialog removed")
	}
	for _, id := range []string{"playing", "watched", "fresh"} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Fatalf("expected %s kept: %v", id, err)
		}
	}
}

func TestDialogCloseSignalsDone(t *testing.T) {
	d := newDialog(t, "closing", time.Unix(1_700_000_000, 0))
	if err := d.Engine.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}

	d.Close()
	d.Close()

	select {
	case <-d.Done():
	default:
		t.Fatalf("expected Done closed after Close")
	}
	if err := d.Engine.Start(0); !errors.Is(err, playback.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
