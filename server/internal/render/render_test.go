package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/transcript"
)

var testAgent = model.Agent{ID: "deal-sourcing", Title: "Deal Sourcing Agent"}

// TestRenderer_Attachments 验证每种附件都能渲染出关键内容
func TestRenderer_Attachments(t *testing.T) {
	r := New(DefaultTheme(), 80)

	cases := []struct {
		name string
		att  model.Attachment
		want []string
	}{
		{
			name: "chart",
			att: model.NewChart(model.ChartData{
				Title: "Sector Mix",
				Items: []model.ChartItem{{Label: "Healthcare", Value: "42%", Percentage: 42}},
			}),
			want: []string{"Sector Mix", "Healthcare", "42%"},
		},
		{
			name: "table",
			att: model.NewTable(model.TableData{
				Title:   "Pipeline",
				Headers: []string{"Company", "Stage"},
				Rows:    [][]string{{"Acme", "LOI"}},
			}),
			want: []string{"Pipeline", "Company", "Acme", "LOI"},
		},
		{
			name: "metrics",
			att: model.NewMetrics(model.MetricsData{
				Title:   "KPIs",
				Metrics: []model.Metric{{Label: "EBITDA Margin", Value: "18%", Trend: model.TrendDown, Change: 2}},
			}),
			want: []string{"KPIs", "EBITDA Margin", "▼ 2%"},
		},
		{
			name: "alert",
			att:  model.NewAlert(model.AlertData{Level: model.AlertCritical, Title: "Covenant", Message: "Breach risk"}),
			want: []string{"✖ Covenant", "Breach risk"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := r.Attachment(tc.att)
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Fatalf("expected %q in output:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderer_StreamingPlaceholder(t *testing.T) {
	r := New(DefaultTheme(), 0)
	out := r.Message(model.Message{Sender: model.SenderAgent, Streaming: true}, model.Agent{})
	if !strings.Contains(out, "Agent") || !strings.Contains(out, "●") {
		t.Fatalf("expected generic agent label and thinking dots, got:\n%s", out)
	}
}

func TestRenderer_Status(t *testing.T) {
	r := New(DefaultTheme(), 0)
	out := r.Status(model.PlaybackState{Status: model.PlaybackRunning, Progress: 50, InputBuffer: "How are"})
	if !strings.Contains(out, " 50% running") || !strings.Contains(out, "How are") {
		t.Fatalf("unexpected status line: %q", out)
	}
	if got := strings.Count(out, "█"); got != 10 {
		t.Fatalf("expected 10 filled cells, got %d", got)
	}
}

// TestPrinter_StreamsIncrementally 场景：流式消息每次只输出新增部分，最终挂上附件
func TestPrinter_StreamsIncrementally(t *testing.T) {
	var buf bytes.Buffer
	store := transcript.NewStore(func() time.Time { return time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC) })
	p := NewPrinter(&buf, New(DefaultTheme(), 60), testAgent)
	defer store.Subscribe(p.OnChange)()

	store.Append(model.Message{Sender: model.SenderUser, Text: "Screen the pipeline"})
	id := store.Append(model.Message{Sender: model.SenderAgent, Streaming: true})
	for _, s := range []string{"Fo", "Found", "Found 3"} {
		if err := store.UpdateText(id, s); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	alert := model.NewAlert(model.AlertData{Level: model.AlertInfo, Title: "Done", Message: "3 targets"})
	if err := store.Finalize(id, []model.Attachment{alert}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Screen the pipeline") {
		t.Fatalf("expected user message, got:\n%s", out)
	}
	if strings.Count(out, "Found") != 1 {
		t.Fatalf("expected streamed text written once, got:\n%s", out)
	}
	if !strings.Contains(out, "  Found 3\n") {
		t.Fatalf("expected full agent text, got:\n%s", out)
	}
	if !strings.Contains(out, "3 targets") {
		t.Fatalf("expected attachment, got:\n%s", out)
	}

	store.Clear()
	if !strings.Contains(buf.String(), "transcript cleared") {
		t.Fatalf("expected clear marker")
	}
}
