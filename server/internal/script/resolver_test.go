package script

import (
	"io"
	"log"
	"strings"
	"testing"

	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/model"

	"github.com/google/go-cmp/cmp"
)

const testCatalog = `
agents:
  - id: cim
    title: CIM Intelligence
    description: Extracts highlights.
    topics:
      - name: healthcare
        turns:
          - {sender: user, message: "Analyze this CIM"}
          - {sender: agent, message: "Done"}
      - name: saas
        turns:
          - {sender: user, message: "Summarize the teaser"}
  - id: hollow
    title: Hollow
    topics:
      - name: empty
        turns: []
  - id: nav
    title: NAV Calendar
    description: Coordinates NAV deadlines.
    example_response: "Your next NAV deadline is in 5 days."
`

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog), nil)
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return NewResolver(c, log.New(io.Discard, "", 0))
}

func messages(s model.Script) []string {
	out := make([]string, len(s))
	for i, turn := range s {
		out[i] = turn.Message
	}
	return out
}

// TestResolveSelectsTopicByIndex 验证按声明顺序选择话题，越界时回到第 0 个。
func TestResolveSelectsTopicByIndex(t *testing.T) {
	r := newTestResolver(t)
	agent := model.Agent{ID: "cim"}

	cases := []struct {
		index int
		want  []string
	}{
		{0, []string{"Analyze this CIM", "Done"}},
		{1, []string{"Summarize the teaser"}},
		{2, []string{"Analyze this CIM", "Done"}},
		{-1, []string{"Analyze this CIM", "Done"}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, messages(r.Resolve(agent, tc.index))); diff != "" {
			t.Fatalf("index %d (-want +got):\n%s", tc.index, diff)
		}
	}
}

// TestResolveUnknownAgentWithoutMetadata 场景：未知智能体 ghost-agent，返回三步通用剧本。
func TestResolveUnknownAgentWithoutMetadata(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(model.Agent{ID: "ghost-agent"}, 5)

	if diff := cmp.Diff(messages(DefaultScript()), messages(got)); diff != "" {
		t.Fatalf("default script (-want +got):\n%s", diff)
	}
	last := got[len(got)-1]
	if len(last.Attachments) != 1 || last.Attachments[0].Kind != model.AttachmentMetrics {
		t.Fatalf("expected one metrics attachment, got %+v", last.Attachments)
	}
	if n := len(last.Attachments[0].Metrics.Metrics); n != 4 {
		t.Fatalf("expected 4 sample metrics, got %d", n)
	}
}

func TestResolveUnknownAgentWithMetadata(t *testing.T) {
	r := newTestResolver(t)
	agent := model.Agent{ID: "portfolio-monitor", Title: "Portfolio Monitor", Description: "Tracks KPIs."}
	got := r.Resolve(agent, 0)

	want := []string{
		"Tell me about your Portfolio Monitor capabilities.",
		"I'm the Portfolio Monitor. Tracks KPIs.",
		defaultExample,
	}
	if diff := cmp.Diff(want, messages(got)); diff != "" {
		t.Fatalf("agent fallback (-want +got):\n%s", diff)
	}
}

// TestResolveKnownAgentWithoutTopics 验证目录中的元信息优先于调用方传入的值。
func TestResolveKnownAgentWithoutTopics(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(model.Agent{ID: "nav", Title: "Stale"}, 3)

	if len(got) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got))
	}
	if !strings.Contains(got[0].Message, "NAV Calendar") {
		t.Fatalf("expected catalog title in question, got %q", got[0].Message)
	}
	if got[2].Message != "Your next NAV deadline is in 5 days." {
		t.Fatalf("expected example response, got %q", got[2].Message)
	}
}

func TestResolveEmptyTopicFallsBackToDefault(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(model.Agent{ID: "hollow"}, 0)
	if got[0].Message != defaultQuestion {
		t.Fatalf("expected default script, got %q", got[0].Message)
	}
}

// TestResolveIsTotal 验证任意输入都得到非空剧本。
func TestResolveIsTotal(t *testing.T) {
	r := newTestResolver(t)
	nilSource := NewResolver(nil, log.New(io.Discard, "", 0))

	for _, id := range []string{"cim", "hollow", "nav", "ghost-agent", ""} {
		for _, idx := range []int{-100, -1, 0, 1, 2, 99} {
			if len(r.Resolve(model.Agent{ID: id}, idx)) == 0 {
				t.Fatalf("empty script for agent=%q index=%d", id, idx)
			}
			if len(nilSource.Resolve(model.Agent{ID: id}, idx)) == 0 {
				t.Fatalf("empty script without source for agent=%q index=%d", id, idx)
			}
		}
	}
}
