package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testCatalog = `
agents:
  - id: portfolio-monitor
    title: Portfolio Monitor
    description: Tracks KPIs across portfolio companies.
    groups:
      - name: quarterly
        topics:
          - name: covenants
            label: Covenant Check
            turns:
              - sender: user
                message: Any covenant issues?
              - sender: agent
                message: One watch item.
                attachments:
                  - type: alert
                    data: {level: warning, title: Leverage, message: Acme is at 5.8x}
  - id: exit-planner
    title: Exit Planner
    description: Models exit scenarios.
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAgentsCommand(t *testing.T) {
	out, err := execute(t, "agents", "--catalog", writeCatalog(t))
	if err != nil {
		t.Fatalf("agents: %v\n%s", err, out)
	}
	for _, want := range []string{"Portfolio Monitor", "[0] Covenant Check", "2 turns", "Exit Planner", "no topics"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

// TestPlayCommand_Instant 场景：--instant 下完整播放一个话题并打印最终进度
func TestPlayCommand_Instant(t *testing.T) {
	out, err := execute(t, "play", "--catalog", writeCatalog(t), "--agent", "portfolio-monitor", "--instant")
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	for _, want := range []string{"Any covenant issues?", "One watch item.", "Acme is at 5.8x", "100% completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPlayCommand_UnknownAgentPlaysDefault(t *testing.T) {
	out, err := execute(t, "play", "--catalog", writeCatalog(t), "--agent", "ghost", "--instant")
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	if !strings.Contains(out, "not in the catalog") || !strings.Contains(out, "Tell me about your capabilities.") {
		t.Fatalf("expected default script, got:\n%s", out)
	}
	if !strings.Contains(out, "Sample Performance Metrics") {
		t.Fatalf("expected sample metrics attachment, got:\n%s", out)
	}
}

func TestPlayCommand_RequiresAgent(t *testing.T) {
	if _, err := execute(t, "play", "--catalog", writeCatalog(t)); err == nil {
		t.Fatalf("expected error without --agent")
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	if _, err := execute(t, "agents", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}
