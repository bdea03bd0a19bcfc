// Package render 把 transcript 渲染成终端文本，供 kairosd play 使用。
package render

import (
	"fmt"
	"strings"

	"kairos-demo/server/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Theme 终端配色
type Theme struct {
	User     lipgloss.Color
	Agent    lipgloss.Color
	Muted    lipgloss.Color
	Border   lipgloss.Color
	Up       lipgloss.Color
	Down     lipgloss.Color
	Info     lipgloss.Color
	Success  lipgloss.Color
	Warning  lipgloss.Color
	Critical lipgloss.Color
}

func DefaultTheme() Theme {
	return Theme{
		User:     lipgloss.Color("#2563EB"),
		Agent:    lipgloss.Color("#0F766E"),
		Muted:    lipgloss.Color("240"),
		Border:   lipgloss.Color("#3E4347"),
		Up:       lipgloss.Color("#30A46C"),
		Down:     lipgloss.Color("#E5484D"),
		Info:     lipgloss.Color("#3B82F6"),
		Success:  lipgloss.Color("#30A46C"),
		Warning:  lipgloss.Color("#E5A836"),
		Critical: lipgloss.Color("#E5484D"),
	}
}

// Renderer 渲染单条消息、附件和回放状态
type Renderer struct {
	theme Theme
	width int

	userLabel  lipgloss.Style
	agentLabel lipgloss.Style
	bubble     lipgloss.Style
	muted      lipgloss.Style
	card       lipgloss.Style
	title      lipgloss.Style
}

// New 创建渲染器，width 是气泡和卡片的最大宽度（<=0 时取 72）。
func New(theme Theme, width int) *Renderer {
	if width <= 0 {
		width = 72
	}
	return &Renderer{
		theme:      theme,
		width:      width,
		userLabel:  lipgloss.NewStyle().Bold(true).Foreground(theme.User),
		agentLabel: lipgloss.NewStyle().Bold(true).Foreground(theme.Agent),
		bubble:     lipgloss.NewStyle().Width(width).PaddingLeft(2),
		muted:      lipgloss.NewStyle().Foreground(theme.Muted),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),
		title: lipgloss.NewStyle().Bold(true),
	}
}

// Label 返回消息发送方的标签
func (r *Renderer) Label(sender model.Sender, agent model.Agent) string {
	if sender == model.SenderUser {
		return r.userLabel.Render("You")
	}
	name := agent.Title
	if name == "" {
		name = "Agent"
	}
	return r.agentLabel.Render(name)
}

// Message 渲染一条完整消息（标签、正文、附件）。
func (r *Renderer) Message(m model.Message, agent model.Agent) string {
	var b strings.Builder
	b.WriteString(r.Label(m.Sender, agent))
	b.WriteString(r.muted.Render(" · " + m.Timestamp.Format("15:04:05")))
	b.WriteString("\n")

	switch {
	case m.Streaming && m.Text == "":
		b.WriteString(r.bubble.Render(r.Thinking()))
	default:
		b.WriteString(r.bubble.Render(m.Text))
	}

	for _, a := range m.Attachments {
		b.WriteString("\n")
		b.WriteString(r.Attachment(a))
	}
	return b.String()
}

// Transcript 依次渲染全部消息
func (r *Renderer) Transcript(msgs []model.Message, agent model.Agent) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, r.Message(m, agent))
	}
	return strings.Join(parts, "\n\n")
}

// Thinking 是智能体还没有输出文字时的占位
func (r *Renderer) Thinking() string {
	return r.muted.Render("● ● ●")
}

// Status 渲染进度条和当前状态
func (r *Renderer) Status(s model.PlaybackState) string {
	const barWidth = 20
	filled := s.Progress * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("%s %3d%% %s", bar, s.Progress, s.Status)
	if s.InputBuffer != "" {
		line += r.muted.Render("  ⌨ " + s.InputBuffer)
	}
	return line
}

// Attachment 按类型渲染附件卡片
func (r *Renderer) Attachment(a model.Attachment) string {
	switch a.Kind {
	case model.AttachmentChart:
		return r.chart(a.Chart)
	case model.AttachmentTable:
		return r.table(a.Table)
	case model.AttachmentMetrics:
		return r.metrics(a.Metrics)
	case model.AttachmentAlert:
		return r.alert(a.Alert)
	}
	return r.muted.Render(fmt.Sprintf("[unsupported attachment %q]", a.Kind))
}

func (r *Renderer) chart(d *model.ChartData) string {
	labelWidth := 0
	for _, item := range d.Items {
		labelWidth = max(labelWidth, lipgloss.Width(item.Label))
	}
	barWidth := max(r.width-labelWidth-16, 10)

	lines := []string{r.title.Render(d.Title)}
	for _, item := range d.Items {
		pct := min(max(item.Percentage, 0), 100)
		n := int(pct / 100 * float64(barWidth))
		bar := lipgloss.NewStyle().Foreground(r.theme.Agent).Render(strings.Repeat("▇", n))
		label := lipgloss.NewStyle().Width(labelWidth).Render(item.Label)
		lines = append(lines, fmt.Sprintf("%s %s %s", label, bar, item.Value))
	}
	return r.card.Render(strings.Join(lines, "\n"))
}

func (r *Renderer) table(d *model.TableData) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(r.theme.Border)).
		Headers(d.Headers...).
		Rows(d.Rows...)
	return r.card.Render(r.title.Render(d.Title) + "\n" + t.String())
}

func (r *Renderer) metrics(d *model.MetricsData) string {
	lines := []string{r.title.Render(d.Title)}
	for _, m := range d.Metrics {
		lines = append(lines, fmt.Sprintf("%-28s %10s  %s", m.Label, m.Value, r.trend(m)))
	}
	return r.card.Render(strings.Join(lines, "\n"))
}

func (r *Renderer) trend(m model.Metric) string {
	switch m.Trend {
	case model.TrendUp:
		return lipgloss.NewStyle().Foreground(r.theme.Up).Render(fmt.Sprintf("▲ %g%%", m.Change))
	case model.TrendDown:
		return lipgloss.NewStyle().Foreground(r.theme.Down).Render(fmt.Sprintf("▼ %g%%", m.Change))
	default:
		return r.muted.Render("■ stable")
	}
}

func (r *Renderer) alert(d *model.AlertData) string {
	color := r.theme.Info
	icon := "ℹ"
	switch d.Level {
	case model.AlertSuccess:
		color, icon = r.theme.Success, "✔"
	case model.AlertWarning:
		color, icon = r.theme.Warning, "⚠"
	case model.AlertCritical:
		color, icon = r.theme.Critical, "✖"
	}
	style := r.card.BorderForeground(color)
	head := lipgloss.NewStyle().Bold(true).Foreground(color).Render(icon + " " + d.Title)
	return style.Render(head + "\n" + d.Message)
}
