package render

import (
	"fmt"
	"io"
	"sync"

	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/transcript"
)

// Printer 订阅 transcript 变更并把流式输出逐段写到终端。
type Printer struct {
	w     io.Writer
	r     *Renderer
	agent model.Agent

	mu    sync.Mutex
	shown map[string]int // 消息 ID → 已输出的字节数
}

func NewPrinter(w io.Writer, r *Renderer, agent model.Agent) *Printer {
	return &Printer{w: w, r: r, agent: agent, shown: make(map[string]int)}
}

// OnChange 可直接传给 transcript.Store.Subscribe
func (p *Printer) OnChange(c transcript.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := c.Message
	switch c.Kind {
	case transcript.ChangeAppended:
		if !m.Streaming {
			fmt.Fprintf(p.w, "%s\n\n", p.r.Message(m, p.agent))
			return
		}
		fmt.Fprintf(p.w, "%s\n  ", p.r.Label(m.Sender, p.agent))
		p.shown[m.ID] = 0
	case transcript.ChangeUpdated:
		p.flush(m)
	case transcript.ChangeFinalized:
		p.flush(m)
		fmt.Fprintln(p.w)
		for _, a := range m.Attachments {
			fmt.Fprintln(p.w, p.r.Attachment(a))
		}
		fmt.Fprintln(p.w)
		delete(p.shown, m.ID)
	case transcript.ChangeCleared:
		fmt.Fprintln(p.w, p.r.muted.Render("── transcript cleared ──"))
		clear(p.shown)
	}
}

func (p *Printer) flush(m model.Message) {
	n := p.shown[m.ID]
	if n > len(m.Text) {
		n = 0
	}
	io.WriteString(p.w, m.Text[n:])
	p.shown[m.ID] = len(m.Text)
}
