package catalog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"kairos-demo/server/internal/model"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackReply 是手动输入时智能体没有配置示例回复的兜底台词。
const DefaultFallbackReply = "Thank you for your question. I'm processing your request and will provide detailed analysis shortly."

// Entry 是某个智能体归一化后的数据：元信息 + 有序话题列表。
type Entry struct {
	Agent  model.Agent
	Topics []model.Topic
}

// Catalog 是只读的智能体/剧本目录。加载完成后不再修改，可并发读取。
type Catalog struct {
	entries       []Entry
	byID          map[string]int
	fallbackReply string
}

// fileFormat 是目录文件的 YAML 结构。
// 智能体的剧本可以平铺（topics）也可以分组（groups → topics），加载时统一成平铺。
type fileFormat struct {
	FallbackReply string       `yaml:"fallback_reply"`
	Agents        []agentEntry `yaml:"agents"`
}

type agentEntry struct {
	model.Agent `yaml:",inline"`
	Topics      []model.Topic `yaml:"topics"`
	Groups      []topicGroup  `yaml:"groups"`
}

type topicGroup struct {
	Name   string        `yaml:"name"`
	Topics []model.Topic `yaml:"topics"`
}

// ValidationError 描述目录中某一处不合法的数据。
type ValidationError struct {
	Agent  string
	Topic  string
	Turn   int
	Reason string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("catalog: agent ")
	sb.WriteString(e.Agent)
	if e.Topic != "" {
		fmt.Fprintf(&sb, " topic %s", e.Topic)
		if e.Turn >= 0 {
			fmt.Fprintf(&sb, " turn %d", e.Turn)
		}
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	return sb.String()
}

// Load 从指定路径加载目录。
func Load(path string, logger *log.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, logger)
}

// Parse 解析并校验目录内容。
func Parse(data []byte, logger *log.Logger) (*Catalog, error) {
	if logger == nil {
		logger = log.Default()
	}

	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		byID:          make(map[string]int, len(file.Agents)),
		fallbackReply: strings.TrimSpace(file.FallbackReply),
	}
	if c.fallbackReply == "" {
		c.fallbackReply = DefaultFallbackReply
	}

	for _, a := range file.Agents {
		if a.ID == "" {
			return nil, &ValidationError{Agent: "<empty>", Turn: -1, Reason: "id is required"}
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, &ValidationError{Agent: a.ID, Turn: -1, Reason: "duplicate agent id"}
		}

		topics := a.Topics
		if len(topics) == 0 && len(a.Groups) > 0 {
			// 分组结构：只取第一组，目前的数据每个智能体只有一组。
			topics = a.Groups[0].Topics
			if len(a.Groups) > 1 {
				logger.Printf("[Catalog] ⚠️  agent %s has %d groups, only %q is used", a.ID, len(a.Groups), a.Groups[0].Name)
			}
		} else if len(topics) > 0 && len(a.Groups) > 0 {
			logger.Printf("[Catalog] ⚠️  agent %s declares both topics and groups, groups ignored", a.ID)
		}

		for _, topic := range topics {
			if err := validateTopic(a.ID, topic); err != nil {
				return nil, err
			}
		}

		c.byID[a.ID] = len(c.entries)
		c.entries = append(c.entries, Entry{Agent: a.Agent, Topics: topics})
	}

	return c, nil
}

func validateTopic(agentID string, topic model.Topic) error {
	if topic.Name == "" {
		return &ValidationError{Agent: agentID, Turn: -1, Reason: "topic name is required"}
	}
	for i, turn := range topic.Turns {
		if !turn.Sender.Valid() {
			return &ValidationError{Agent: agentID, Topic: topic.Name, Turn: i, Reason: fmt.Sprintf("unknown sender %q", turn.Sender)}
		}
		if turn.DelayMS != nil && *turn.DelayMS < 0 {
			return &ValidationError{Agent: agentID, Topic: topic.Name, Turn: i, Reason: "delay must not be negative"}
		}
		if turn.Message == "" && len(turn.Attachments) == 0 {
			return &ValidationError{Agent: agentID, Topic: topic.Name, Turn: i, Reason: "empty message without attachments"}
		}
		for _, att := range turn.Attachments {
			if err := att.Validate(); err != nil {
				return &ValidationError{Agent: agentID, Topic: topic.Name, Turn: i, Reason: err.Error()}
			}
		}
	}
	return nil
}

// Lookup 返回智能体的归一化数据。
func (c *Catalog) Lookup(agentID string) (Entry, bool) {
	i, ok := c.byID[agentID]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Agents 按声明顺序返回所有智能体。
func (c *Catalog) Agents() []model.Agent {
	out := make([]model.Agent, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Agent
	}
	return out
}

func (c *Catalog) FallbackReply() string {
	return c.fallbackReply
}

// Holder 持有当前生效的目录，支持热更新时原子替换。
type Holder struct {
	current atomic.Pointer[Catalog]
}

func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Swap 替换目录并返回旧值。
func (h *Holder) Swap(c *Catalog) *Catalog {
	return h.current.Swap(c)
}

func (h *Holder) Lookup(agentID string) (Entry, bool) {
	return h.Current().Lookup(agentID)
}

func (h *Holder) FallbackReply() string {
	return h.Current().FallbackReply()
}
