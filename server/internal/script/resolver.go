package script

import (
	"log"

	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/model"
)

// Source 提供按智能体 ID 查找剧本的能力，catalog.Catalog 与 catalog.Holder 均满足。
type Source interface {
	Lookup(agentID string) (catalog.Entry, bool)
}

// Resolver 把 (智能体, 话题序号) 映射为一份剧本。
// 保证：任何输入都返回非空剧本，从不向调用方报错。
type Resolver struct {
	source Source
	logger *log.Logger
}

func NewResolver(source Source, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve 选择剧本：
//  1. 目录中没有该智能体，或智能体没有任何话题 → 智能体兜底剧本
//  2. 话题序号越界（含负数）→ 第 0 个话题
//  3. 选中的话题没有台词 → 通用默认剧本
func (r *Resolver) Resolve(agent model.Agent, topicIndex int) model.Script {
	var (
		entry catalog.Entry
		found bool
	)
	if r.source != nil {
		entry, found = r.source.Lookup(agent.ID)
	}

	if !found {
		if agent.HasMetadata() {
			r.logger.Printf("[Resolver] agent=%s not in catalog, using agent fallback", agent.ID)
			return AgentFallback(agent)
		}
		r.logger.Printf("[Resolver] agent=%s not in catalog and has no metadata, using default script", agent.ID)
		return DefaultScript()
	}

	if len(entry.Topics) == 0 {
		r.logger.Printf("[Resolver] agent=%s has no topics, using agent fallback", agent.ID)
		return AgentFallback(mergeAgent(entry.Agent, agent))
	}

	idx := topicIndex
	if idx < 0 || idx >= len(entry.Topics) {
		r.logger.Printf("[Resolver] agent=%s topic index %d out of range (%d topics), clamped to 0", agent.ID, topicIndex, len(entry.Topics))
		idx = 0
	}

	topic := entry.Topics[idx]
	if len(topic.Turns) == 0 {
		r.logger.Printf("[Resolver] agent=%s topic=%s has no turns, using default script", agent.ID, topic.Name)
		return DefaultScript()
	}

	r.logger.Printf("[Resolver] agent=%s topic=%s (%d turns)", agent.ID, topic.Name, len(topic.Turns))
	return topic.Turns
}

// mergeAgent 以目录中的元信息为准，缺失字段用调用方传入的补齐。
func mergeAgent(stored, given model.Agent) model.Agent {
	if stored.Title == "" {
		stored.Title = given.Title
	}
	if stored.Description == "" {
		stored.Description = given.Description
	}
	if stored.ExampleResponse == "" {
		stored.ExampleResponse = given.ExampleResponse
	}
	return stored
}
