package script

import (
	"fmt"

	"kairos-demo/server/internal/model"
)

const (
	sampleMetricsTitle = "Sample Performance Metrics"

	defaultQuestion = "Tell me about your capabilities."
	defaultIdentity = "I'm an AI agent built for private equity operations. I automate research, analysis and reporting workflows so your deal and portfolio teams can focus on decisions."
	defaultExample  = "Here is a snapshot of how I typically perform across engagements."
)

func delayMS(ms int) *int { return &ms }

// SampleMetrics 是兜底剧本最后一步挂载的示例指标。
func SampleMetrics() model.Attachment {
	return model.NewMetrics(model.MetricsData{
		Title: sampleMetricsTitle,
		Metrics: []model.Metric{
			{Label: "Processing Efficiency", Value: "94%", Trend: model.TrendUp, Change: 12},
			{Label: "Accuracy Rate", Value: "96.8%", Trend: model.TrendUp, Change: 2.1},
			{Label: "Response Time", Value: "1.2s", Trend: model.TrendDown, Change: 15},
			{Label: "Client Satisfaction", Value: "4.7/5", Trend: model.TrendUp, Change: 3},
		},
	})
}

// DefaultScript 是与智能体无关的通用演示剧本。
func DefaultScript() model.Script {
	return model.Script{
		{Sender: model.SenderUser, Message: defaultQuestion, DelayMS: delayMS(1000)},
		{Sender: model.SenderAgent, Message: defaultIdentity, DelayMS: delayMS(2000)},
		{Sender: model.SenderAgent, Message: defaultExample, DelayMS: delayMS(2000), Attachments: []model.Attachment{SampleMetrics()}},
	}
}

// AgentFallback 用智能体自身的展示信息拼出三步剧本。
// 没有展示信息时退化为 DefaultScript。
func AgentFallback(agent model.Agent) model.Script {
	if !agent.HasMetadata() {
		return DefaultScript()
	}

	example := agent.ExampleResponse
	if example == "" {
		example = defaultExample
	}
	return model.Script{
		{Sender: model.SenderUser, Message: fmt.Sprintf("Tell me about your %s capabilities.", agent.Title), DelayMS: delayMS(1000)},
		{Sender: model.SenderAgent, Message: fmt.Sprintf("I'm the %s. %s", agent.Title, agent.Description), DelayMS: delayMS(2000)},
		{Sender: model.SenderAgent, Message: example, DelayMS: delayMS(2000), Attachments: []model.Attachment{SampleMetrics()}},
	}
}
