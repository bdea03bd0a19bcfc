package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AttachmentKind 是附件的类型标签（闭合集合）。
type AttachmentKind string

const (
	AttachmentChart   AttachmentKind = "chart"
	AttachmentTable   AttachmentKind = "table"
	AttachmentMetrics AttachmentKind = "metrics"
	AttachmentAlert   AttachmentKind = "alert"
)

// Trend 是指标的变化方向。
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// AlertLevel 是提醒卡片的严重程度。
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertSuccess  AlertLevel = "success"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type ChartItem struct {
	Label      string  `json:"label" yaml:"label"`
	Value      string  `json:"value" yaml:"value"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

type ChartData struct {
	Title string      `json:"title" yaml:"title"`
	Items []ChartItem `json:"items" yaml:"items"`
}

type TableData struct {
	Title   string     `json:"title" yaml:"title"`
	Headers []string   `json:"headers" yaml:"headers"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

type Metric struct {
	Label  string  `json:"label" yaml:"label"`
	Value  string  `json:"value" yaml:"value"`
	Trend  Trend   `json:"trend,omitempty" yaml:"trend,omitempty"`
	Change float64 `json:"change" yaml:"change"`
}

type MetricsData struct {
	Title   string   `json:"title" yaml:"title"`
	Metrics []Metric `json:"metrics" yaml:"metrics"`
}

type AlertData struct {
	Level   AlertLevel `json:"level" yaml:"level"`
	Title   string     `json:"title" yaml:"title"`
	Message string     `json:"message" yaml:"message"`
}

// Attachment 是随智能体消息展示的结构化载荷。
// 只有与 Kind 对应的那个字段非空；核心逻辑不解释内容，只负责透传。
type Attachment struct {
	Kind    AttachmentKind
	Chart   *ChartData
	Table   *TableData
	Metrics *MetricsData
	Alert   *AlertData
}

func NewChart(d ChartData) Attachment     { return Attachment{Kind: AttachmentChart, Chart: &d} }
func NewTable(d TableData) Attachment     { return Attachment{Kind: AttachmentTable, Table: &d} }
func NewMetrics(d MetricsData) Attachment { return Attachment{Kind: AttachmentMetrics, Metrics: &d} }
func NewAlert(d AlertData) Attachment     { return Attachment{Kind: AttachmentAlert, Alert: &d} }

var errEmptyPayload = errors.New("attachment payload is empty")

// Validate 检查标签与载荷是否一致。
func (a Attachment) Validate() error {
	set := 0
	for _, p := range []bool{a.Chart != nil, a.Table != nil, a.Metrics != nil, a.Alert != nil} {
		if p {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("attachment %q carries %d payloads", a.Kind, set)
	}

	switch a.Kind {
	case AttachmentChart:
		if a.Chart == nil {
			return errEmptyPayload
		}
	case AttachmentTable:
		if a.Table == nil {
			return errEmptyPayload
		}
		for i, row := range a.Table.Rows {
			if len(a.Table.Headers) > 0 && len(row) != len(a.Table.Headers) {
				return fmt.Errorf("table row %d has %d cells, want %d", i, len(row), len(a.Table.Headers))
			}
		}
	case AttachmentMetrics:
		if a.Metrics == nil {
			return errEmptyPayload
		}
		for i, m := range a.Metrics.Metrics {
			switch m.Trend {
			case "", TrendUp, TrendDown, TrendStable:
			default:
				return fmt.Errorf("metric %d has unknown trend %q", i, m.Trend)
			}
		}
	case AttachmentAlert:
		if a.Alert == nil {
			return errEmptyPayload
		}
		switch a.Alert.Level {
		case AlertInfo, AlertSuccess, AlertWarning, AlertCritical:
		default:
			return fmt.Errorf("alert has unknown level %q", a.Alert.Level)
		}
	default:
		return fmt.Errorf("unknown attachment type %q", a.Kind)
	}
	return nil
}

func (a Attachment) payload() any {
	switch a.Kind {
	case AttachmentChart:
		return a.Chart
	case AttachmentTable:
		return a.Table
	case AttachmentMetrics:
		return a.Metrics
	case AttachmentAlert:
		return a.Alert
	}
	return nil
}

func (a *Attachment) allocate(kind AttachmentKind) (any, error) {
	*a = Attachment{Kind: kind}
	switch kind {
	case AttachmentChart:
		a.Chart = &ChartData{}
		return a.Chart, nil
	case AttachmentTable:
		a.Table = &TableData{}
		return a.Table, nil
	case AttachmentMetrics:
		a.Metrics = &MetricsData{}
		return a.Metrics, nil
	case AttachmentAlert:
		a.Alert = &AlertData{}
		return a.Alert, nil
	}
	return nil, fmt.Errorf("unknown attachment type %q", kind)
}

type attachmentWire struct {
	Type AttachmentKind  `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON 输出 {"type": ..., "data": ...}，与前端渲染约定一致。
func (a Attachment) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(a.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(attachmentWire{Type: a.Kind, Data: data})
}

func (a *Attachment) UnmarshalJSON(b []byte) error {
	var wire attachmentWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	target, err := a.allocate(wire.Type)
	if err != nil {
		return err
	}
	if len(wire.Data) == 0 || string(wire.Data) == "null" {
		return errEmptyPayload
	}
	return json.Unmarshal(wire.Data, target)
}

// MarshalYAML 与 JSON 保持同一形状，便于目录文件与接口互转。
func (a Attachment) MarshalYAML() (interface{}, error) {
	return struct {
		Type AttachmentKind `yaml:"type"`
		Data any            `yaml:"data"`
	}{Type: a.Kind, Data: a.payload()}, nil
}

func (a *Attachment) UnmarshalYAML(node *yaml.Node) error {
	var wire struct {
		Type AttachmentKind `yaml:"type"`
		Data yaml.Node      `yaml:"data"`
	}
	if err := node.Decode(&wire); err != nil {
		return err
	}
	target, err := a.allocate(wire.Type)
	if err != nil {
		return err
	}
	if wire.Data.Kind == 0 {
		return errEmptyPayload
	}
	return wire.Data.Decode(target)
}
