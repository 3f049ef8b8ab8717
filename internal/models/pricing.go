package models

import "fmt"

// RuleKind закрытый набор видов правил ценообразования.
// Неизвестный вид отклоняется при загрузке конфигурации, а не игнорируется.
type RuleKind string

const (
	RuleMultiplier RuleKind = "multiplier"
	RuleAddition   RuleKind = "addition"
)

func (k RuleKind) Valid() bool {
	return k == RuleMultiplier || k == RuleAddition
}

func (k *RuleKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	kind := RuleKind(raw)
	if !kind.Valid() {
		return fmt.Errorf("unknown pricing rule kind: %q", raw)
	}
	*k = kind
	return nil
}

// RuleConditions условия применимости правила. Пустое поле означает "не проверяется".
type RuleConditions struct {
	CourtType string `yaml:"court_type" json:"court_type"` // any, indoor, outdoor
	Weekend   bool   `yaml:"weekend" json:"weekend"`
	Days      []int  `yaml:"days" json:"days,omitempty"` // 0 = Sunday
	PeakStart string `yaml:"peak_start" json:"peak_start,omitempty"`
	PeakEnd   string `yaml:"peak_end" json:"peak_end,omitempty"`
}

type PricingRule struct {
	ID         int64          `yaml:"id" json:"id"`
	Name       string         `yaml:"name" json:"name"`
	Kind       RuleKind       `yaml:"kind" json:"kind"`
	Value      float64        `yaml:"value" json:"value"`
	Conditions RuleConditions `yaml:"conditions" json:"conditions"`
	Priority   int            `yaml:"priority" json:"priority"`
	Active     bool           `yaml:"active" json:"active"`
}
