package models

import "time"

// BookingEquipment строка инвентаря внутри бронирования
type BookingEquipment struct {
	EquipmentID int64 `json:"equipment_id"`
	Quantity    int64 `json:"quantity"`
}

type Booking struct {
	ID        int64              `json:"id"`
	Reference string             `json:"reference"`
	UserID    int64              `json:"user_id"`
	Date      time.Time          `json:"date"`
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	CourtID   int64              `json:"court_id"`
	Equipment []BookingEquipment `json:"equipment,omitempty"`
	CoachID   int64              `json:"coach_id,omitempty"` // 0 = no coach
	Pricing   *Breakdown         `json:"pricing,omitempty"`
	Status    string             `json:"status"` // confirmed, cancelled, completed
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Breakdown замороженный расчет стоимости на момент создания брони
type Breakdown struct {
	CourtCharge      float64           `json:"court_charge"`
	EquipmentCharges []EquipmentCharge `json:"equipment_charges,omitempty"`
	CoachCharge      float64           `json:"coach_charge"`
	AppliedRules     []AppliedRule     `json:"applied_rules,omitempty"`
	Subtotal         float64           `json:"subtotal"`
	Total            float64           `json:"total"`
}

type EquipmentCharge struct {
	EquipmentID   int64   `json:"equipment_id"`
	EquipmentName string  `json:"equipment_name"`
	Quantity      int64   `json:"quantity"`
	Rate          float64 `json:"rate"`
	Total         float64 `json:"total"`
}

type AppliedRule struct {
	RuleName string   `json:"rule_name"`
	Kind     RuleKind `json:"kind"`
	Value    float64  `json:"value"`
	Impact   float64  `json:"impact"`
}
