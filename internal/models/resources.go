package models

// Court площадка для бронирования
type Court struct {
	ID       int64   `yaml:"id" json:"id"`
	Name     string  `yaml:"name" json:"name"`
	Type     string  `yaml:"type" json:"type"` // indoor, outdoor
	BaseRate float64 `yaml:"base_rate" json:"base_rate"`
	Status   string  `yaml:"status" json:"status"` // active, maintenance, disabled
}

func (c Court) Bookable() bool {
	return c.Status == CourtActive
}

// Equipment расходный инвентарь с ограниченным количеством
type Equipment struct {
	ID            int64   `yaml:"id" json:"id"`
	Name          string  `yaml:"name" json:"name"`
	TotalQuantity int64   `yaml:"total_quantity" json:"total_quantity"`
	Rate          float64 `yaml:"rate" json:"rate"`
	Status        string  `yaml:"status" json:"status"` // available, disabled
}

func (e Equipment) Bookable() bool {
	return e.Status == EquipmentAvailable
}

// WeeklyWindow повторяющееся еженедельное окно доступности тренера
type WeeklyWindow struct {
	DayOfWeek int    `yaml:"day_of_week" json:"day_of_week"` // 0 = Sunday
	Start     string `yaml:"start" json:"start"`
	End       string `yaml:"end" json:"end"`
}

// Coach тренер с недельным расписанием
type Coach struct {
	ID           int64          `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	HourlyRate   float64        `yaml:"hourly_rate" json:"hourly_rate"`
	Status       string         `yaml:"status" json:"status"` // active, inactive
	Availability []WeeklyWindow `yaml:"availability" json:"availability"`
}

func (c Coach) Bookable() bool {
	return c.Status == CoachActive
}
