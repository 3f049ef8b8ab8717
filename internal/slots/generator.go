package slots

import (
	"context"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/models"
	"courtbook/internal/timeutil"
)

// Slot кандидатное окно с аннотацией доступности. Флаги причин независимы,
// чтобы вызывающая сторона могла объяснить, чем именно занят слот.
type Slot struct {
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Available bool    `json:"available"`
	Reasons   Reasons `json:"reasons"`
}

type Reasons struct {
	Court     bool `json:"court"`
	Equipment bool `json:"equipment"`
	Coach     bool `json:"coach"`
}

type Generator struct {
	checker     *availability.Checker
	clock       timeutil.Clock
	granularity int // минуты
	operating   timeutil.Window
}

func NewGenerator(checker *availability.Checker, clock timeutil.Clock, granularityMinutes int, operating timeutil.Window) *Generator {
	if granularityMinutes <= 0 {
		granularityMinutes = models.DefaultSlotGranularityMinutes
	}
	return &Generator{
		checker:     checker,
		clock:       clock,
		granularity: granularityMinutes,
		operating:   operating,
	}
}

// List перечисляет слоты фиксированной ширины на дату. Для сегодняшней даты
// слоты, начинающиеся не позже текущего времени, не возвращаются вовсе.
// Результат строится заново при каждом вызове, без кэширования.
func (g *Generator) List(ctx context.Context, date time.Time, courtID int64, equipment []models.BookingEquipment, coachID int64) ([]Slot, error) {
	now := g.clock.Now()
	isToday := timeutil.SameDay(now, date)
	nowMinutes := timeutil.MinutesOfDay(now)

	var result []Slot
	for start := g.operating.Start; start+g.granularity <= g.operating.End; start += g.granularity {
		if isToday && start <= nowMinutes {
			continue
		}

		window := timeutil.Window{Start: start, End: start + g.granularity}
		check, err := g.checker.Check(ctx, availability.Request{
			Date:      date,
			Window:    window,
			CourtID:   courtID,
			Equipment: equipment,
			CoachID:   coachID,
		})
		if err != nil {
			return nil, err
		}

		slot := Slot{
			Start:     window.StartClock(),
			End:       window.EndClock(),
			Available: check.Available,
		}
		for _, conflict := range check.Conflicts {
			switch conflict.Kind {
			case availability.KindCourt:
				slot.Reasons.Court = true
			case availability.KindEquipment:
				slot.Reasons.Equipment = true
			case availability.KindCoach:
				slot.Reasons.Coach = true
			}
		}
		result = append(result, slot)
	}

	return result, nil
}
