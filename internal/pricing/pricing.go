package pricing

import (
	"sort"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeutil"
)

// Line строка инвентаря с разрешенным снимком ресурса.
type Line struct {
	Equipment models.Equipment
	Quantity  int64
}

// Calculate считает детализированную стоимость брони. Чистая функция:
// одинаковые входы дают идентичный результат, записей не выполняется.
//
// Мультипликативные правила всегда масштабируют исходную стоимость корта,
// а не накопленный итог, поэтому правила не компаундятся между собой.
func Calculate(court models.Court, lines []Line, coach *models.Coach, rules []models.PricingRule, date time.Time, window timeutil.Window) models.Breakdown {
	duration := window.DurationHours()

	breakdown := models.Breakdown{
		CourtCharge: court.BaseRate * duration,
	}

	for _, line := range lines {
		breakdown.EquipmentCharges = append(breakdown.EquipmentCharges, models.EquipmentCharge{
			EquipmentID:   line.Equipment.ID,
			EquipmentName: line.Equipment.Name,
			Quantity:      line.Quantity,
			Rate:          line.Equipment.Rate,
			Total:         line.Equipment.Rate * float64(line.Quantity) * duration,
		})
	}

	if coach != nil {
		breakdown.CoachCharge = coach.HourlyRate * duration
	}

	breakdown.Subtotal = breakdown.CourtCharge + breakdown.CoachCharge
	for _, charge := range breakdown.EquipmentCharges {
		breakdown.Subtotal += charge.Total
	}

	total := breakdown.Subtotal
	for _, rule := range applicableRules(rules, court, date, window) {
		var impact float64
		switch rule.Kind {
		case models.RuleMultiplier:
			impact = breakdown.CourtCharge * (rule.Value - 1)
		case models.RuleAddition:
			impact = rule.Value
		}

		total += impact
		breakdown.AppliedRules = append(breakdown.AppliedRules, models.AppliedRule{
			RuleName: rule.Name,
			Kind:     rule.Kind,
			Value:    rule.Value,
			Impact:   impact,
		})
	}

	breakdown.Total = total
	return breakdown
}

// applicableRules отбирает активные подходящие правила в порядке убывания
// приоритета. Входной срез не модифицируется.
func applicableRules(rules []models.PricingRule, court models.Court, date time.Time, window timeutil.Window) []models.PricingRule {
	sorted := make([]models.PricingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active && ruleMatches(rule, court, date, window) {
			sorted = append(sorted, rule)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}

func ruleMatches(rule models.PricingRule, court models.Court, date time.Time, window timeutil.Window) bool {
	cond := rule.Conditions

	if cond.CourtType != "" && cond.CourtType != models.CourtAnyType && cond.CourtType != court.Type {
		return false
	}

	if cond.Weekend && !timeutil.IsWeekend(date) {
		return false
	}

	if len(cond.Days) > 0 {
		day := timeutil.DayOfWeek(date)
		found := false
		for _, d := range cond.Days {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Пиковое условие: старт брони попадает в [peak_start, peak_end)
	if cond.PeakStart != "" && cond.PeakEnd != "" {
		peakStart, err := timeutil.ParseClock(cond.PeakStart)
		if err != nil {
			return false
		}
		peakEnd, err := timeutil.ParseClock(cond.PeakEnd)
		if err != nil {
			return false
		}
		if window.Start < peakStart || window.Start >= peakEnd {
			return false
		}
	}

	return true
}
