package catalog

import (
	"context"
	"errors"
	"fmt"

	"courtbook/internal/models"
)

var ErrNotFound = errors.New("resource not found")

// Provider источник справочника ресурсов. Управление справочником (CRUD)
// живет вне движка; провайдер лишь отдает текущее состояние ресурса по ID.
type Provider interface {
	Court(ctx context.Context, id int64) (models.Court, error)
	Equipment(ctx context.Context, id int64) (models.Equipment, error)
	Coach(ctx context.Context, id int64) (models.Coach, error)
	Courts(ctx context.Context) ([]models.Court, error)
	EquipmentList(ctx context.Context) ([]models.Equipment, error)
	Coaches(ctx context.Context) ([]models.Coach, error)
	ActiveRules(ctx context.Context) ([]models.PricingRule, error)
}

// StaticProvider справочник, загруженный из конфигурации при старте.
type StaticProvider struct {
	courts    map[int64]models.Court
	equipment map[int64]models.Equipment
	coaches   map[int64]models.Coach

	courtList     []models.Court
	equipmentList []models.Equipment
	coachList     []models.Coach
	rules         []models.PricingRule
}

func NewStaticProvider(courts []models.Court, equipment []models.Equipment, coaches []models.Coach, rules []models.PricingRule) *StaticProvider {
	p := &StaticProvider{
		courts:        make(map[int64]models.Court, len(courts)),
		equipment:     make(map[int64]models.Equipment, len(equipment)),
		coaches:       make(map[int64]models.Coach, len(coaches)),
		courtList:     courts,
		equipmentList: equipment,
		coachList:     coaches,
		rules:         rules,
	}
	for _, court := range courts {
		p.courts[court.ID] = court
	}
	for _, item := range equipment {
		p.equipment[item.ID] = item
	}
	for _, coach := range coaches {
		p.coaches[coach.ID] = coach
	}
	return p
}

func (p *StaticProvider) Court(ctx context.Context, id int64) (models.Court, error) {
	court, ok := p.courts[id]
	if !ok {
		return models.Court{}, fmt.Errorf("court %d: %w", id, ErrNotFound)
	}
	return court, nil
}

func (p *StaticProvider) Equipment(ctx context.Context, id int64) (models.Equipment, error) {
	item, ok := p.equipment[id]
	if !ok {
		return models.Equipment{}, fmt.Errorf("equipment %d: %w", id, ErrNotFound)
	}
	return item, nil
}

func (p *StaticProvider) Coach(ctx context.Context, id int64) (models.Coach, error) {
	coach, ok := p.coaches[id]
	if !ok {
		return models.Coach{}, fmt.Errorf("coach %d: %w", id, ErrNotFound)
	}
	return coach, nil
}

func (p *StaticProvider) Courts(ctx context.Context) ([]models.Court, error) {
	return p.courtList, nil
}

func (p *StaticProvider) EquipmentList(ctx context.Context) ([]models.Equipment, error) {
	return p.equipmentList, nil
}

func (p *StaticProvider) Coaches(ctx context.Context) ([]models.Coach, error) {
	return p.coachList, nil
}

// ActiveRules возвращает только активные правила. Сортировку по приоритету
// выполняет движок ценообразования.
func (p *StaticProvider) ActiveRules(ctx context.Context) ([]models.PricingRule, error) {
	var active []models.PricingRule
	for _, rule := range p.rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}
