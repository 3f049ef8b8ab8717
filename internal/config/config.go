package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig            `yaml:"app"`
	Database     DatabaseConfig       `yaml:"database"`
	Redis        RedisConfig          `yaml:"redis"`
	Logging      LoggingConfig        `yaml:"logging"`
	Monitoring   MonitoringConfig     `yaml:"monitoring"`
	API          APIConfig            `yaml:"api"`
	AMQP         AMQPConfig           `yaml:"amqp"`
	Booking      BookingConfig        `yaml:"booking"`
	Courts       []models.Court       `yaml:"courts"`
	Equipment    []models.Equipment   `yaml:"equipment"`
	Coaches      []models.Coach       `yaml:"coaches"`
	PricingRules []models.PricingRule `yaml:"pricing_rules"`
	Exports      ExportConfig         `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AMQPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

// BookingConfig параметры движка бронирования.
type BookingConfig struct {
	// Atomicity стратегия атомарности commit-а: transactional, locking, optimistic.
	// Выбирается один раз при старте и не меняется в рантайме.
	Atomicity          string `yaml:"atomicity"`
	SlotGranularityMin int    `yaml:"slot_granularity_minutes"`
	OpenTime           string `yaml:"open_time"`
	CloseTime          string `yaml:"close_time"`
	WaitlistTTLMin     int    `yaml:"waitlist_ttl_minutes"`
	SweepIntervalSec   int    `yaml:"sweep_interval_seconds"`
	CatalogCacheTTLSec int    `yaml:"catalog_cache_ttl_seconds"`
}

func (b BookingConfig) WaitlistTTL() time.Duration {
	return time.Duration(b.WaitlistTTLMin) * time.Minute
}

func (b BookingConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalSec) * time.Second
}

func (b BookingConfig) CatalogCacheTTL() time.Duration {
	return time.Duration(b.CatalogCacheTTLSec) * time.Second
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env опционален: в контейнере переменные приходят из окружения
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Подстановка переменных окружения в YAML до разбора
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Booking.Atomicity {
	case models.AtomicityTransactional, models.AtomicityLocking, models.AtomicityOptimistic:
	default:
		return fmt.Errorf("unknown booking.atomicity %q", c.Booking.Atomicity)
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}

	if err := ValidateCatalog(c.Courts, c.Equipment, c.Coaches); err != nil {
		return err
	}

	return ValidateRules(c.PricingRules)
}

func ValidateCatalog(courts []models.Court, equipment []models.Equipment, coaches []models.Coach) error {
	courtIDs := make(map[int64]bool)
	for _, court := range courts {
		if court.ID == 0 {
			return fmt.Errorf("court '%s' has invalid ID 0", court.Name)
		}
		if courtIDs[court.ID] {
			return fmt.Errorf("duplicate court ID found: %d", court.ID)
		}
		if court.Type != models.CourtIndoor && court.Type != models.CourtOutdoor {
			return fmt.Errorf("court '%s' has unknown type %q", court.Name, court.Type)
		}
		if court.BaseRate < 0 {
			return fmt.Errorf("court '%s' has negative base rate", court.Name)
		}
		courtIDs[court.ID] = true
	}

	equipmentIDs := make(map[int64]bool)
	for _, item := range equipment {
		if item.ID == 0 {
			return fmt.Errorf("equipment '%s' has invalid ID 0", item.Name)
		}
		if equipmentIDs[item.ID] {
			return fmt.Errorf("duplicate equipment ID found: %d", item.ID)
		}
		if item.TotalQuantity < 0 || item.Rate < 0 {
			return fmt.Errorf("equipment '%s' has negative quantity or rate", item.Name)
		}
		equipmentIDs[item.ID] = true
	}

	coachIDs := make(map[int64]bool)
	for _, coach := range coaches {
		if coach.ID == 0 {
			return fmt.Errorf("coach '%s' has invalid ID 0", coach.Name)
		}
		if coachIDs[coach.ID] {
			return fmt.Errorf("duplicate coach ID found: %d", coach.ID)
		}
		for _, slot := range coach.Availability {
			if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
				return fmt.Errorf("coach '%s' has invalid day_of_week %d", coach.Name, slot.DayOfWeek)
			}
		}
		coachIDs[coach.ID] = true
	}

	return nil
}

func ValidateRules(rules []models.PricingRule) error {
	ruleIDs := make(map[int64]bool)
	for _, rule := range rules {
		if rule.ID == 0 {
			return fmt.Errorf("pricing rule '%s' has invalid ID 0", rule.Name)
		}
		if ruleIDs[rule.ID] {
			return fmt.Errorf("duplicate pricing rule ID found: %d", rule.ID)
		}
		if !rule.Kind.Valid() {
			return fmt.Errorf("pricing rule '%s' has unknown kind %q", rule.Name, rule.Kind)
		}
		if rule.Kind == models.RuleMultiplier && rule.Value <= 0 {
			return fmt.Errorf("pricing rule '%s' has non-positive multiplier", rule.Name)
		}
		for _, day := range rule.Conditions.Days {
			if day < 0 || day > 6 {
				return fmt.Errorf("pricing rule '%s' has invalid day %d", rule.Name, day)
			}
		}
		ruleIDs[rule.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Booking.Atomicity == "" {
		c.Booking.Atomicity = models.AtomicityTransactional
	}
	if c.Booking.SlotGranularityMin == 0 {
		c.Booking.SlotGranularityMin = models.DefaultSlotGranularityMinutes
	}
	if c.Booking.OpenTime == "" {
		c.Booking.OpenTime = models.DefaultOpenTime
	}
	if c.Booking.CloseTime == "" {
		c.Booking.CloseTime = models.DefaultCloseTime
	}
	if c.Booking.WaitlistTTLMin == 0 {
		c.Booking.WaitlistTTLMin = models.DefaultWaitlistTTLMinutes
	}
	if c.Booking.SweepIntervalSec == 0 {
		c.Booking.SweepIntervalSec = models.DefaultSweepIntervalSeconds
	}
	if c.Booking.CatalogCacheTTLSec == 0 {
		c.Booking.CatalogCacheTTLSec = 300
	}

	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "courtbook.events"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// Location возвращает загруженную тайм-зону приложения.
// Валидность проверена в Validate, поэтому ошибка здесь невозможна.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
