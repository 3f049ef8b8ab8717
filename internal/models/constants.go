package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	CourtActive      = "active"
	CourtMaintenance = "maintenance"
	CourtDisabled    = "disabled"

	EquipmentAvailable = "available"
	EquipmentDisabled  = "disabled"

	CoachActive   = "active"
	CoachInactive = "inactive"
)

const (
	CourtIndoor  = "indoor"
	CourtOutdoor = "outdoor"
	CourtAnyType = "any"
)

const (
	WaitlistWaiting  = "waiting"
	WaitlistNotified = "notified"
	WaitlistExpired  = "expired"
)

const (
	// DefaultWaitlistTTL время жизни уведомления из листа ожидания
	DefaultWaitlistTTLMinutes = 30

	// DefaultSlotGranularity ширина слота в минутах
	DefaultSlotGranularityMinutes = 60

	// DefaultOpenTime / DefaultCloseTime рабочий диапазон площадки
	DefaultOpenTime  = "06:00"
	DefaultCloseTime = "23:00"

	// DefaultSweepInterval период фоновой проверки просроченных уведомлений
	DefaultSweepIntervalSeconds = 60
)

// Atomicity strategies for the booking commit path. Chosen once at startup.
const (
	AtomicityTransactional = "transactional"
	AtomicityLocking       = "locking"
	AtomicityOptimistic    = "optimistic"
)
