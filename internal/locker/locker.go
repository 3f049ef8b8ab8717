package locker

import "sync"

// KeyedLocker сериализует операции по строковому ключу ресурса.
// Используется стратегией атомарности "locking": проверка доступности и
// вставка брони выполняются под замками всех затронутых ресурсов.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *KeyedLocker) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Lock захватывает замки всех ключей в отсортированном порядке вызова.
// Ключи должны приходить уже отсортированными, иначе возможен deadlock
// между конкурентными вызовами с пересекающимися наборами.
func (l *KeyedLocker) Lock(keys ...string) func() {
	acquired := make([]*sync.Mutex, 0, len(keys))
	seen := make(map[string]bool, len(keys))

	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		m := l.lockFor(key)
		m.Lock()
		acquired = append(acquired, m)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
