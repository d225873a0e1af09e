// Package session хранит хранилища черновиков активных сессий мастера и удаляет брошенные.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cleanbook/internal/wizard"
)

// ErrSessionNotFound возвращается, если сессия не найдена или истекла.
var ErrSessionNotFound = errors.New("session not found")

// Persister сохраняет снимки сессий вне процесса.
type Persister interface {
	Save(ctx context.Context, id string, st wizard.State) error
	Load(ctx context.Context, id string) (wizard.State, error)
	Delete(ctx context.Context, id string) error
}

// RestoreFunc пересобирает хранилище из сохранённого снимка.
type RestoreFunc func(id string, st wizard.State) (*wizard.Store, error)

type entry struct {
	store       *wizard.Store
	lastSeen    time.Time
	unsubscribe func()
}

// Manager сопоставляет идентификаторы сессий с их хранилищами.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	ttl       time.Duration
	persister Persister
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager создаёт менеджер сессий. persister может быть nil.
func NewManager(ttl time.Duration, persister Persister, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*entry),
		ttl:       ttl,
		persister: persister,
		logger:    logger,
		now:       time.Now,
	}
}

// Put регистрирует хранилище новой сессии.
func (m *Manager) Put(id string, store *wizard.Store) {
	e := &entry{store: store, lastSeen: m.now()}
	if m.persister != nil {
		e.unsubscribe = m.watch(id, store)
	}

	m.mu.Lock()
	old := m.sessions[id]
	m.sessions[id] = e
	m.mu.Unlock()

	if old != nil && old.unsubscribe != nil {
		old.unsubscribe()
	}
}

// Get возвращает хранилище сессии. При промахе в памяти сессия восстанавливается из persister.
func (m *Manager) Get(ctx context.Context, id string, restore RestoreFunc) (*wizard.Store, error) {
	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		m.mu.Unlock()
		return e.store, nil
	}
	m.mu.Unlock()

	if m.persister == nil || restore == nil {
		return nil, ErrSessionNotFound
	}

	st, err := m.persister.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	store, err := restore(id, st)
	if err != nil {
		m.logger.Warn("discarding unrestorable session", zap.String("session", id), zap.Error(err))
		_ = m.persister.Delete(ctx, id)
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		// Другой запрос успел восстановить сессию раньше.
		e.lastSeen = m.now()
		m.mu.Unlock()
		return e.store, nil
	}
	m.mu.Unlock()

	m.Put(id, store)
	return store, nil
}

// Discard удаляет сессию: после успешной отправки или при отказе пользователя.
func (m *Manager) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	// Запись снимка, начатая до удаления, должна завершиться раньше Delete.
	if ok && e.unsubscribe != nil {
		e.unsubscribe()
	}

	if m.persister != nil {
		if err := m.persister.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return nil
}

// Len возвращает число сессий в памяти.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartJanitor запускает фоновое удаление сессий, к которым не обращались дольше TTL.
func (m *Manager) StartJanitor(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}

	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.sweep(); n > 0 {
					m.logger.Debug("expired booking sessions removed", zap.Int("count", n))
				}
			}
		}
	}()
}

func (m *Manager) sweep() int {
	deadline := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*entry
	for id, e := range m.sessions {
		if e.lastSeen.Before(deadline) {
			expired = append(expired, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
	}
	return len(expired)
}

// watch сохраняет каждый зафиксированный снимок хранилища. Возвращённая функция останавливает
// сохранение и ждёт завершения текущей записи, после неё снимки в persister не попадают.
func (m *Manager) watch(id string, store *wizard.Store) func() {
	ch, unsubscribe := store.Subscribe()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				select {
				case <-stop:
					return
				default:
				}
				if st.Submitting || st.Step == wizard.StepSubmitted {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := m.persister.Save(ctx, id, st); err != nil {
					m.logger.Warn("persist session snapshot", zap.String("session", id), zap.Error(err))
				}
				cancel()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			unsubscribe()
			<-done
		})
	}
}
