package entityservice

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"entityservice/domain/repository"
	"entityservice/pkg/logger"
)

// Initializer runs once on every service the Manager creates.
type Initializer func(s *Service)

// Manager hands out one Service per entity type name, created on first use
// for any name the repository resolver knows.
type Manager struct {
	resolver     repository.Resolver
	log          *zap.Logger
	initializers []Initializer

	mu       sync.Mutex
	services map[string]*Service
}

// NewManager creates a manager over resolver. A nil logger falls back to the global one.
func NewManager(resolver repository.Resolver, l *zap.Logger, initializers ...Initializer) *Manager {
	if l == nil {
		l = logger.With()
	}
	return &Manager{
		resolver:     resolver,
		log:          l,
		initializers: initializers,
		services:     make(map[string]*Service),
	}
}

// AddInitializer registers an initializer for services created afterwards.
func (m *Manager) AddInitializer(i Initializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializers = append(m.initializers, i)
}

// Has reports whether a service can be created for name.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	_, ok := m.services[name]
	m.mu.Unlock()
	return ok || m.resolver.Has(name)
}

// Get returns the service of name, creating it on first use.
func (m *Manager) Get(name string) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.services[name]; ok {
		return s, nil
	}
	s, err := New(m.resolver, name, WithLogger(m.log))
	if err != nil {
		return nil, err
	}
	for _, init := range m.initializers {
		init(s)
	}
	m.services[name] = s
	m.log.Debug("entity service created", zap.String("entity", name))
	return s, nil
}

// Warmup creates the services of names and resolves their repositories.
func (m *Manager) Warmup(ctx context.Context, names ...string) error {
	for _, name := range names {
		s, err := m.Get(name)
		if err != nil {
			return err
		}
		if _, err := s.Repository(ctx); err != nil {
			return err
		}
	}
	return nil
}
