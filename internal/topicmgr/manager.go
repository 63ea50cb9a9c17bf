package topicmgr

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Manager is the registry of known bus topics.
type Manager struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	validator *Validator
}

// NewManager creates an empty topic manager.
func NewManager() *Manager {
	return &Manager{
		entries:   make(map[string]*Entry),
		validator: NewValidator(),
	}
}

// DefineFramework builds a host-level topic.
func DefineFramework(cfg TopicConfig) Topic {
	cfg.Scope = ScopeFramework
	cfg.Module = ""
	return &TypedTopic{cfg: cfg}
}

// DefineModule builds a topic owned by cfg.Module.
func DefineModule(cfg TopicConfig) Topic {
	cfg.Scope = ScopeModule
	return &TypedTopic{cfg: cfg}
}

// Register validates topic and adds it. Registering an identical definition
// again is a no-op; a different definition under a taken name is rejected.
func (m *Manager) Register(topic Topic) error {
	if err := m.validator.ValidateDefinition(topic); err != nil {
		name := ""
		if topic != nil {
			name = topic.Name()
		}
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   name,
			Message: "topic validation failed",
			Cause:   err,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := topic.Name()
	if existing, ok := m.entries[name]; ok {
		if sameDefinition(existing.Topic, topic) {
			return nil
		}
		return &TopicError{
			Type:    ErrorDuplicateRegistration,
			Topic:   name,
			Message: fmt.Sprintf("topic already registered: %s", name),
		}
	}

	m.entries[name] = &Entry{Topic: topic, RegisteredAt: time.Now()}
	return nil
}

// MustRegister registers topic and panics on error. Meant for package-level
// topic declarations where a bad definition is a programming error.
func (m *Manager) MustRegister(topic Topic) {
	if err := m.Register(topic); err != nil {
		panic(fmt.Sprintf("failed to register topic %s: %v", topic.Name(), err))
	}
}

// Get looks a topic up by name.
func (m *Manager) Get(name string) (Topic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return entry.Topic, true
}

// MustGet returns the named topic or a TopicError.
func (m *Manager) MustGet(name string) (Topic, error) {
	topic, ok := m.Get(name)
	if !ok {
		return nil, &TopicError{
			Type:    ErrorTopicNotFound,
			Topic:   name,
			Message: fmt.Sprintf("topic not found: %s", name),
		}
	}
	return topic, nil
}

// List returns every registered topic sorted by name.
func (m *Manager) List() []Topic {
	return m.filter(func(Topic) bool { return true })
}

// ListByModule returns the topics owned by module.
func (m *Manager) ListByModule(module string) []Topic {
	return m.filter(func(t Topic) bool { return t.Module() == module })
}

// ListByScope returns the topics of one scope.
func (m *Manager) ListByScope(scope TopicScope) []Topic {
	return m.filter(func(t Topic) bool { return t.Scope() == scope })
}

// FindTopics matches names against pattern; a trailing * matches a prefix.
func (m *Manager) FindTopics(pattern string) []Topic {
	return m.filter(func(t Topic) bool { return matchesPattern(t.Name(), pattern) })
}

// Count returns the number of registered topics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Reset removes every topic (tests only).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
}

// ValidateTopicName checks a name without registering anything.
func (m *Manager) ValidateTopicName(name string) error {
	return m.validator.ValidateName(name)
}

func (m *Manager) filter(keep func(Topic) bool) []Topic {
	m.mu.RLock()
	topics := make([]Topic, 0, len(m.entries))
	for _, entry := range m.entries {
		if keep(entry.Topic) {
			topics = append(topics, entry.Topic)
		}
	}
	m.mu.RUnlock()

	sort.Slice(topics, func(i, j int) bool { return topics[i].Name() < topics[j].Name() })
	return topics
}

func sameDefinition(a, b Topic) bool {
	if a == b {
		return true
	}
	return a.Name() == b.Name() &&
		a.Module() == b.Module() &&
		a.Scope() == b.Scope() &&
		a.Description() == b.Description() &&
		a.Example() == b.Example() &&
		reflect.DeepEqual(a.PayloadFields(), b.PayloadFields())
}

func matchesPattern(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return name == pattern
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the process-wide manager used by package-level topic
// declarations.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}
