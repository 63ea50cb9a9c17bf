package topicmgr

import (
	"time"
)

// Topic is a named bus channel with documentation attached.
type Topic interface {
	// Name returns the unique bus topic name.
	Name() string

	// Module returns the owning module, empty for framework topics.
	Module() string

	Description() string

	// Example returns a sample payload.
	Example() string

	// PayloadFields lists the top-level JSON fields of the payload.
	PayloadFields() []string

	Scope() TopicScope
}

// TopicScope separates host topics from feature module topics.
type TopicScope string

const (
	ScopeFramework TopicScope = "framework"
	ScopeModule    TopicScope = "module"
)

// TopicConfig is the declaration used to build a Topic.
type TopicConfig struct {
	Name          string     `json:"name"`
	Module        string     `json:"module"`
	Scope         TopicScope `json:"scope"`
	Description   string     `json:"description"`
	Example       string     `json:"example"`
	PayloadFields []string   `json:"payload_fields"`
}

// TypedTopic is the concrete Topic produced by DefineFramework and DefineModule.
type TypedTopic struct {
	cfg TopicConfig
}

var _ Topic = (*TypedTopic)(nil)

func (t *TypedTopic) Name() string        { return t.cfg.Name }
func (t *TypedTopic) Module() string      { return t.cfg.Module }
func (t *TypedTopic) Description() string { return t.cfg.Description }
func (t *TypedTopic) Example() string     { return t.cfg.Example }
func (t *TypedTopic) Scope() TopicScope   { return t.cfg.Scope }

// PayloadFields returns a copy of the declared payload fields.
func (t *TypedTopic) PayloadFields() []string {
	fields := make([]string, len(t.cfg.PayloadFields))
	copy(fields, t.cfg.PayloadFields)
	return fields
}

// String returns the topic name.
func (t *TypedTopic) String() string {
	return t.cfg.Name
}

// Entry is a registered topic together with its registration time.
type Entry struct {
	Topic        Topic     `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ErrorType classifies a TopicError.
type ErrorType string

const (
	ErrorTopicNotFound         ErrorType = "topic_not_found"
	ErrorDuplicateRegistration ErrorType = "duplicate_registration"
	ErrorValidationFailed      ErrorType = "validation_failed"
)

// TopicError is returned by every failing Manager operation.
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

func (e *TopicError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TopicError) Unwrap() error {
	return e.Cause
}
