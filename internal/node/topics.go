package node

import (
	"github.com/nfrund/conftimeout/internal/pubsub"
	"github.com/nfrund/conftimeout/internal/topicmgr"
)

// ModuleName owns every topic below.
const ModuleName = "conftimeout"

var (
	// TopicInput carries inbound messages. Any JSON object is accepted; a
	// non-object body counts as the payload of the default topic.
	TopicInput = topicmgr.DefineModule(topicmgr.TopicConfig{
		Name:          "conftimeout.input",
		Module:        ModuleName,
		Description:   "Inbound messages that arm or cancel a topic countdown",
		Example:       `{"topic":"door.front","timeout":{"night":600},"payload":"opened"}`,
		PayloadFields: []string{"topic", "payload", "cancel", "timeout"},
	})

	// TopicOutput carries timeout notifications and forwarded cancel messages.
	TopicOutput = topicmgr.DefineModule(topicmgr.TopicConfig{
		Name:          "conftimeout.output",
		Module:        ModuleName,
		Description:   "Timeout notifications and unmatched cancel messages passed through unchanged",
		Example:       `{"topic":"door.front","payload":"timeout"}`,
		PayloadFields: []string{"topic", "payload"},
	})

	// EventStatus is published after every change of the armed set.
	EventStatus = pubsub.NewEvent[StatusEvent](ModuleName,
		"conftimeout.status",
		"Number of armed topics after every register, cancel, fire or shutdown",
		`{"seq":4,"activeCount":2,"state":"tracking","text":"tracking 2 topics"}`)

	// EventTrace carries debug trace lines when debug is enabled.
	EventTrace = pubsub.NewEvent[TraceEvent](ModuleName,
		"conftimeout.trace",
		"Human-readable trace of register, cancel and fire events",
		`{"line":"registered \"door.front\" for 30s","time":"2024-01-01T00:00:00Z"}`)

	// EventError reports registrations that could not be scheduled.
	EventError = pubsub.NewEvent[ErrorEvent](ModuleName,
		"conftimeout.error",
		"A countdown could not be armed",
		`{"topic":"door.front","error":"schedule countdown"}`)
)

// RegisterTopics registers the raw (untyped) topics with the default manager.
func RegisterTopics() error {
	manager := topicmgr.Default()
	for _, topic := range []topicmgr.Topic{TopicInput, TopicOutput} {
		if err := manager.Register(topic); err != nil {
			return err
		}
	}
	return nil
}
