package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/nfrund/conftimeout/internal/topicmgr"
)

// Event ties a bus topic to the Go type of its payload.
type Event[T any] struct {
	topic topicmgr.Topic
}

// NewEvent defines a module topic whose payload fields are read from the json
// tags of T, and registers it with the default topic manager. Call it at
// package level: a bad definition panics at init.
func NewEvent[T any](module, name, description, example string) Event[T] {
	topic := topicmgr.DefineModule(topicmgr.TopicConfig{
		Name:          name,
		Module:        module,
		Description:   description,
		Example:       example,
		PayloadFields: jsonFields[T](),
	})
	topicmgr.Default().MustRegister(topic)
	return Event[T]{topic: topic}
}

// Name returns the bus topic name.
func (e Event[T]) Name() string {
	return e.topic.Name()
}

// Topic returns the registered topic definition.
func (e Event[T]) Topic() topicmgr.Topic {
	return e.topic
}

// Encode marshals payload as JSON into a message for the event's topic.
func Encode[T any](event Event[T], payload T) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}
	return Message{Topic: event.Name(), Payload: data}, nil
}

// Publish marshals payload as JSON and sends it on the event's topic.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}

// Decode unmarshals a message received on the event's topic.
func Decode[T any](event Event[T], msg Message) (T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", event.Name(), err)
	}
	return payload, nil
}

func jsonFields[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			fields = append(fields, name)
		}
	}
	return fields
}
