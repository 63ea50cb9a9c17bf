package node

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		topic   string
		payload string
	}{
		{"object", `{"topic":"door","payload":"open"}`, "door", `"open"`},
		{"no topic", `{"payload":1}`, "", `1`},
		{"numeric topic", `{"topic":7,"payload":1}`, "7", `1`},
		{"fractional topic", `{"topic":2.50,"payload":1}`, "2.5", `1`},
		{"zero topic", `{"topic":0,"payload":1}`, "", `1`},
		{"boolean topic", `{"topic":true,"payload":1}`, "", `1`},
		{"object topic", `{"topic":{"a":1},"payload":1}`, "", `1`},
		{"bare string", `"hello"`, "", `"hello"`},
		{"bare number", ` 42 `, "", `42`},
		{"array", `[1,2]`, "", `[1,2]`},
		{"not json", `hello there`, "", `"hello there"`},
		{"null", `null`, "", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ParseInbound([]byte(tt.raw))
			assert.Equal(t, tt.topic, in.Topic)
			assert.JSONEq(t, tt.payload, string(in.Payload))
		})
	}
}

func TestInbound_IsCancel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"payload matches", `{"payload":"cancel"}`, true},
		{"cancel field matches", `{"payload":"x","cancel":"cancel"}`, true},
		{"case differs", `{"payload":"Cancel"}`, false},
		{"number never matches", `{"payload":0}`, false},
		{"boolean never matches", `{"cancel":true}`, false},
		{"object never matches", `{"payload":{"cancel":"cancel"}}`, false},
		{"bare string", `"cancel"`, true},
		{"missing", `{"topic":"a"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInbound([]byte(tt.raw)).IsCancel("cancel"))
		})
	}
}

func TestInbound_IsCancelNumericSentinel(t *testing.T) {
	// The sentinel "0" only matches the string "0", not the number 0.
	assert.True(t, ParseInbound([]byte(`{"payload":"0"}`)).IsCancel("0"))
	assert.False(t, ParseInbound([]byte(`{"payload":0}`)).IsCancel("0"))
}

func TestResolveTimeout(t *testing.T) {
	const def = 30 * time.Second

	tests := []struct {
		name      string
		timeout   string
		qualifier string
		want      time.Duration
		source    TimeoutSource
	}{
		{"absent", ``, "", def, SourceDefault},
		{"number", `5`, "", 5 * time.Second, SourceMessage},
		{"numeric string", `"7"`, "", 7 * time.Second, SourceMessage},
		{"fraction truncates", `2.9`, "", 2 * time.Second, SourceMessage},
		{"zero", `0`, "", 0, SourceMessage},
		{"qualified", `{"night":600,"day":60}`, "night", 600 * time.Second, SourceQualified},
		{"qualified string", `{"night":"600"}`, "night", 600 * time.Second, SourceQualified},
		{"qualifier missing key", `{"day":60}`, "night", def, SourceDefault},
		{"qualifier non-numeric", `{"night":"late"}`, "night", def, SourceDefault},
		{"no qualifier configured", `{"night":600}`, "", def, SourceDefault},
		{"qualifier on plain number", `9`, "night", 9 * time.Second, SourceMessage},
		{"negative", `-3`, "", def, SourceDefault},
		{"negative fraction", `-0.5`, "", def, SourceDefault},
		{"negative string", `"-3"`, "", def, SourceDefault},
		{"overflow", `1e300`, "", def, SourceDefault},
		{"huge integer", `99999999999999999999`, "", def, SourceDefault},
		{"word", `"soon"`, "", def, SourceDefault},
		{"float string", `"2.5"`, "", def, SourceDefault},
		{"boolean", `true`, "", def, SourceDefault},
		{"null", `null`, "", def, SourceDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ResolveTimeout(json.RawMessage(tt.timeout), tt.qualifier, def)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, source)
		})
	}
}
