package node

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Inbound is the part of an inbound message the node looks at.
type Inbound struct {
	Topic   string
	Payload json.RawMessage
	Cancel  json.RawMessage
	Timeout json.RawMessage
}

// ParseInbound extracts the known fields from raw. Bodies that are not a
// JSON object become the payload of the default topic; text that is not JSON
// at all is taken as a JSON string.
func ParseInbound(raw []byte) Inbound {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		trimmed := bytes.TrimSpace(raw)
		if json.Valid(trimmed) {
			return Inbound{Payload: json.RawMessage(trimmed)}
		}
		quoted, _ := json.Marshal(string(raw))
		return Inbound{Payload: quoted}
	}

	in := Inbound{
		Payload: fields["payload"],
		Cancel:  fields["cancel"],
		Timeout: fields["timeout"],
	}
	in.Topic = topicKey(fields["topic"])
	return in
}

// topicKey turns a topic field into a registry key. Strings are used as is
// and non-zero numbers by their decimal text; anything else is the default
// topic.
func topicKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var topic string
	if json.Unmarshal(raw, &topic) == nil {
		return topic
	}
	var num float64
	if json.Unmarshal(raw, &num) == nil && num != 0 {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	return ""
}

// IsCancel reports whether payload or cancel is a JSON string equal to
// sentinel. Values of any other JSON type never match.
func (in Inbound) IsCancel(sentinel string) bool {
	return stringEquals(in.Payload, sentinel) || stringEquals(in.Cancel, sentinel)
}

func stringEquals(raw json.RawMessage, want string) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == want
}

// TimeoutSource tells where a resolved duration came from.
type TimeoutSource string

const (
	SourceQualified TimeoutSource = "qualified"
	SourceMessage   TimeoutSource = "message"
	SourceDefault   TimeoutSource = "default"
)

// maxSeconds keeps seconds*time.Second inside int64.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ResolveTimeout picks the countdown length for a register message:
// timeout[qualifier] when numeric, else timeout when numeric, else def.
// Values are seconds.
func ResolveTimeout(timeout json.RawMessage, qualifier string, def time.Duration) (time.Duration, TimeoutSource) {
	if qualifier != "" {
		var byQualifier map[string]json.RawMessage
		if json.Unmarshal(timeout, &byQualifier) == nil {
			if secs, ok := numericSeconds(byQualifier[qualifier]); ok {
				return time.Duration(secs) * time.Second, SourceQualified
			}
		}
	}
	if secs, ok := numericSeconds(timeout); ok {
		return time.Duration(secs) * time.Second, SourceMessage
	}
	return def, SourceDefault
}

// numericSeconds accepts a JSON number (fractions truncate toward zero) or a
// string holding a base-10 integer. Negative and out-of-range values are
// rejected.
func numericSeconds(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	var secs int64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			secs = i
		} else {
			f, err := n.Float64()
			if err != nil || f < 0 || math.IsInf(f, 0) || f >= float64(maxSeconds) {
				return 0, false
			}
			secs = int64(f)
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		secs = i
	default:
		return 0, false
	}

	if secs < 0 || secs > maxSeconds {
		return 0, false
	}
	return secs, true
}
