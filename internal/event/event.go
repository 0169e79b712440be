// ABOUTME: Generic tagged event and the normalization of raw agent-server payloads
// ABOUTME: Unwraps {directory, payload} envelopes and drops anything without a string type

package event

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event is a normalized agent-server event.
type Event struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`

	// Raw is the normalized JSON the event was decoded from.
	Raw json.RawMessage `json:"-"`
}

// Normalize turns a raw stream payload into an Event. Payloads with a
// top-level string "type" are taken as-is. Otherwise a nested "payload"
// object with a string "type" is unwrapped, and the envelope's "directory"
// (if any) is merged into its properties. Anything else is rejected.
func Normalize(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Event{}, false
	}

	body := raw
	if root.Get("type").Type != gjson.String {
		inner := root.Get("payload")
		if !inner.IsObject() || inner.Get("type").Type != gjson.String {
			return Event{}, false
		}
		body = []byte(inner.Raw)

		if dir := root.Get("directory"); dir.Type == gjson.String {
			props := inner.Get("properties")
			switch {
			case props.Type == gjson.Null:
				if props.Exists() {
					reset, err := sjson.SetRawBytes(body, "properties", []byte(`{}`))
					if err != nil {
						return Event{}, false
					}
					body = reset
				}
			case !props.IsObject():
				return Event{}, false
			}
			merged, err := sjson.SetBytes(body, "properties.directory", dir.String())
			if err != nil {
				return Event{}, false
			}
			body = merged
		}
	}

	var wire struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Event{}, false
	}

	ev := Event{Type: wire.Type, Raw: json.RawMessage(body)}
	if gjson.GetBytes(body, "properties").IsObject() {
		if err := json.Unmarshal(wire.Properties, &ev.Properties); err != nil {
			return Event{}, false
		}
	}
	return ev, true
}

// Directory returns the project directory the event was scoped to, if the
// server sent one.
func (e Event) Directory() string {
	dir, _ := e.Properties["directory"].(string)
	return dir
}

// propertiesJSON returns the properties object as JSON.
func (e Event) propertiesJSON() []byte {
	if len(e.Raw) > 0 {
		if props := gjson.GetBytes(e.Raw, "properties"); props.IsObject() {
			return []byte(props.Raw)
		}
	}
	if e.Properties == nil {
		return []byte("{}")
	}
	data, err := json.Marshal(e.Properties)
	if err != nil {
		return []byte("{}")
	}
	return data
}
