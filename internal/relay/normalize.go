package relay

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Normalize converts an untrusted chatMessage payload into a well-typed
// ChatEvent. Each field falls back to its default independently:
// a non-string name becomes DefaultName, a non-string message becomes "",
// and a non-numeric timestamp becomes now in milliseconds since epoch.
//
// Any input is accepted, including nil, JSON null, arrays and scalars.
func Normalize(payload json.RawMessage, now time.Time) ChatEvent {
	event := ChatEvent{
		Name:      DefaultName,
		Message:   "",
		Timestamp: now.UnixMilli(),
	}

	fields := decodeFields(payload)
	if fields == nil {
		return event
	}

	if name, ok := fields["name"].(string); ok {
		event.Name = name
	}
	if message, ok := fields["message"].(string); ok {
		event.Message = message
	}
	if number, ok := fields["timestamp"].(json.Number); ok {
		if ts, ok := millis(number); ok {
			event.Timestamp = ts
		}
	}
	return event
}

// decodeFields returns nil when the payload is not a JSON object.
func decodeFields(payload json.RawMessage) map[string]any {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil
	}
	return fields
}

// millis accepts integral numbers verbatim and truncates fractional ones.
// Values outside the int64 range are rejected.
func millis(number json.Number) (int64, bool) {
	if ts, err := number.Int64(); err == nil {
		return ts, true
	}

	f, err := number.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
