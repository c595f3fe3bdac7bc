package models

import "encoding/json"

// BackendResult maps an endpoint kind, or "<kind>_error", to its JSON payload.
type BackendResult map[string]json.RawMessage

func ErrorKey(kind string) string {
	return kind + "_error"
}

// NoCallNeededResult is returned when a performance intent resolved no endpoint kind.
func NoCallNeededResult() BackendResult {
	return BackendResult{
		"status": json.RawMessage(`"No specific API call needed"`),
	}
}

// NoDataResult replaces an absent aggregator result in assembled context.
func NoDataResult() BackendResult {
	return BackendResult{
		"status": json.RawMessage(`"No data requested or available"`),
	}
}

// ErrorPayload renders a CallError as the value stored under ErrorKey(kind).
func ErrorPayload(kind string, callErr *CallError) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{
		"endpoint": kind,
		"error":    string(callErr.Kind),
		"detail":   callErr.Detail,
	})
	return payload
}
