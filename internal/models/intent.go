// internal/models/intent.go
package models

// IntentTag is the wire value of a classified intent.
type IntentTag string

const (
	IntentTagGeneral         IntentTag = "general_query"
	IntentTagPerformanceData IntentTag = "child_performance_data"
)

// Intent is either GeneralIntent or PerformanceIntent. The set is closed:
// consumers switch on the concrete type and treat anything else as a bug.
type Intent interface {
	Tag() IntentTag
	intent()
}

// GeneralIntent answers from reference material only. Reason is set when
// the classifier fell back to it.
type GeneralIntent struct {
	Reason string
}

func (GeneralIntent) Tag() IntentTag { return IntentTagGeneral }
func (GeneralIntent) intent()        {}

// PerformanceIntent asks for the child's learning data.
type PerformanceIntent struct {
	Detail APICallDetail
}

func (PerformanceIntent) Tag() IntentTag { return IntentTagPerformanceData }
func (PerformanceIntent) intent()        {}

// IntentEnvelope is the JSON shape exchanged between workers and returned by the API.
type IntentEnvelope struct {
	Intent         IntentTag      `json:"intent"`
	APICallDetails *APICallDetail `json:"api_call_details,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

func EncodeIntent(i Intent) IntentEnvelope {
	switch v := i.(type) {
	case PerformanceIntent:
		detail := v.Detail
		return IntentEnvelope{Intent: IntentTagPerformanceData, APICallDetails: &detail}
	case GeneralIntent:
		return IntentEnvelope{Intent: IntentTagGeneral, Reason: v.Reason}
	default:
		return IntentEnvelope{Intent: IntentTagGeneral, Reason: "unsupported intent"}
	}
}

// Decode rebuilds the union. Unknown tags and performance intents without
// details decode to GeneralIntent.
func (e IntentEnvelope) Decode() Intent {
	switch e.Intent {
	case IntentTagPerformanceData:
		if e.APICallDetails == nil {
			return GeneralIntent{Reason: "missing api_call_details"}
		}
		return PerformanceIntent{Detail: *e.APICallDetails}
	case IntentTagGeneral:
		return GeneralIntent{Reason: e.Reason}
	default:
		return GeneralIntent{Reason: "unknown intent " + string(e.Intent)}
	}
}
