package response

import (
	"encoding/json"
	"fmt"

	"github.com/Adityatewari181/krishi-bandhu/internal/query"
)

// advisorySnippet bounds how much raw payload the unrecognized-shape
// advisory carries.
const advisorySnippet = 160

// Normalize maps a raw backend payload onto the uniform response shape.
//
// Shapes are tried strictly in this order, first match wins:
//
//  1. explicit failure: success == false
//  2. wrapped answer: data.response, with co-located audio_url and
//     transcription
//  3. flat answer: top-level response or text
//  4. bare answer: data is itself a string
//  5. message-bearing object: data.message, data.detail, or data.answer,
//     else the whole data object serialized
//  6. unrecognized shape, reported as a failure
//
// Presence is checked on the raw object, so an empty string value still
// matches its shape instead of falling through to a lower one.
func Normalize(raw []byte) *query.NormalizedResponse {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return unrecognized(raw)
	}

	if resp, ok := explicitFailure(top); ok {
		return resp
	}

	if resp, ok := wrappedAnswer(top); ok {
		return resp
	}

	if resp, ok := flatAnswer(top); ok {
		return resp
	}

	if resp, ok := bareDataString(top); ok {
		return resp
	}

	if resp, ok := messageObject(top); ok {
		return resp
	}

	return unrecognized(raw)
}

// explicitFailure handles success == false. The backend's own error text
// is carried verbatim in Message.
func explicitFailure(top map[string]json.RawMessage) (*query.NormalizedResponse, bool) {
	sv, ok := top["success"]
	if !ok {
		return nil, false
	}

	var success bool
	if err := json.Unmarshal(sv, &success); err != nil || success {
		return nil, false
	}

	message := firstString(top, "error", "message", "detail")
	if message == "" {
		message = "the backend rejected the request"
	}

	return &query.NormalizedResponse{
		Success: false,
		Failure: query.FailureRemoteRejected,
		Message: message,
	}, true
}

// wrappedAnswer handles the primary envelope: data.response plus the
// optional audio_url and transcription that ride alongside it.
func wrappedAnswer(top map[string]json.RawMessage) (*query.NormalizedResponse, bool) {
	data, ok := dataObject(top)
	if !ok {
		return nil, false
	}

	rv, ok := data["response"]
	if !ok {
		return nil, false
	}

	var text string
	if err := json.Unmarshal(rv, &text); err != nil {
		return nil, false
	}

	return &query.NormalizedResponse{
		Success:       true,
		Text:          text,
		AudioRef:      firstString(data, "audio_url"),
		Transcription: firstString(data, "transcription"),
	}, true
}

// flatAnswer handles envelopes that put the answer at the top level.
func flatAnswer(top map[string]json.RawMessage) (*query.NormalizedResponse, bool) {
	for _, key := range []string{"response", "text"} {
		rv, ok := top[key]
		if !ok {
			continue
		}

		var text string
		if err := json.Unmarshal(rv, &text); err != nil {
			continue
		}

		return &query.NormalizedResponse{
			Success:       true,
			Text:          text,
			AudioRef:      firstString(top, "audio_url"),
			Transcription: firstString(top, "transcription"),
		}, true
	}
	return nil, false
}

// bareDataString handles data being the answer itself. The pointer
// target distinguishes a real string from JSON null, which unmarshals
// into a plain string as a no-op and must not count as an answer.
func bareDataString(top map[string]json.RawMessage) (*query.NormalizedResponse, bool) {
	dv, ok := top["data"]
	if !ok {
		return nil, false
	}

	var text *string
	if err := json.Unmarshal(dv, &text); err != nil || text == nil {
		return nil, false
	}

	return &query.NormalizedResponse{Success: true, Text: *text}, true
}

// messageObject handles a data object with no response field. Known
// message-like keys are preferred; otherwise the whole object serializes
// so the information is not silently dropped.
func messageObject(top map[string]json.RawMessage) (*query.NormalizedResponse, bool) {
	data, ok := dataObject(top)
	if !ok {
		return nil, false
	}

	if text := firstString(data, "message", "detail", "answer"); text != "" {
		return &query.NormalizedResponse{Success: true, Text: text}, true
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}

	return &query.NormalizedResponse{Success: true, Text: string(serialized)}, true
}

func unrecognized(raw []byte) *query.NormalizedResponse {
	snippet := string(raw)
	if len(snippet) > advisorySnippet {
		snippet = snippet[:advisorySnippet] + "..."
	}

	return &query.NormalizedResponse{
		Success: false,
		Failure: query.FailureUnrecognizedShape,
		Message: fmt.Sprintf("the backend answered in an unrecognized shape: %s", snippet),
	}
}

func dataObject(top map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	dv, ok := top["data"]
	if !ok {
		return nil, false
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(dv, &data); err != nil || data == nil {
		return nil, false
	}
	return data, true
}

// firstString returns the first of the named keys that holds a non-empty
// JSON string.
func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		rv, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(rv, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
