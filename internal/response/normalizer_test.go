package response

import (
	"strings"
	"testing"

	"github.com/Adityatewari181/krishi-bandhu/internal/query"
)

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantSuccess   bool
		wantText      string
		wantAudioRef  string
		wantTransc    string
		wantFailure   query.FailureKind
		wantInMessage string
	}{
		{
			name:          "explicit failure with error field",
			raw:           `{"success":false,"error":"rate limit exceeded"}`,
			wantFailure:   query.FailureRemoteRejected,
			wantInMessage: "rate limit exceeded",
		},
		{
			name:          "explicit failure with message field",
			raw:           `{"success":false,"message":"invalid language"}`,
			wantFailure:   query.FailureRemoteRejected,
			wantInMessage: "invalid language",
		},
		{
			name:          "explicit failure without detail",
			raw:           `{"success":false}`,
			wantFailure:   query.FailureRemoteRejected,
			wantInMessage: "rejected",
		},
		{
			name:         "wrapped answer",
			raw:          `{"success":true,"data":{"response":"use drip irrigation","audio_url":"/a/1.mp3","transcription":"paani kaise de"}}`,
			wantSuccess:  true,
			wantText:     "use drip irrigation",
			wantAudioRef: "/a/1.mp3",
			wantTransc:   "paani kaise de",
		},
		{
			name:        "wrapped answer with empty response still matches",
			raw:         `{"success":true,"data":{"response":""}}`,
			wantSuccess: true,
			wantText:    "",
		},
		{
			name:        "wrapped answer without success flag",
			raw:         `{"data":{"response":"add compost"}}`,
			wantSuccess: true,
			wantText:    "add compost",
		},
		{
			name:        "flat response field",
			raw:         `{"response":"rotate your crops"}`,
			wantSuccess: true,
			wantText:    "rotate your crops",
		},
		{
			name:         "flat text field with audio",
			raw:          `{"text":"spray neem oil","audio_url":"/a/2.mp3"}`,
			wantSuccess:  true,
			wantText:     "spray neem oil",
			wantAudioRef: "/a/2.mp3",
		},
		{
			name:        "bare data string",
			raw:         `{"data":"harvest next week"}`,
			wantSuccess: true,
			wantText:    "harvest next week",
		},
		{
			name:        "data object with message",
			raw:         `{"data":{"message":"request queued"}}`,
			wantSuccess: true,
			wantText:    "request queued",
		},
		{
			name:        "data object with detail",
			raw:         `{"data":{"detail":"partial answer"}}`,
			wantSuccess: true,
			wantText:    "partial answer",
		},
		{
			name:        "data object with answer",
			raw:         `{"data":{"answer":"42 kg per acre"}}`,
			wantSuccess: true,
			wantText:    "42 kg per acre",
		},
		{
			name:          "unknown data object serializes",
			raw:           `{"data":{"yield_estimate":12.5}}`,
			wantSuccess:   true,
			wantInMessage: "",
			wantText:      `{"yield_estimate":12.5}`,
		},
		{
			name:          "not json",
			raw:           `<html>502 Bad Gateway</html>`,
			wantFailure:   query.FailureUnrecognizedShape,
			wantInMessage: "unrecognized shape",
		},
		{
			name:          "top level array",
			raw:           `[1,2,3]`,
			wantFailure:   query.FailureUnrecognizedShape,
			wantInMessage: "unrecognized shape",
		},
		{
			name:          "empty object",
			raw:           `{}`,
			wantFailure:   query.FailureUnrecognizedShape,
			wantInMessage: "unrecognized shape",
		},
		{
			name:          "null data is not an answer",
			raw:           `{"data":null}`,
			wantFailure:   query.FailureUnrecognizedShape,
			wantInMessage: "unrecognized shape",
		},
		{
			name:          "success true with no recognizable payload",
			raw:           `{"success":true,"status":"ok"}`,
			wantFailure:   query.FailureUnrecognizedShape,
			wantInMessage: "unrecognized shape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.raw))

			if got.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (message: %q)", got.Success, tt.wantSuccess, got.Message)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.AudioRef != tt.wantAudioRef {
				t.Errorf("AudioRef = %q, want %q", got.AudioRef, tt.wantAudioRef)
			}
			if got.Transcription != tt.wantTransc {
				t.Errorf("Transcription = %q, want %q", got.Transcription, tt.wantTransc)
			}
			if got.Failure != tt.wantFailure {
				t.Errorf("Failure = %q, want %q", got.Failure, tt.wantFailure)
			}
			if tt.wantInMessage != "" && !strings.Contains(got.Message, tt.wantInMessage) {
				t.Errorf("Message = %q, want it to contain %q", got.Message, tt.wantInMessage)
			}
			if !got.Success && got.Text != "" {
				t.Error("failed responses must not carry answer text")
			}
		})
	}
}

func TestNormalizeFailureBeatsAnswer(t *testing.T) {
	// An explicit failure wins even when a plausible answer rides along.
	raw := `{"success":false,"error":"stale session","data":{"response":"ignore me"}}`
	got := Normalize([]byte(raw))

	if got.Success {
		t.Fatal("Success = true, want false")
	}
	if got.Failure != query.FailureRemoteRejected {
		t.Errorf("Failure = %q, want RemoteRejected", got.Failure)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
	if got.Message != "stale session" {
		t.Errorf("Message = %q, want verbatim error", got.Message)
	}
}

func TestNormalizeAdvisoryTruncates(t *testing.T) {
	raw := `"` + strings.Repeat("x", 500) + `"`
	got := Normalize([]byte(raw))

	if got.Failure != query.FailureUnrecognizedShape {
		t.Fatalf("Failure = %q, want UnrecognizedShape", got.Failure)
	}
	if len(got.Message) > 250 {
		t.Errorf("advisory message is %d bytes, want it truncated", len(got.Message))
	}
}
