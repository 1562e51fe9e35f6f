package ws

import "encoding/json"

// Inbound events arrive as tagged envelopes. Each event type has its
// own payload schema, validated before dispatch; nothing downstream
// sees an unvalidated shape except new_message text, whose type check
// is a pipeline step of its own.
type envelope struct {
	Type string          `json:"type"`
	Seq  json.RawMessage `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Text json.RawMessage `json:"text,omitempty"`
}

type authPayload struct {
	AppID     *int64          `json:"app_id" validate:"required,gt=0"`
	TokenHash json.RawMessage `json:"token_hash"`
}

// tokenHash returns the hash when it was supplied as a string.
// Any other shape counts as absent, which downgrades the session to
// anonymous rather than failing the auth.
func (p authPayload) tokenHash() string {
	var s string
	if len(p.TokenHash) == 0 || json.Unmarshal(p.TokenHash, &s) != nil {
		return ""
	}
	return s
}

// parseSeq decodes the ack correlation id. present reports whether the
// field was there at all; ok whether it decoded to a number.
func parseSeq(raw json.RawMessage) (seq int64, present, ok bool) {
	if len(raw) == 0 {
		return 0, false, true
	}
	if err := json.Unmarshal(raw, &seq); err != nil {
		return 0, true, false
	}
	return seq, true, true
}
