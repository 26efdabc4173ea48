// Package jsonutil holds JSON helpers shared by the message file codec and
// model response parsing.
package jsonutil

import (
	"bytes"
	"encoding/json"
)

// MarshalIndent encodes v with two-space indentation and without escaping
// <, > and & as \u003c-style sequences. The output ends with a newline.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalFlex decodes raw into v with best effort:
// 1) direct unmarshal
// 2) strip a Markdown code fence around the payload
// 3) unwrap a JSON document that was encoded as a JSON string
func UnmarshalFlex(raw []byte, v any) error {
	firstErr := json.Unmarshal(raw, v)
	if firstErr == nil {
		return nil
	}
	if inner, ok := stripFence(raw); ok {
		if err := json.Unmarshal(inner, v); err == nil {
			return nil
		}
		raw = inner
	}
	var s string
	if err := json.Unmarshal(bytes.TrimSpace(raw), &s); err == nil {
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return nil
		}
	}
	return firstErr
}

func stripFence(raw []byte) ([]byte, bool) {
	t := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(t, []byte("```")) || !bytes.HasSuffix(t, []byte("```")) || len(t) < 6 {
		return nil, false
	}
	t = t[3 : len(t)-3]
	// Drop the info string ("json") on the opening line.
	if i := bytes.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		return nil, false
	}
	return bytes.TrimSpace(t), true
}
