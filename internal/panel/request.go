// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package panel

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

// Request is a decoded request payload: a mapping of named fields.
type Request map[string]any

// DecodeRequest parses a JSON payload. Only a payload that is not a JSON
// object is an error; unknown or mistyped fields are left for the
// operation to reject.
func DecodeRequest(data []byte) (Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, oops.Code("PANEL_INVALID_PAYLOAD").Errorf("request payload must be a JSON object")
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, oops.Code("PANEL_INVALID_PAYLOAD").Wrap(err)
	}
	return req, nil
}

// String returns the named field when it holds a non-empty string.
// Any other value counts as missing.
func (r Request) String(field string) (string, bool) {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
