// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package errutil holds helpers for oops-coded errors.
package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" when err is not an oops
// error or has no code.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}
