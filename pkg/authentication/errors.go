// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"errors"
	"fmt"
	"time"
)

// Typed session failures. The HTTP layer maps these onto the response
// taxonomy; nothing here leaks whether an email exists.
var (
	ErrNoSession          = errors.New("no session credential presented")
	ErrSessionInvalid     = errors.New("session credential is invalid")
	ErrSessionExpired     = errors.New("session expired or revoked")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrNoMembership       = errors.New("no active membership in the requested organization")
	ErrNotOperator        = errors.New("impersonation requires a platform operator")
)

// LockedError reports a locked account together with the remaining
// cooldown so the caller can surface a retry hint.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// Remaining returns the cooldown left, never negative.
func (e *LockedError) Remaining(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}
