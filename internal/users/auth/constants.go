// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

package auth

import "time"

// # Authentication Constraints

const (
	// VerificationCodeTTL is the duration an email verification code remains valid.
	// Short-lived (10 minutes) since codes are delivered instantly.
	VerificationCodeTTL = 10 * time.Minute

	// ResetCodeTTL is the duration a password reset code remains valid.
	// Short-lived (10 minutes) for security.
	ResetCodeTTL = 10 * time.Minute

	// CodeDigits is the number of digits in verification and reset codes.
	CodeDigits = 6
)
