package domain

import (
	"errors"
	"fmt"
)

// ─── Error Kinds ────────────────────────────────────────────────────────────
// Callers map kinds to transport status with errors.Is. Every specific error
// below wraps exactly one kind.

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream failure")
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Lookup errors
	ErrChallengeNotFound  = fmt.Errorf("challenge %w", ErrNotFound)
	ErrCompletionNotFound = fmt.Errorf("challenge completion %w", ErrNotFound)
	ErrQuizNotFound       = fmt.Errorf("quiz %w", ErrNotFound)
	ErrJobNotFound        = fmt.Errorf("job %w", ErrNotFound)

	// Business rule violations
	ErrChallengeNotOpen = fmt.Errorf("%w: challenge is not open yet", ErrInvalidState)
	ErrChallengeExpired = fmt.Errorf("%w: challenge has expired", ErrInvalidState)
	ErrAlreadyCompleted = fmt.Errorf("%w: challenge already completed", ErrInvalidState)
	ErrCannotLeave      = fmt.Errorf("%w: cannot leave a challenge after making progress", ErrInvalidState)
	ErrTargetNotMet     = fmt.Errorf("%w: challenge target not met", ErrInvalidState)
	ErrNotAPath         = fmt.Errorf("%w: challenge has no quizzes", ErrInvalidState)
	ErrUnexpectedQuiz   = fmt.Errorf("%w: quiz is not the current quiz of this challenge", ErrInvalidState)
	ErrStepConflict     = fmt.Errorf("%w: challenge progress changed concurrently, retry", ErrInvalidState)

	// Input errors
	ErrUnknownChallengeType = fmt.Errorf("%w: unknown challenge type", ErrInvalidInput)
	ErrUnknownActivity      = fmt.Errorf("%w: unknown activity type", ErrInvalidInput)
	ErrInvalidAttempt       = fmt.Errorf("%w: attempt needs a positive question count and a score within it", ErrInvalidInput)
	ErrNonPositiveXP        = fmt.Errorf("%w: xp amount must be positive", ErrInvalidInput)

	// Collaborator errors
	ErrGeneratorUnavailable = fmt.Errorf("%w: content generator unavailable", ErrUpstream)
	ErrGeneratorBadOutput   = fmt.Errorf("%w: content generator returned an unusable quiz", ErrUpstream)
)
