// Package ratelimit decides whether a user may perform an action right now.
//
// Check is a pure function of the user row, the action class, the resolved
// settings and the clock. It never writes: the caller stamps the record (see
// service.UserService.Stamp) once the action is admitted.
package ratelimit

import (
	"time"

	"github.com/sakif/rpg-bot/internal/model"
)

// Reason explains a denial. The zero value means the action was admitted.
type Reason int

// Denial reasons, listed in priority order.
const (
	Admitted Reason = iota
	Banned
	AttemptsExhausted
	Cooldown
)

func (r Reason) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case Banned:
		return "banned"
	case AttemptsExhausted:
		return "attempts_exhausted"
	case Cooldown:
		return "cooldown"
	}
	return "unknown"
}

// Decision is the outcome of Check.
type Decision struct {
	Reason Reason
	// Remaining is the rest of the cooldown, in whole seconds. Only set for
	// Cooldown.
	Remaining time.Duration
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool {
	return d.Reason == Admitted
}

// Check applies the admission predicate
//
//	(no record OR now >= last + delay) AND attempts < maximum AND NOT banned
//
// and, on denial, picks the reason by priority: banned, then attempts
// exhausted, then cooldown.
func Check(user *model.User, kind model.RecordKind, settings model.Settings, now time.Time) Decision {
	if user.IsBan {
		return Decision{Reason: Banned}
	}
	if user.Attempts >= user.AttemptsMaximum {
		return Decision{Reason: AttemptsExhausted}
	}

	last := user.LastRecord(kind)
	if last == nil {
		return Decision{Reason: Admitted}
	}

	// Records are stored in whole seconds; compare at the same precision so
	// the reported remainder is exact.
	next := last.Truncate(time.Second).Add(settings.Delay(kind).Truncate(time.Second))
	now = now.Truncate(time.Second)
	if !now.Before(next) {
		return Decision{Reason: Admitted}
	}
	return Decision{Reason: Cooldown, Remaining: next.Sub(now)}
}
