package models

import "time"

type lockKind int

const (
	lockNone lockKind = iota
	lockUntil
	lockIndefinite
)

// LockState is either Unlocked, LockedUntil(t) or LockedIndefinitely.
// The zero value is Unlocked.
type LockState struct {
	kind  lockKind
	until time.Time
}

func Unlocked() LockState { return LockState{} }

func LockedUntil(t time.Time) LockState { return LockState{kind: lockUntil, until: t} }

func LockedIndefinitely() LockState { return LockState{kind: lockIndefinite} }

func (s LockState) Locked() bool { return s.kind != lockNone }

// Until returns the lock expiry; ok is false when unlocked or locked with no expiry
func (s LockState) Until() (time.Time, bool) {
	if s.kind != lockUntil {
		return time.Time{}, false
	}
	return s.until, true
}

func (s LockState) String() string {
	switch s.kind {
	case lockUntil:
		return "locked_until:" + s.until.UTC().Format(time.RFC3339)
	case lockIndefinite:
		return "locked"
	default:
		return "unlocked"
	}
}
