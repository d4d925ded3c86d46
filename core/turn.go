package core

import (
	"fmt"
	"time"
)

const (
	// DefaultTimezone is used when a turn carries no timezone.
	DefaultTimezone = "Asia/Kolkata"
	// DefaultOffsetMinutes is the UTC offset paired with DefaultTimezone.
	DefaultOffsetMinutes = 330

	stampLayout = "02-01-2006 15:04:05"
)

// TurnConfig is the typed per-call configuration built once for every query
// and handed down to every agent of the run tree.
type TurnConfig struct {
	SessionID     string           // conversation identity
	ThreadID      string           // key for model-side memory
	Timezone      string           // IANA zone name
	OffsetMinutes int              // UTC offset used for the time stamp
	Now           func() time.Time // clock, time.Now when nil
}

// NewTurnConfig builds a TurnConfig for the given zone, resolving its current
// UTC offset. Unknown or empty zones fall back to the defaults.
func NewTurnConfig(sessionID, threadID, timezone string, now func() time.Time) TurnConfig {
	tc := TurnConfig{SessionID: sessionID, ThreadID: threadID, Timezone: timezone, Now: now}
	if tc.Now == nil {
		tc.Now = time.Now
	}
	if timezone == "" {
		tc.Timezone = DefaultTimezone
		tc.OffsetMinutes = DefaultOffsetMinutes
		return tc
	}
	off, err := TimezoneOffset(timezone, tc.Now())
	if err != nil {
		tc.Timezone = DefaultTimezone
		tc.OffsetMinutes = DefaultOffsetMinutes
		return tc
	}
	tc.OffsetMinutes = off
	return tc
}

// TimezoneOffset returns the UTC offset in minutes of zone at the given instant.
func TimezoneOffset(zone string, at time.Time) (int, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return 0, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	_, sec := at.In(loc).Zone()
	return sec / 60, nil
}

func (c TurnConfig) withDefaults() TurnConfig {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
		c.OffsetMinutes = DefaultOffsetMinutes
	}
	return c
}

// LocalTime returns the current wall clock shifted by the configured offset.
// It is recomputed on every call.
func (c TurnConfig) LocalTime() time.Time {
	c = c.withDefaults()
	return c.Now().UTC().Add(time.Duration(c.OffsetMinutes) * time.Minute)
}

// Stamp renders the time annotation attached to turns.
func (c TurnConfig) Stamp() string {
	c = c.withDefaults()
	return fmt.Sprintf("Today is %s. TZ=%s offset=%dm.", c.LocalTime().Format(stampLayout), c.Timezone, c.OffsetMinutes)
}

// StampMessage returns Stamp as a system message.
func (c TurnConfig) StampMessage() Message { return NewSystemMessage(c.Stamp()) }
