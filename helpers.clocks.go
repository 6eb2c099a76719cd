package main

import (
	"fmt"
	"time"
)

var _ TickerClocker = (*Clock)(nil)

// Clocker provides the current time.
type Clocker interface {
	Now() time.Time
}

// TickerClocker also hands out tickers. It satisfies zapcore.Clock.
type TickerClocker interface {
	Clocker
	NewTicker(time.Duration) *time.Ticker
}

// Clock reads the wall clock in a fixed location: UTC in production and
// the local zone otherwise.
type Clock struct {
	loc *time.Location
}

func NewClock(isProd bool) *Clock {
	if isProd {
		return &Clock{loc: time.UTC}
	}
	return &Clock{loc: time.Local}
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Clock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// Uptime renders the whole minutes elapsed since start.
func Uptime(clock Clocker, start time.Time) string {
	return fmt.Sprintf("%.0f mins", clock.Now().Sub(start).Minutes())
}
