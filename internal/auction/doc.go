// Package auction implements the timed auction state machine: Idle or Active,
// with at most one armed deadline timer.
package auction
