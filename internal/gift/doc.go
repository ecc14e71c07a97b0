// Package gift implements the gift reconciliation engine.
//
// The upstream redelivers the same streak with increasing cumulative counts and
// repeats the final count when the streak ends. A Reconciler turns that stream
// into deltas whose sum, once a streak is resolved, equals the final cumulative
// count reported upstream. One Reconciler exists per upstream session and is
// only ever touched from the relay actor goroutine, so it carries no locks.
package gift
