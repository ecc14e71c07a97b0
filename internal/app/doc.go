// Package app provides the relay actor that sits between downstream clients,
// upstream live sessions and the auction state machine.
//
// All session, reconciler and auction state is owned by one goroutine and
// mutated only through its command channel. Dialing upstream and pumping
// upstream events run in their own goroutines and report back as commands.
package app
