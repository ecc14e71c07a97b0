// Package broadcast implements the WebSocket fan-out using the actor pattern.
//
// One goroutine owns the connection map and drains a command channel (no
// mutexes). Each connection gets its own writer goroutine with a bounded send
// buffer; a closed or full writer is skipped, so one slow client never holds
// up the others.
package broadcast
