// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (gift.go, upstream.go, messages.go, ...) hold shared
// types and the cross-cutting interfaces. No implementation code, just contracts.
// Keeping interfaces here prevents circular imports between adapters and the app layer.
package domain
