// Package idgen issues opaque identifiers for boots, events and queued
// messages. Callers must not parse them.
package idgen
