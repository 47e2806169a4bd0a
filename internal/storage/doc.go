// Package storage provides optional persistence for the announced-event
// set so a quick restart does not re-announce events still inside the
// recency window.
//
// Two drivers: "file" (snapshot + journal, no dependencies) and "sqlite"
// (behind the sqlite build tag). Disabled storage is not an error; the
// in-memory dedup guard simply starts cold.
package storage
