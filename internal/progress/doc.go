// Package progress persists per-unit learning progress.
//
// All records live in one JSON blob stored under a fixed namespace key:
//
//	{ "<level>": { "<unit>": { "cursor": 3, "finished": false } } }
//
// Writes merge into the blob and never drop sibling levels, units or unknown
// keys. Reads treat a missing or malformed blob as "no saved progress".
package progress
