// Package session defines the meeting session data model and its
// crash-tolerant SQLite persistence. The store is write-through: every
// transcript append reaches disk before the next fragment is admitted.
package session
