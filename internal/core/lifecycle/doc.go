// Package lifecycle classifies findings along their handling lifecycle.
//
// # Stages
//
//	OPEN ──enqueue──► QUEUED ──execute──► PENDING ──(5 min)──► CONFIRMED
//	  │                 │                    │
//	  └──mark handled───┴────────────────────┘
//	                  undo (PENDING only) ──► OPEN
//
// A handled finding stays PENDING while now-handledAt is strictly below the
// undo window. At exactly the window it is CONFIRMED. The same cut-off
// (Policy.HandledAfter) drives listing and the undo endpoint so what the
// operator sees as undoable is what the store accepts.
package lifecycle
