// Package autosave governs when local Document edits are flushed to the
// server.
//
// # States
//
//	saved ──edit──▶ unsaved ──Save──▶ saving ──ok──▶ saved
//	                   ▲                  │
//	                   │                  └─fail─▶ error
//	                   └──edit or Save─────────────┘
//
// error never returns to saved without going through unsaved and saving.
// Edits made by the edit_content tool are a new baseline and do not mark
// the draft unsaved. A save that finishes after the Document changed moves
// straight on to unsaved.
//
// Only one save runs at a time. A second Save while one is in flight gets
// ErrSaveInFlight; callers trigger it again later.
package autosave
