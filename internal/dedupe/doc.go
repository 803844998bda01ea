// Package dedupe guards against sending the same chat message twice in a
// short window, as happens with a double-pressed send key.
//
// A Guard is keyed by Key(conversationID, text). Admit records the key and
// returns false for any repeat inside the window. Release drops a key after
// a failed send so the user can retry right away.
package dedupe
