// Package auth supplies the bearer token attached to every request.
//
// # Token Sources
//
// Resolve picks, in order: the COVEN_TOKEN environment variable, the token
// from config, the configured token file, then $XDG_CONFIG_HOME/coven/token.
// File tokens are re-read on each request.
//
// # Expiry Pre-check
//
// ExpiryChecked decodes JWT tokens without verifying them and fails with
// ErrExpiredToken once the exp claim has passed, so the user gets a clear
// message instead of a 401 halfway into a stream. Opaque tokens pass through.
package auth
