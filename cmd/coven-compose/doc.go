// Command coven-compose co-writes social posts with the compose assistant
// from the terminal.
//
//	coven-compose chat [--post-file post.md] [--conversation ID]
//	coven-compose edit post.md --start 6 --end 11 -i "make it louder"
//	coven-compose history [ID]
//	coven-compose preview post.md
//
// Configuration is read from $COVEN_COMPOSE_CONFIG or
// $XDG_CONFIG_HOME/coven/compose.yaml; the bearer token from $COVEN_TOKEN,
// auth.token, auth.token_file or $XDG_CONFIG_HOME/coven/token.
package main
