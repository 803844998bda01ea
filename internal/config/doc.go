// Package config handles loading and validating coven-compose configuration.
//
// # Configuration File
//
// The client reads a YAML (or, for files ending in .toml, TOML) configuration
// file. Location priority:
//
//  1. COVEN_COMPOSE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/compose.yaml
//  3. ~/.config/coven/compose.yaml
//
// # Configuration Structure
//
//	server:
//	  base_url: "https://compose.example.com"
//	  chat_stream_path: "/api/chat/stream"
//	  edit_stream_path: "/api/posts/edit-selection/stream"
//	  draft_path: "/api/posts/{id}/draft"
//	  history_path: "/api/conversations/{id}"
//
//	auth:
//	  token: "${COVEN_TOKEN}"
//	  token_file: ""
//
//	database:
//	  path: "~/.local/share/coven/compose.db"
//
//	chat:
//	  tools: ["edit_content"]
//	  duplicate_window: "2s"
//
//	editor:
//	  delete_interval: "15ms"
//
//	preview:
//	  max_length: 3000
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
//
// # Environment Variable Expansion
//
// Values can reference environment variables using ${VAR} syntax. Unset
// variables expand to the empty string.
//
// # Durations
//
// Duration fields are written as Go duration strings ("15ms", "2s") and are
// parsed after unmarshaling. An explicit "0s" disables the corresponding
// behaviour instead of falling back to the default.
package config
