// Package migrations embeds the gateway's own schema (spec.md §6's
// logical layout: sessions, session_input_queue, accounts, characters)
// for goose to apply, matching the teacher's internal/db/migrations
// embedding convention.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
