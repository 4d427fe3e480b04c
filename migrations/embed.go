// Package migrations embeds the wallet schema so the SQLite bootstrap and the
// integration test harness can apply it without a source checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
