// Package migrations embeds the SQL schema migrations so that the binary
// (and the in-memory test databases) can apply them without a checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
