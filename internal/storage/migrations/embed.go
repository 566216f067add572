package migrations

import "embed"

// PostgresFS embeds the ledger schema migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the event analytics schema migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
