package appfs

import "embed"

// FS holds the SQL migrations (per dialect) and the email templates.
//
//go:embed all:migrations all:templates
var FS embed.FS
