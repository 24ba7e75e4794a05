// Package migrations содержит встроенные SQL миграции схемы сюжетного сервиса.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
