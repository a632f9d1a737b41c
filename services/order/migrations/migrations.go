// Package migrations goose миграции order координатора, встроенные в бинарник
package migrations

import "embed"

// FS содержит *.sql миграции
//
//go:embed *.sql
var FS embed.FS
