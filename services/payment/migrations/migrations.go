// Package migrations схема БД платёжного координатора (goose, встроена в бинарь)
package migrations

import "embed"

// FS SQL миграции goose
//
//go:embed *.sql
var FS embed.FS
