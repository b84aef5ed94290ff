// Package db embeds the cafe database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for menu, customers, orders and login
// tokens. It is applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
