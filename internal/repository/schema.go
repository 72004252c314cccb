package repository

import _ "embed"

// Schema is the idempotent DDL for the Postgres driver
//
//go:embed schema.sql
var Schema string
