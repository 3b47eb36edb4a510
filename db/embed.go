// Package db embeds the pricing schema: stores, catalog, discounts with
// their scope links, orders, redemptions and API keys.
package db

import _ "embed"

// Schema is applied on every start. All statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
