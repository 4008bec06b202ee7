// Package store persists graph definitions and run history with sqlx.
//
// The sqlite3, postgres and mysql drivers are registered; pick one with
// config.StoreConfig.Driver. MySQL DSNs need parseTime=true. Definitions
// are stored in their JSON form and decoded back through the dag codec.
package store
