package backend

import (
	"context"

	"compteur/internal/store"
)

// Backend is the store the counter service runs against.
type Backend = store.Backend

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// PostgREST specific
	StoreURL           string
	StoreKey           string
	StoreCountersTable string
	StoreHistoryTable  string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleCountersSheetName  string
	GoogleHistorySheetName   string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// History events, sqlite and postgres only
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	PostgresBackend  BackendType = "postgres"
	PostgRESTBackend BackendType = "postgrest"
	SheetsBackend    BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, PostgRESTBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// PublishesHistory reports whether the backend emits history events when AMQP is configured.
func (bt BackendType) PublishesHistory() bool {
	return bt == SQLiteBackend || bt == PostgresBackend
}
