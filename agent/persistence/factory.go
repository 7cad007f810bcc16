package persistence

import (
	"fmt"

	"gorm.io/gorm"
)

// NewSessionStore creates a SessionStore based on the configuration. db is
// only consulted for the database backend.
func NewSessionStore(config StoreConfig, db *gorm.DB) (SessionStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemorySessionStore(), nil
	case StoreTypeFile:
		return NewFileSessionStore(config)
	case StoreTypeRedis:
		return NewRedisSessionStore(config)
	case StoreTypeDatabase:
		if db == nil {
			return nil, fmt.Errorf("database session store requires a database connection")
		}
		return NewDBSessionStore(db, config.Table)
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", config.Type)
	}
}
