package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	session     interfaces.SessionStorage
	job         interfaces.JobStorage
	application interfaces.ApplicationStorage
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManagerWithDB(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManagerWithDB(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:          db,
		session:     NewSessionStorage(db, logger),
		job:         NewJobStorage(db, logger),
		application: NewApplicationStorage(db, logger),
		logger:      logger,
	}
}

// SessionStorage returns the Session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ApplicationStorage returns the Application storage interface
func (m *Manager) ApplicationStorage() interfaces.ApplicationStorage {
	return m.application
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
