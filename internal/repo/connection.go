package repo

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"magnifiq/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectionRepository handles store connection data access
type ConnectionRepository struct {
	db *gorm.DB

	// Advisory locks are session-scoped, so each held lock keeps a
	// dedicated connection out of the pool until Unlock.
	mu    sync.Mutex
	locks map[uuid.UUID]*sql.Conn
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db, locks: make(map[uuid.UUID]*sql.Conn)}
}

// GetByID gets a connection by ID
func (r *ConnectionRepository) GetByID(id uuid.UUID) (*models.StoreConnection, error) {
	var conn models.StoreConnection
	if err := r.db.Where("id = ?", id).First(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetByStore gets a connection by platform and store identifier
func (r *ConnectionRepository) GetByStore(platform, storeIdentifier string) (*models.StoreConnection, error) {
	var conn models.StoreConnection
	err := r.db.Where("platform = ? AND store_identifier = ?", platform, storeIdentifier).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// Create creates a new connection
func (r *ConnectionRepository) Create(conn *models.StoreConnection) error {
	return r.db.Create(conn).Error
}

// Update updates a connection
func (r *ConnectionRepository) Update(conn *models.StoreConnection) error {
	return r.db.Save(conn).Error
}

// UpdateStatus sets the connection status and last error in one write
func (r *ConnectionRepository) UpdateStatus(id uuid.UUID, status models.StoreConnectionStatus, lastError *string) error {
	return r.db.Model(&models.StoreConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
}

// MarkSynced records a successful sync: connected status, sync timestamp,
// cleared error.
func (r *ConnectionRepository) MarkSynced(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.StoreConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.StoreConnectionStatusConnected,
			"last_synced_at": now,
			"last_error":     nil,
		}).Error
}

// Disconnect marks a connection disconnected and nulls its tokens
func (r *ConnectionRepository) Disconnect(id uuid.UUID) error {
	return r.db.Model(&models.StoreConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.StoreConnectionStatusDisconnected,
			"access_token":  nil,
			"refresh_token": nil,
		}).Error
}

// List lists connections with pagination
func (r *ConnectionRepository) List(limit, offset int) ([]models.StoreConnection, int64, error) {
	var conns []models.StoreConnection
	var total int64

	if err := r.db.Model(&models.StoreConnection{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&conns).Error
	if err != nil {
		return nil, 0, err
	}
	return conns, total, nil
}

// TryLock takes the Postgres advisory lock for a connection so two sync
// runs for the same connection cannot race on stale-row deletion. Returns
// false when another run holds it. The lock is held on a connection pinned
// out of the pool, since advisory locks belong to a session and a pooled
// query would acquire and release on arbitrary backends.
func (r *ConnectionRepository) TryLock(id uuid.UUID) (bool, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		return false, err
	}

	var acquired bool
	row := conn.QueryRowContext(context.Background(), "SELECT pg_try_advisory_lock(hashtext($1))", id.String())
	if err := row.Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}

	r.mu.Lock()
	r.locks[id] = conn
	r.mu.Unlock()
	return true, nil
}

// Unlock releases the advisory lock taken by TryLock on the same session
// it was acquired on, then returns that connection to the pool.
func (r *ConnectionRepository) Unlock(id uuid.UUID) error {
	r.mu.Lock()
	conn, ok := r.locks[id]
	delete(r.locks, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", id.String())
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
