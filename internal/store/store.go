package store

import (
	"context"
	"time"

	"github.com/controltower/notifier/internal/models"
)

// Storage defines the interface for the notifier's persistence operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Deployment operations
	SaveDeployment(ctx context.Context, deployment *models.Deployment) error
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.Deployment, error)
	UpdateDeploymentNotificationState(ctx context.Context, id string, state map[models.ReminderClass]string) error
	DeleteDeployment(ctx context.Context, id string) error

	// Product operations
	SaveProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)

	// User operations
	SaveUser(ctx context.Context, user *models.User) error
	FindUsersByName(ctx context.Context, name string) ([]*models.User, error)
	FindUsersByRole(ctx context.Context, role string) ([]*models.User, error)

	// Audit operations
	AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error
	GetAuditLog(ctx context.Context, deploymentID string, limit int) ([]*models.AuditEntry, error)

	// Statistics
	GetStorageStats() (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalDeployments   int64      `json:"total_deployments"`
	ActiveDeployments  int64      `json:"active_deployments"`
	TotalProducts      int64      `json:"total_products"`
	TotalUsers         int64      `json:"total_users"`
	TotalAuditEntries  int64      `json:"total_audit_entries"`
	LatestAuditEntry   *time.Time `json:"latest_audit_entry,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
