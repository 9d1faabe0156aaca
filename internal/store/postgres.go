package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// PostgresStorage implements Storage interface using PostgreSQL
type PostgresStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(config *StorageConfig) *PostgresStorage {
	return &PostgresStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgresStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgresStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				"Migration "+migration.Version+" failed", err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveDeployment inserts or updates a deployment record
func (s *PostgresStorage) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	emails, err := json.Marshal(d.NotificationEmails)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal notification emails", err.Error())
	}
	alertCfg, err := json.Marshal(d.AlertConfig)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal alert config", err.Error())
	}
	lastSent := []byte("{}")
	if d.LastNotificationSent != nil {
		lastSent, err = json.Marshal(d.LastNotificationSent)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal notification state", err.Error())
		}
	}

	query := `
		INSERT INTO deployments
		(id, product_id, client_name, deployment_type, environment, status,
		 next_delivery_date, notification_emails, owner_name, delivery_person,
		 alert_config, last_notification_sent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			client_name = EXCLUDED.client_name,
			deployment_type = EXCLUDED.deployment_type,
			environment = EXCLUDED.environment,
			status = EXCLUDED.status,
			next_delivery_date = EXCLUDED.next_delivery_date,
			notification_emails = EXCLUDED.notification_emails,
			owner_name = EXCLUDED.owner_name,
			delivery_person = EXCLUDED.delivery_person,
			alert_config = EXCLUDED.alert_config,
			last_notification_sent = EXCLUDED.last_notification_sent,
			updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.ProductID, d.ClientName, d.DeploymentType, d.Environment,
		string(d.Status), nullableTime(d.NextDeliveryDate), string(emails),
		d.OwnerName, d.DeliveryPerson, string(alertCfg), string(lastSent))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save deployment", err.Error())
	}
	return nil
}

// GetDeployment returns a deployment by id
func (s *PostgresStorage) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	query := `
		SELECT id, product_id, client_name, deployment_type, environment, status,
		       next_delivery_date, notification_emails, owner_name, delivery_person,
		       alert_config, last_notification_sent, created_at, updated_at
		FROM deployments WHERE id = $1
	`
	d, err := scanDeployment(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get deployment", err.Error())
	}
	return d, nil
}

// ListDeployments returns deployments matching a filter
func (s *PostgresStorage) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.Deployment, error) {
	query := `
		SELECT id, product_id, client_name, deployment_type, environment, status,
		       next_delivery_date, notification_emails, owner_name, delivery_person,
		       alert_config, last_notification_sent, created_at, updated_at
		FROM deployments WHERE 1=1
	`
	args := []interface{}{}
	n := 0
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return "$" + strconv.Itoa(n)
	}

	if filter.ProductID != nil {
		query += " AND product_id = " + arg(*filter.ProductID)
	}
	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if filter.ExcludeReleased {
		query += " AND status != " + arg(string(models.StatusReleased))
	}

	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET " + arg(filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list deployments", err.Error())
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan deployment", err.Error())
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// UpdateDeploymentNotificationState persists the per-class send dates
func (s *PostgresStorage) UpdateDeploymentNotificationState(ctx context.Context, id string, state map[models.ReminderClass]string) error {
	data, err := json.Marshal(state)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal notification state", err.Error())
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET last_notification_sent = $1, updated_at = NOW() WHERE id = $2",
		string(data), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update notification state", err.Error())
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", id)
	}
	return nil
}

// DeleteDeployment removes a deployment record
func (s *PostgresStorage) DeleteDeployment(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM deployments WHERE id = $1", id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete deployment", err.Error())
	}
	return nil
}

// SaveProduct inserts or updates a product record
func (s *PostgresStorage) SaveProduct(ctx context.Context, p *models.Product) error {
	alertCfg, err := json.Marshal(p.AlertConfig)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal product alert config", err.Error())
	}

	query := `
		INSERT INTO products
		(id, name, product_owner, engineering_owner, delivery_lead, alert_config, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			product_owner = EXCLUDED.product_owner,
			engineering_owner = EXCLUDED.engineering_owner,
			delivery_lead = EXCLUDED.delivery_lead,
			alert_config = EXCLUDED.alert_config,
			updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.ProductOwner, p.EngineeringOwner, p.DeliveryLead, string(alertCfg))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save product", err.Error())
	}
	return nil
}

// GetProduct returns a product by id, or nil when absent
func (s *PostgresStorage) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	query := `
		SELECT id, name, product_owner, engineering_owner, delivery_lead,
		       alert_config, created_at, updated_at
		FROM products WHERE id = $1
	`
	var p models.Product
	var alertCfg string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.ProductOwner, &p.EngineeringOwner, &p.DeliveryLead,
		&alertCfg, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get product", err.Error())
	}

	if alertCfg != "" {
		if err := json.Unmarshal([]byte(alertCfg), &p.AlertConfig); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal product alert config", err.Error())
		}
	}
	return &p, nil
}

// SaveUser inserts or updates a user record
func (s *PostgresStorage) SaveUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, name, email, role, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			active = EXCLUDED.active
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.Role, u.Active)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save user", err.Error())
	}
	return nil
}

// FindUsersByName returns active users matching a name exactly
func (s *PostgresStorage) FindUsersByName(ctx context.Context, name string) ([]*models.User, error) {
	return s.queryUsers(ctx,
		"SELECT id, name, email, role, active, created_at FROM users WHERE name = $1 AND active = TRUE", name)
}

// FindUsersByRole returns active users holding a role
func (s *PostgresStorage) FindUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	return s.queryUsers(ctx,
		"SELECT id, name, email, role, active, created_at FROM users WHERE role = $1 AND active = TRUE", role)
}

func (s *PostgresStorage) queryUsers(ctx context.Context, query string, arg interface{}) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query users", err.Error())
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan user", err.Error())
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// AppendAuditLog records a notification audit entry
func (s *PostgresStorage) AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		id, err := utils.GenerateID()
		if err != nil {
			return utils.NewAppError(utils.ErrCodeInternal, "Failed to generate audit id", err.Error())
		}
		entry.ID = id
	}

	recipients, err := json.Marshal(entry.Recipients)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal recipients", err.Error())
	}

	query := `
		INSERT INTO audit_log
		(id, deployment_id, notification_type, channel, recipients, subject, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.DeploymentID, entry.NotificationType, entry.Channel,
		string(recipients), entry.Subject, entry.Success, entry.Detail)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append audit log", err.Error())
	}
	return nil
}

// GetAuditLog returns recent audit entries for a deployment
func (s *PostgresStorage) GetAuditLog(ctx context.Context, deploymentID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, deployment_id, notification_type, channel, recipients, subject,
		       success, detail, created_at
		FROM audit_log WHERE deployment_id = $1
		ORDER BY created_at DESC LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query audit log", err.Error())
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var recipients string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.DeploymentID, &e.NotificationType, &e.Channel,
			&recipients, &e.Subject, &e.Success, &detail, &e.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan audit entry", err.Error())
		}
		if err := json.Unmarshal([]byte(recipients), &e.Recipients); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal recipients", err.Error())
		}
		e.Detail = detail.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// GetStorageStats returns storage statistics
func (s *PostgresStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM deployments", &stats.TotalDeployments},
		{"SELECT COUNT(*) FROM deployments WHERE status != '" + string(models.StatusReleased) + "'", &stats.ActiveDeployments},
		{"SELECT COUNT(*) FROM products", &stats.TotalProducts},
		{"SELECT COUNT(*) FROM users", &stats.TotalUsers},
		{"SELECT COUNT(*) FROM audit_log", &stats.TotalAuditEntries},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
		}
	}

	var latest sql.NullTime
	if err := s.db.QueryRow("SELECT MAX(created_at) FROM audit_log").Scan(&latest); err == nil && latest.Valid {
		stats.LatestAuditEntry = &latest.Time
	}

	return stats, nil
}

