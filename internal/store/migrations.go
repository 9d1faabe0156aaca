package store

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create deployments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					id TEXT PRIMARY KEY,
					product_id TEXT NOT NULL,
					client_name TEXT NOT NULL DEFAULT '',
					deployment_type TEXT NOT NULL DEFAULT '',
					environment TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					next_delivery_date DATETIME,
					notification_emails TEXT NOT NULL DEFAULT '[]', -- JSON
					owner_name TEXT NOT NULL DEFAULT '',
					delivery_person TEXT NOT NULL DEFAULT '',
					alert_config TEXT NOT NULL DEFAULT '{}', -- JSON
					last_notification_sent TEXT NOT NULL DEFAULT '{}', -- JSON
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_deployments_product ON deployments(product_id);
				CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status);
				CREATE INDEX IF NOT EXISTS idx_deployments_delivery_date ON deployments(next_delivery_date);
			`,
		},
		{
			Version:     "002",
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					product_owner TEXT NOT NULL DEFAULT '',
					engineering_owner TEXT NOT NULL DEFAULT '',
					delivery_lead TEXT NOT NULL DEFAULT '',
					alert_config TEXT NOT NULL DEFAULT '{}', -- JSON
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT '',
					active BOOLEAN DEFAULT TRUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
			`,
		},
		{
			Version:     "004",
			Description: "Create audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					deployment_id TEXT NOT NULL,
					notification_type TEXT NOT NULL,
					channel TEXT NOT NULL,
					recipients TEXT NOT NULL DEFAULT '[]', -- JSON
					subject TEXT NOT NULL DEFAULT '',
					success BOOLEAN DEFAULT FALSE,
					detail TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_audit_deployment ON audit_log(deployment_id);
				CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create deployments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					id TEXT PRIMARY KEY,
					product_id TEXT NOT NULL,
					client_name TEXT NOT NULL DEFAULT '',
					deployment_type TEXT NOT NULL DEFAULT '',
					environment TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					next_delivery_date TIMESTAMPTZ,
					notification_emails JSONB NOT NULL DEFAULT '[]',
					owner_name TEXT NOT NULL DEFAULT '',
					delivery_person TEXT NOT NULL DEFAULT '',
					alert_config JSONB NOT NULL DEFAULT '{}',
					last_notification_sent JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_deployments_product ON deployments(product_id);
				CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status);
				CREATE INDEX IF NOT EXISTS idx_deployments_delivery_date ON deployments(next_delivery_date);
			`,
		},
		{
			Version:     "002",
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					product_owner TEXT NOT NULL DEFAULT '',
					engineering_owner TEXT NOT NULL DEFAULT '',
					delivery_lead TEXT NOT NULL DEFAULT '',
					alert_config JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT '',
					active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
			`,
		},
		{
			Version:     "004",
			Description: "Create audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					deployment_id TEXT NOT NULL,
					notification_type TEXT NOT NULL,
					channel TEXT NOT NULL,
					recipients JSONB NOT NULL DEFAULT '[]',
					subject TEXT NOT NULL DEFAULT '',
					success BOOLEAN DEFAULT FALSE,
					detail TEXT,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_deployment ON audit_log(deployment_id);
				CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
			`,
		},
	}
}
