package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/catscratch/catbot/environments"
	"github.com/catscratch/catbot/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`
	CREATE TABLE IF NOT EXISTS scheduled_messages (
		id VARCHAR(36) PRIMARY KEY,
		type VARCHAR(20) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		channel VARCHAR(64) NOT NULL,
		alert_channels JSON,
		poll_options JSON,
		date CHAR(10) NOT NULL,
		time CHAR(5) NOT NULL,
		` + "`repeat`" + ` VARCHAR(10) NOT NULL DEFAULT 'none',
		status VARCHAR(10) NOT NULL DEFAULT 'active',
		message_ref VARCHAR(64) NOT NULL DEFAULT '',
		last_sent_at DATETIME,
		last_error TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_scheduled_messages_status (status),
		INDEX idx_scheduled_messages_channel (channel)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
		`
	CREATE TABLE IF NOT EXISTS poll_votes (
		poll_id VARCHAR(36) NOT NULL,
		option_index INT NOT NULL,
		voter_id VARCHAR(64) NOT NULL,
		voted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (poll_id, option_index, voter_id),
		INDEX idx_poll_votes_poll (poll_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM scheduled_messages")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d scheduled messages, skipping seed", count)
		return nil
	}

	testMessages := []struct {
		id      string
		msgType string
		title   string
		text    string
		channel string
		options string
		date    string
		tm      string
		repeat  string
	}{
		{"9f1c2f64-0000-4000-8000-000000000001", "custom", "Standup reminder", "Daily standup starts in 15 minutes!", "C-GENERAL", "[]", "2025-01-06", "09:45", "daily"},
		{"9f1c2f64-0000-4000-8000-000000000002", "poll_single", "Lunch spot", "Where are we eating on Friday?", "C-GENERAL", `["Tacos","Ramen","Salads"]`, "2025-01-10", "11:00", "weekly"},
		{"9f1c2f64-0000-4000-8000-000000000003", "capacity", "Office day", "Who is coming in this Thursday?", "C-OFFICE", `["In office","Remote"]`, "2025-01-09", "08:00", "weekly"},
		{"9f1c2f64-0000-4000-8000-000000000004", "help", "On-call help", "Press the button if you need a hand.", "C-SUPPORT", "[]", "2025-01-06", "10:00", "none"},
	}

	for _, msg := range testMessages {
		_, err := db.Exec(
			"INSERT INTO scheduled_messages (id, type, title, text, channel, alert_channels, poll_options, date, time, `repeat`, status) VALUES (?, ?, ?, ?, ?, '[]', ?, ?, ?, ?, 'active')",
			msg.id, msg.msgType, msg.title, msg.text, msg.channel, msg.options, msg.date, msg.tm, msg.repeat,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded %d scheduled messages", len(testMessages))
	return nil
}
