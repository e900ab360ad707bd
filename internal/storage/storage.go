package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for bill records, settings and the auth and
// notification data. Getters return nil, nil when nothing matches.
type Storage interface {
	// Bills
	SaveBill(ctx context.Context, b BillRecord) error
	GetBill(ctx context.Context, id string) (*BillRecord, error)
	// ListBills returns the newest records first. limit <= 0 means no limit.
	ListBills(ctx context.Context, limit int) ([]BillRecord, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Users
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Tokens
	CreateToken(ctx context.Context, token Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context, userID string) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Casbin rules
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	// Email config
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, config EmailConfig) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}

// JobLocker coordinates scheduled jobs across replicas.
type JobLocker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
}

// PoolReporter is implemented by backends that can publish pool statistics.
type PoolReporter interface {
	ReportPoolMetrics()
}

// Setting keys shared by the API and the worker.
const (
	SettingRefreshInterval = "refresh_interval"
)
