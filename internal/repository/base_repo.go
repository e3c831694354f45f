package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Party        *PartyRepo
	Conversation *ConversationRepo
	Message      *MessageRepo
	Attachment   *AttachmentRepo
}

// NewRepositories opens the configured database (and Redis when enabled)
// and creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = initRedis(cfg)
	}

	return NewRepositoriesWithDB(db, rdb), nil
}

// NewRepositoriesWithDB builds repositories on existing handles; rdb may be nil
func NewRepositoriesWithDB(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		Party:        NewPartyRepo(db),
		Conversation: NewConversationRepo(db),
		Message:      NewMessageRepo(db),
		Attachment:   NewAttachmentRepo(db),
	}
}

// openDB opens the relational store selected by database.driver
func openDB(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.Database.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY on row-locked appends
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.Database.AutoMigrate {
		if err := Migrate(context.Background(), db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Migrate creates or updates the messaging tables. The parties table is
// owned by the directory service and only migrated for local setups.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&entity.Party{},
		&entity.Conversation{},
		&entity.Message{},
		&entity.Attachment{},
	)
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if r.Redis != nil {
		return r.Redis.Close()
	}
	return nil
}

// Transaction executes fn in a transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "database ping failed: %v", err)
		return err
	}

	if r.Redis == nil {
		return nil
	}
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
