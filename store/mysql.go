package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	glogger "gorm.io/gorm/logger"
)

// entryRow is the product_cache_entries table
type entryRow struct {
	Key             string     `gorm:"column:product_key;primaryKey;size:64"`
	Record          []byte     `gorm:"column:record;type:mediumblob"`
	LastRefreshedAt *time.Time `gorm:"column:last_refreshed_at;type:datetime(6);index"`
	LastAttemptAt   *time.Time `gorm:"column:last_attempt_at;type:datetime(6);index"`
	FailureCount    uint32     `gorm:"column:failure_count;not null;default:0"`
}

func (entryRow) TableName() string {
	return "product_cache_entries"
}

func newEntryRow(e *product.Entry) (*entryRow, error) {
	row := &entryRow{
		Key:             e.Key,
		LastRefreshedAt: nullTime(e.LastRefreshedAt),
		LastAttemptAt:   nullTime(e.LastAttemptAt),
		FailureCount:    e.FailureCount,
	}
	if e.Record != nil {
		data, err := json.Marshal(e.Record)
		if err != nil {
			return nil, ErrCodec(e.Key, err)
		}
		row.Record = data
	}
	return row, nil
}

func (r *entryRow) entry() (*product.Entry, error) {
	e := &product.Entry{
		Key:          r.Key,
		FailureCount: r.FailureCount,
	}
	if r.LastRefreshedAt != nil {
		e.LastRefreshedAt = r.LastRefreshedAt.UTC()
	}
	if r.LastAttemptAt != nil {
		e.LastAttemptAt = r.LastAttemptAt.UTC()
	}
	if r.Record != nil {
		var rec product.Record
		if err := json.Unmarshal(r.Record, &rec); err != nil {
			return nil, ErrCodec(r.Key, err)
		}
		e.Record = &rec
	}
	return e, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

type mysqlStore struct {
	logger logger.Logger
	policy staleness.Policy
	db     *gorm.DB
}

// NewMySQL connects to mysql through gorm and optionally migrates the entries table
func NewMySQL(log logger.Logger, cfg *MySQLConfig, policy staleness.Policy) (Store, error) {
	if cfg == nil {
		cfg = DefaultMySQLConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: &gormLogger{
			logger:        log,
			level:         gormLogLevel(cfg.LogLevel),
			slowThreshold: cfg.SlowThreshold,
		},
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb, err := db.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, ErrConnection(err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&entryRow{}); err != nil {
			_ = sqldb.Close()
			return nil, ErrConnection(err)
		}
	}

	log.Info("mysql store connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Bool("auto_migrate", cfg.AutoMigrate),
	)

	return &mysqlStore{logger: log, policy: policy, db: db}, nil
}

func (s *mysqlStore) Get(ctx context.Context, key string) (*product.Entry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var row entryRow
	err := s.db.WithContext(ctx).Where("product_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, product.ErrStore("get", err)
	}
	entry, err := row.entry()
	if err != nil {
		return nil, product.ErrStore("get", err)
	}
	return entry, nil
}

// outdated selects the rows staleness.Policy.Outdated accepts
func (s *mysqlStore) outdated(ctx context.Context, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(&entryRow{}).
		Where("(last_attempt_at IS NULL OR last_attempt_at <= ?)", s.policy.AttemptedBefore(now).UTC()).
		Where("(record IS NULL OR last_refreshed_at < ?)", s.policy.RefreshedBefore(now).UTC())
}

func (s *mysqlStore) OutdatedKeys(ctx context.Context, now time.Time) ([]string, error) {
	keys := make([]string, 0)
	if err := s.outdated(ctx, now).Order("product_key").Pluck("product_key", &keys).Error; err != nil {
		return nil, product.ErrStore("outdated keys", err)
	}
	return keys, nil
}

func (s *mysqlStore) HasStaleData(ctx context.Context, now time.Time) (bool, error) {
	var keys []string
	if err := s.outdated(ctx, now).Limit(1).Pluck("product_key", &keys).Error; err != nil {
		return false, product.ErrStore("has stale data", err)
	}
	return len(keys) > 0, nil
}

// Put stores a fetched record unless a newer attempt was already written
func (s *mysqlStore) Put(ctx context.Context, key string, record *product.Record, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if record == nil {
		return product.ErrInvalid("nil record")
	}
	return s.update(ctx, key, now, putMutation(key, record, now))
}

// MarkFailed records a failed attempt and keeps the last good record
func (s *mysqlStore) MarkFailed(ctx context.Context, key string, now time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.update(ctx, key, now, failMutation(key, now))
}

// Close closes the underlying connection pool
func (s *mysqlStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return product.ErrStore("close", err)
	}
	if err := sqldb.Close(); err != nil {
		return product.ErrStore("close", err)
	}
	return nil
}

// update locks the row (or its gap) for the duration of the read-modify-write
func (s *mysqlStore) update(ctx context.Context, key string, now time.Time, m mutation) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entryRow
		var prev *product.Entry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("product_key = ?", key).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if prev, err = row.entry(); err != nil {
				return err
			}
		}

		if !product.Supersedes(prev, now) {
			s.logger.Debug("dropping out of order write",
				zap.String("key", key),
				zap.Time("now", now),
				zap.Time("last_attempt_at", prev.LastAttemptAt),
			)
			return nil
		}

		next, err := newEntryRow(m(prev))
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(next).Error
	})
	if err != nil {
		return product.ErrStore("update", err)
	}
	return nil
}

func gormLogLevel(level string) glogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return glogger.Silent
	case "error":
		return glogger.Error
	case "info":
		return glogger.Info
	default:
		return glogger.Warn
	}
}
