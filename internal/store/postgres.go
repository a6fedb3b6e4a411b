package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// serialModel maps the serials table.
type serialModel struct {
	ID     int64  `gorm:"primaryKey"`
	Value  string `gorm:"column:value;size:64;uniqueIndex:idx_serials_value"`
	Status bool   `gorm:"column:status"`
}

func (serialModel) TableName() string { return "serials" }

// bindingModel maps the computer_usage table. The unique index on
// mac_address enforces the one-binding-per-device invariant at the
// storage layer.
type bindingModel struct {
	ID         int64  `gorm:"primaryKey"`
	MACAddress string `gorm:"column:mac_address;size:64;uniqueIndex:idx_computer_usage_mac"`
	Serial     string `gorm:"column:serial;size:64"`
}

func (bindingModel) TableName() string { return "computer_usage" }

type versionModel struct {
	ID      int64  `gorm:"primaryKey"`
	Version string `gorm:"column:version;size:32"`
}

func (versionModel) TableName() string { return "versions" }

type userModel struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"column:username;size:64;uniqueIndex:idx_users_username"`
	PasswordHash string `gorm:"column:password_hash;size:128"`
}

func (userModel) TableName() string { return "users" }

// PostgresStore is the production Store backed by a pooled Postgres
// connection through gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Connect opens and validates a Postgres-backed gorm connection pool.
// Pool limits are applied here so every caller shares one bounded pool
// instead of a process-wide single connection.
func Connect(ctx context.Context, dsn string, maxConns int, log *slog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.InfoContext(ctx, "postgres connected",
		slog.Int("max_conns", maxConns))

	return &PostgresStore{
		db:     db,
		logger: log.With(slog.String("component", "postgres_store")),
	}, nil
}

// RunMigrations applies the embedded SQL migrations in lexical order.
// Shipping migrations inside the binary keeps code and schema from
// drifting at startup.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := s.db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		s.logger.InfoContext(ctx, "migration applied", slog.String("migration", name))
	}
	return nil
}

func (s *PostgresStore) SerialByValue(ctx context.Context, value string) (Serial, error) {
	var rec serialModel
	if err := s.db.WithContext(ctx).Where("value = ?", value).Take(&rec).Error; err != nil {
		return Serial{}, translateErr(err)
	}
	return Serial{ID: rec.ID, Value: rec.Value, Status: rec.Status}, nil
}

func (s *PostgresStore) SerialByID(ctx context.Context, id int64) (Serial, error) {
	var rec serialModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return Serial{}, translateErr(err)
	}
	return Serial{ID: rec.ID, Value: rec.Value, Status: rec.Status}, nil
}

func (s *PostgresStore) CreateSerial(ctx context.Context, value string) (int64, error) {
	rec := serialModel{Value: value, Status: false}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, translateErr(err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) UpdateSerial(ctx context.Context, id int64, value string, status bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec serialModel
		if err := tx.Where("id = ?", id).Take(&rec).Error; err != nil {
			return err
		}

		// A changed value or status re-opens the serial: the prior
		// binding must go away in the same transaction so the serial
		// can be activated by a corrected device.
		if rec.Value != value || rec.Status != status {
			if err := tx.Where("serial = ?", rec.Value).Delete(&bindingModel{}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&serialModel{}).Where("id = ?", id).
			Updates(map[string]any{"value": value, "status": status}).Error
	})
	return translateErr(err)
}

func (s *PostgresStore) DeleteSerial(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&serialModel{})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSerials(ctx context.Context) ([]Serial, error) {
	var recs []serialModel
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, translateErr(err)
	}
	out := make([]Serial, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Serial{ID: rec.ID, Value: rec.Value, Status: rec.Status})
	}
	return out, nil
}

func (s *PostgresStore) BindingByDevice(ctx context.Context, macAddress string) (UsageBinding, error) {
	var rec bindingModel
	if err := s.db.WithContext(ctx).Where("mac_address = ?", macAddress).Take(&rec).Error; err != nil {
		return UsageBinding{}, translateErr(err)
	}
	return UsageBinding{ID: rec.ID, MACAddress: rec.MACAddress, Serial: rec.Serial}, nil
}

func (s *PostgresStore) ListBindings(ctx context.Context) ([]UsageBinding, error) {
	var recs []bindingModel
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, translateErr(err)
	}
	out := make([]UsageBinding, 0, len(recs))
	for _, rec := range recs {
		out = append(out, UsageBinding{ID: rec.ID, MACAddress: rec.MACAddress, Serial: rec.Serial})
	}
	return out, nil
}

func (s *PostgresStore) BindDevice(ctx context.Context, macAddress, serialValue string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional status flip: only the first writer matches the
		// predicate, everyone else sees zero rows and must re-read to
		// learn whether the serial was consumed or never existed.
		res := tx.Model(&serialModel{}).
			Where("value = ? AND status = ?", serialValue, false).
			Update("status", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&serialModel{}).Where("value = ?", serialValue).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrSerialConsumed
		}

		rec := bindingModel{MACAddress: macAddress, Serial: serialValue}
		if err := tx.Create(&rec).Error; err != nil {
			// Rolling back also reverts the status flip, so the
			// losing device leaves no partial state behind.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDeviceBound
			}
			return err
		}
		return nil
	})
}

func (s *PostgresStore) CurrentVersion(ctx context.Context) (string, error) {
	var rec versionModel
	if err := s.db.WithContext(ctx).Order("id DESC").Take(&rec).Error; err != nil {
		return "", translateErr(err)
	}
	return rec.Version, nil
}

func (s *PostgresStore) UserByUsername(ctx context.Context, username string) (User, error) {
	var rec userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&rec).Error; err != nil {
		return User{}, translateErr(err)
	}
	return User{ID: rec.ID, Username: rec.Username, PasswordHash: rec.PasswordHash}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	rec := userModel{Username: username, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, translateErr(err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userModel{}).Count(&n).Error; err != nil {
		return 0, translateErr(err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateErr maps gorm errors to the store's sentinel errors.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
