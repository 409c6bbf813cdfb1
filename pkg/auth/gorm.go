package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// profileRecord は profiles テーブルの1行です。
type profileRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Email     string `gorm:"size:255;index"`
	Role      string `gorm:"size:16;default:tenant"`
	Status    string `gorm:"size:16;default:pending"`
	Phone     string `gorm:"size:32"`
	DDI       string `gorm:"column:ddi;size:8"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (profileRecord) TableName() string {
	return "profiles"
}

func (r profileRecord) user() domain.User {
	return domain.User{
		ID:     r.ID,
		Email:  r.Email,
		Role:   domain.Role(r.Role),
		Status: domain.Status(r.Status),
		Phone:  r.Phone,
		DDI:    r.DDI,
	}
}

// MySQLConfig は MySQL 接続の設定です。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL は gorm で MySQL に接続します。ログは警告以上だけを出すのだ。
func OpenMySQL(cfg MySQLConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, apperr.Credential("MYSQL_DSN não foi definido.", nil)
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: NewGormLogger(slog.Default(), logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("MySQL への接続に失敗しました: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("コネクションプールの取得に失敗しました: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// GormProfileRepository は自前のデータベースに profiles を置く場合のリポジトリです。
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository は GormProfileRepository を生成します。
func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// NewMigratedProfileRepository はテーブルを用意したリポジトリを返します。
// 移行に失敗した場合は接続を閉じるのだ。
func NewMigratedProfileRepository(ctx context.Context, db *gorm.DB) (*GormProfileRepository, error) {
	repo := NewGormProfileRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		if cerr := repo.Close(); cerr != nil {
			slog.Warn("MySQL 接続のクローズに失敗しました", "error", cerr)
		}
		return nil, err
	}
	return repo, nil
}

// Close はコネクションプールを閉じます。
func (r *GormProfileRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("コネクションプールの取得に失敗しました: %w", err)
	}
	return sqlDB.Close()
}

// Migrate は profiles テーブルを作成または更新します。
func (r *GormProfileRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&profileRecord{}); err != nil {
		return fmt.Errorf("profiles のマイグレーションに失敗しました: %w", err)
	}
	return nil
}

func (r *GormProfileRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var rec profileRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	u := rec.user()
	return &u, nil
}

func (r *GormProfileRepository) List(ctx context.Context) ([]domain.User, error) {
	var recs []profileRecord
	if err := r.db.WithContext(ctx).Order("email").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	users := make([]domain.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.user())
	}
	return users, nil
}

func (r *GormProfileRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error) {
	res := r.db.WithContext(ctx).Model(&profileRecord{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	u, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	return u, nil
}

func (r *GormProfileRepository) UpdateDDI(ctx context.Context, id, ddi string) error {
	res := r.db.WithContext(ctx).Model(&profileRecord{}).Where("id = ?", id).Update("ddi", ddi)
	if res.Error != nil {
		return fmt.Errorf("DDI の更新に失敗しました: %w", res.Error)
	}
	return nil
}
