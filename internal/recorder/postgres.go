package recorder

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"StageSentinel/internal/model"
)

// alertRow is the gorm model behind GormStore.
type alertRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Symbol         string    `gorm:"type:varchar(20);not null"`
	RSI            float64   `gorm:"column:rsi"`
	StageLabel     string    `gorm:"type:varchar(32);not null;index:idx_alert_label_created,priority:1"`
	Message        string    `gorm:"type:text"`
	Quantity       int64
	Budget         float64
	Price          float64
	IdempotencyKey *string   `gorm:"type:varchar(80);uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null;index;index:idx_alert_label_created,priority:2"`
	Sent           bool      `gorm:"not null;default:false"`
}

func (alertRow) TableName() string { return "alerts" }

// GormStore persists alerts to PostgreSQL through gorm.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore connects to PostgreSQL and auto-migrates the alerts table.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&alertRow{}); err != nil {
		return nil, fmt.Errorf("migrate alerts: %w", err)
	}
	log.Println("[INFO] postgres alert store connected")
	return &GormStore{db: db, now: time.Now}, nil
}

func toRow(a *model.Alert) alertRow {
	r := alertRow{
		ID:         a.ID,
		Symbol:     a.Symbol,
		RSI:        a.RSI,
		StageLabel: a.StageLabel,
		Message:    a.Message,
		Quantity:   a.Quantity,
		Budget:     a.Budget,
		Price:      a.Price,
		CreatedAt:  a.CreatedAt,
		Sent:       a.Sent,
	}
	if a.IdempotencyKey != "" {
		k := a.IdempotencyKey
		r.IdempotencyKey = &k
	}
	return r
}

func fromRow(r alertRow) model.Alert {
	a := model.Alert{
		ID:         r.ID,
		Symbol:     r.Symbol,
		RSI:        r.RSI,
		StageLabel: r.StageLabel,
		Message:    r.Message,
		Quantity:   r.Quantity,
		Budget:     r.Budget,
		Price:      r.Price,
		CreatedAt:  r.CreatedAt,
		Sent:       r.Sent,
	}
	if r.IdempotencyKey != nil {
		a.IdempotencyKey = *r.IdempotencyKey
	}
	return a
}

func (s *GormStore) Insert(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	row := toRow(a)
	row.ID = 0
	row.Sent = false
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("insert alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	stored := fromRow(row)
	return &stored, nil
}

func (s *GormStore) FindRecent(ctx context.Context, f Filter) ([]model.Alert, error) {
	q := s.db.WithContext(ctx).Model(&alertRow{})
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.StageLabel != "" {
		q = q.Where("stage_label = ?", f.StageLabel)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.UnsentOnly {
		q = q.Where("sent = ?", false)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []alertRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	out := make([]model.Alert, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func (s *GormStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&alertRow{}).Where("id IN ?", ids).Update("sent", true).Error
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Println("[INFO] closing postgres alert store")
	return sqlDB.Close()
}
