// Package sqlite keeps inquiries in an embedded SQLite file through GORM.
// It is meant for single-node deployments and tests that want a real SQL
// engine without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"

	"inquiryflow/inquiry"
)

// inquiryRow is the GORM model. The status column holds the JSON record
// produced by inquiry.MarshalStatus.
type inquiryRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Name          string `gorm:"size:50;not null"`
	Description   string `gorm:"type:text"`
	CreatedAt     time.Time
	Deadline      *time.Time
	Service       string `gorm:"size:100;not null"`
	ContactNumber string `gorm:"size:15;not null"`
	DeliveryArea  string
	Reference     bool
	StatusLabel   string `gorm:"index;not null"`
	Status        []byte `gorm:"not null"`
	Version       int64  `gorm:"not null;default:1"`
	UpdatedAt     time.Time
}

func (inquiryRow) TableName() string {
	return "inquiries"
}

type Store struct {
	db *gorm.DB
}

var _ inquiry.Store = (*Store)(nil)

// Open connects to the SQLite database at path and migrates the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive for the life of the pool.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path, Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	if err := db.AutoMigrate(&inquiryRow{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, id int64) (inquiry.Inquiry, error) {
	var row inquiryRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return inquiry.Inquiry{}, inquiry.NotFound(id)
		}
		return inquiry.Inquiry{}, fmt.Errorf("sqlite: get inquiry %d: %w", id, err)
	}
	return fromRow(row)
}

func (s *Store) ListByStatus(ctx context.Context, label inquiry.Label) ([]inquiry.Inquiry, error) {
	var rows []inquiryRow
	err := s.db.WithContext(ctx).
		Where("status_label = ?", string(label)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: list inquiries: %w", err)
	}

	out := make([]inquiry.Inquiry, 0, len(rows))
	for _, row := range rows {
		inq, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inq)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, details inquiry.Details, status inquiry.Status) (inquiry.Inquiry, error) {
	payload, err := inquiry.MarshalStatus(status)
	if err != nil {
		return inquiry.Inquiry{}, err
	}

	row := inquiryRow{
		Name:          details.Name,
		Description:   details.Description,
		CreatedAt:     details.CreatedAt.UTC(),
		Service:       details.Service,
		ContactNumber: details.ContactNumber,
		DeliveryArea:  details.DeliveryArea,
		Reference:     details.Reference,
		StatusLabel:   string(status.Label()),
		Status:        payload,
		Version:       1,
	}
	if !details.Deadline.IsZero() {
		deadline := details.Deadline.UTC()
		row.Deadline = &deadline
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return inquiry.Inquiry{}, fmt.Errorf("sqlite: insert inquiry: %w", err)
	}
	return fromRow(row)
}

func (s *Store) CompareAndSwap(ctx context.Context, id, expectedVersion int64, next inquiry.Status) (int64, error) {
	payload, err := inquiry.MarshalStatus(next)
	if err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).
		Model(&inquiryRow{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"status_label": string(next.Label()),
			"status":       payload,
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("sqlite: update inquiry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, s.missReason(ctx, id, expectedVersion)
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, id, expectedVersion int64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&inquiryRow{})
	if res.Error != nil {
		return fmt.Errorf("sqlite: delete inquiry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missReason(ctx, id, expectedVersion)
	}
	return nil
}

func (s *Store) missReason(ctx context.Context, id, expectedVersion int64) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&inquiryRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("sqlite: check inquiry %d: %w", id, err)
	}
	if n == 0 {
		return inquiry.NotFound(id)
	}
	return inquiry.VersionConflict(id, expectedVersion)
}

func fromRow(row inquiryRow) (inquiry.Inquiry, error) {
	status, err := inquiry.UnmarshalStatus(row.Status)
	if err != nil {
		return inquiry.Inquiry{}, err
	}
	inq := inquiry.Inquiry{
		ID: row.ID,
		Details: inquiry.Details{
			Name:          row.Name,
			Description:   row.Description,
			CreatedAt:     row.CreatedAt.UTC(),
			Service:       row.Service,
			ContactNumber: row.ContactNumber,
			DeliveryArea:  row.DeliveryArea,
			Reference:     row.Reference,
		},
		Status:  status,
		Version: row.Version,
	}
	if row.Deadline != nil {
		inq.Details.Deadline = row.Deadline.UTC()
	}
	return inq, nil
}
