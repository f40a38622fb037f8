package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// record is the gorm model; DeletedAt gives soft delete on every query.
type record struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;not null;uniqueIndex"`
	Phone     string `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (record) TableName() string { return "customers" }

func (r record) toCustomer() Customer {
	created := r.CreatedAt
	return Customer{ID: r.ID, Name: r.Name, Email: r.Email, Phone: r.Phone, CreatedAt: &created}
}

// Open connects to MySQL and migrates the customers table.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate customers: %w", err)
	}
	return db, nil
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, in CreateInput) (Customer, error) {
	if err := in.Validate(); err != nil {
		return Customer{}, err
	}
	rec := record{Name: in.Name, Email: in.Email, Phone: in.Phone}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Customer{}, ErrDuplicateEmail
		}
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return rec.toCustomer(), nil
}

func (s *Store) Get(ctx context.Context, id int64) (Customer, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, apperr.ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return rec.toCustomer(), nil
}

func (s *Store) Search(ctx context.Context, q string, page pagination.Page) ([]Customer, pagination.Info, error) {
	tx := s.db.WithContext(ctx).Where("id > ?", page.Cursor)
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	var recs []record
	if err := tx.Order("id").Limit(page.Fetch()).Find(&recs).Error; err != nil {
		return nil, pagination.Info{}, fmt.Errorf("search customers: %w", err)
	}
	out := make([]Customer, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toCustomer())
	}
	items, info := pagination.Trim(out, page, func(c Customer) int64 { return c.ID })
	return items, info, nil
}

func (s *Store) Update(ctx context.Context, id int64, in UpdateInput) (Customer, error) {
	if err := in.Validate(); err != nil {
		return Customer{}, err
	}
	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Email != nil {
		updates["email"] = *in.Email
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}

	res := s.db.WithContext(ctx).Model(&record{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return Customer{}, ErrDuplicateEmail
		}
		return Customer{}, fmt.Errorf("update customer: %w", res.Error)
	}
	// RowsAffected is 0 for an unchanged row too, so existence is checked by reading back
	return s.Get(ctx, id)
}

// Delete is a soft delete: the row stays but disappears from every lookup.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&record{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete customer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrCustomerNotFound
	}
	return nil
}
