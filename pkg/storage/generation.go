package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Generation is one finished generation request.
type Generation struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Format string `gorm:"not null;default:'';index"`
	Key    string `gorm:"not null;default:''"`
	Scale  string `gorm:"not null;default:''"`
	Tempo  int    `gorm:"not null;default:0"`
	Genre  string `gorm:"not null;default:''"`

	Status     string `gorm:"not null;default:'';index"`
	Size       int    `gorm:"not null;default:0"`
	Error      string `gorm:"not null;default:''"`
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	var v Generation
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get Generation %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetGeneration(ctx context.Context, v *Generation) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set Generation %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) ListGenerations(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Generation, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Generation{}

	q := s.db.WithContext(ctx).Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	// Order by
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list Generations: %w", err)
	}
	return vs, nil
}

// RecordJob stores a finished generation job.
func (s *Store) RecordJob(ctx context.Context, r *generation.Record) error {
	return s.SetGeneration(ctx, &Generation{
		ID:         ulid.Make().String(),
		Format:     string(r.Format),
		Key:        string(r.Params.Key),
		Scale:      string(r.Params.Scale),
		Tempo:      r.Params.Tempo,
		Genre:      r.Params.Genre,
		Status:     string(r.Status),
		Size:       r.Size,
		Error:      r.Error,
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
	})
}
