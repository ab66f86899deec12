package catalog

import (
	"context"

	"gorm.io/gorm"
)

type dbSource struct {
	db *gorm.DB
}

// NewDBSource reads services from the billing_services table.
func NewDBSource(db *gorm.DB) Source {
	return &dbSource{db: db}
}

func (s *dbSource) LoadServices(ctx context.Context) ([]Service, error) {
	var services []Service
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, name, description, url, core
		 FROM billing_services
		 ORDER BY id ASC`,
	).Scan(&services).Error
	return services, err
}
