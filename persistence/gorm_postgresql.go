// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormPostgreSQL stores match history through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	db, err := gorm.Open(postgres.Open(dsn(host, port, user, password, dbname)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.GormMatchRecord{}); err != nil {
		return nil, err
	}

	logger.Log.Infof("Match history stored in PostgreSQL %s:%d/%s via GORM", host, port, dbname)
	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) SaveMatchRecord(ctx context.Context, rec *models.MatchRecord) error {
	err := p.db.WithContext(ctx).Create(models.ToGormMatchRecord(rec)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRecord
	}
	return err
}

func (p *GormPostgreSQL) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	var rows []models.GormMatchRecord
	q := p.db.WithContext(ctx).Order("ended_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.MatchRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToMatchRecord())
	}
	return out, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
