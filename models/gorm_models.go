// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatchRecord is the match_records table.
type GormMatchRecord struct {
	gorm.Model
	RoomID         string    `gorm:"uniqueIndex;not null"`
	PlayerOne      string    `gorm:"index;not null"`
	PlayerTwo      string    `gorm:"index;not null"`
	Seed           int64     `gorm:"not null"`
	PlayerOneScore int       `gorm:"default:0"`
	PlayerTwoScore int       `gorm:"default:0"`
	PlayerOneTime  *float64  `gorm:"default:null"`
	PlayerTwoTime  *float64  `gorm:"default:null"`
	Winner         string    `gorm:"index"`
	Reason         string    `gorm:"not null"`
	StartedAt      time.Time `gorm:"not null"`
	EndedAt        time.Time `gorm:"index;not null"`
}

func (GormMatchRecord) TableName() string {
	return "match_records"
}

func ToGormMatchRecord(rec *MatchRecord) *GormMatchRecord {
	return &GormMatchRecord{
		RoomID:         rec.RoomID,
		PlayerOne:      rec.PlayerOne,
		PlayerTwo:      rec.PlayerTwo,
		Seed:           rec.Seed,
		PlayerOneScore: rec.PlayerOneScore,
		PlayerTwoScore: rec.PlayerTwoScore,
		PlayerOneTime:  rec.PlayerOneTime,
		PlayerTwoTime:  rec.PlayerTwoTime,
		Winner:         rec.Winner,
		Reason:         rec.Reason,
		StartedAt:      rec.StartedAt,
		EndedAt:        rec.EndedAt,
	}
}

func (g *GormMatchRecord) ToMatchRecord() MatchRecord {
	return MatchRecord{
		RoomID:         g.RoomID,
		PlayerOne:      g.PlayerOne,
		PlayerTwo:      g.PlayerTwo,
		Seed:           g.Seed,
		PlayerOneScore: g.PlayerOneScore,
		PlayerTwoScore: g.PlayerTwoScore,
		PlayerOneTime:  g.PlayerOneTime,
		PlayerTwoTime:  g.PlayerTwoTime,
		Winner:         g.Winner,
		Reason:         g.Reason,
		StartedAt:      g.StartedAt,
		EndedAt:        g.EndedAt,
	}
}
