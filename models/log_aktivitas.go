package models

import (
	"time"

	"gorm.io/datatypes"
)

// LogAktivitas captures auditable events triggered by operators. Rows are
// append-only; nothing in the application updates or deletes them.
type LogAktivitas struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UserID     uint              `gorm:"index;not null"`
	User       User              `gorm:"foreignKey:UserID;references:ID"`
	Aksi       string            `gorm:"size:64;index;not null"` // e.g. penetapan_bantuan, distribusi_bantuan
	NamaTabel  string            `gorm:"size:64;not null"`
	RowID      uint              `gorm:"index"`
	DataLama   datatypes.JSONMap `gorm:"type:jsonb"`
	DataBaru   datatypes.JSONMap `gorm:"type:jsonb"`
	AlamatIP   string            `gorm:"size:45"`
	Keterangan string            `gorm:"size:512"`
}
