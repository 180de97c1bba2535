package models

import "time"

// DistribusiBantuan statuses.
const (
	DistribusiBelum      = "belum_disalurkan"
	DistribusiDisalurkan = "disalurkan"
	DistribusiGagal      = "gagal"
)

// DistribusiBantuan is one scheduled monthly payment slot within a Bantuan.
// Rows are only ever created as a batch of 12 when the grant is activated;
// the composite unique index on (bantuan_id, bulan) makes a racing second
// activation fail instead of duplicating months.
type DistribusiBantuan struct {
	ID                uint `gorm:"primaryKey"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	BantuanID         uint       `gorm:"not null;uniqueIndex:idx_bantuan_bulan"`
	Bulan             int        `gorm:"not null;uniqueIndex:idx_bantuan_bulan"` // 1..12
	Status            string     `gorm:"size:20;index;not null;default:belum_disalurkan"`
	TanggalPenyaluran *time.Time // set only on transition to disalurkan
	Catatan           string     `gorm:"size:512"`
}
