package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bantuan lifecycle statuses.
const (
	BantuanDitetapkan = "ditetapkan"
	BantuanAktif      = "aktif"
	BantuanSelesai    = "selesai"
	BantuanDibatalkan = "dibatalkan"
)

// Bantuan is one household's approved aid allocation for one budget year.
// At most one non-cancelled Bantuan may exist per (keluarga, tahun_anggaran);
// creation enforces this. NominalPerBulan is fixed after penetapan.
type Bantuan struct {
	ID               uint `gorm:"primaryKey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	KeluargaID       uint                `gorm:"index;not null"`
	Keluarga         Keluarga            `gorm:"foreignKey:KeluargaID;references:ID"`
	TahunAnggaran    int                 `gorm:"index;not null"`
	Status           string              `gorm:"size:16;index;not null;default:ditetapkan"`
	NominalPerBulan  decimal.Decimal     `gorm:"type:decimal(14,2);not null"`
	Keterangan       string              `gorm:"size:512"`
	TanggalPenetapan time.Time           `gorm:"not null"`
	Distribusi       []DistribusiBantuan `gorm:"foreignKey:BantuanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
