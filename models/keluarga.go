package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status ekonomi values recognised for a Keluarga.
const (
	EkonomiSangatMiskin = "sangat_miskin"
	EkonomiMiskin       = "miskin"
	EkonomiRentanMiskin = "rentan_miskin"
)

// Keluarga is a registered household (kartu keluarga level). It owns its
// members, aid grants and map annotations; deleting a keluarga cascades.
type Keluarga struct {
	ID                 uint `gorm:"primaryKey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time        `gorm:"index"`
	NomorKK            string            `gorm:"size:16;not null;uniqueIndex"`
	NamaKepalaKeluarga string            `gorm:"size:255;not null"`
	Alamat             string            `gorm:"size:512"`
	RT                 string            `gorm:"size:4"`
	RW                 string            `gorm:"size:4"`
	Desa               string            `gorm:"size:128"`
	StatusEkonomi      string            `gorm:"size:32;index;not null;default:miskin"`
	PenghasilanBulanan decimal.Decimal   `gorm:"type:decimal(14,2);default:0"`
	Latitude           *float64          `gorm:"type:decimal(10,7)"`
	Longitude          *float64          `gorm:"type:decimal(10,7)"`
	Anggota            []AnggotaKeluarga `gorm:"foreignKey:KeluargaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Bantuan            []Bantuan         `gorm:"foreignKey:KeluargaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Geodata            []Geodata         `gorm:"foreignKey:KeluargaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
