package models

import "time"

// AnggotaKeluarga is an individual member of a Keluarga.
type AnggotaKeluarga struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time `gorm:"index"`
	KeluargaID   uint       `gorm:"index;not null"`
	NIK          string     `gorm:"size:16;not null;uniqueIndex"`
	Nama         string     `gorm:"size:255;not null"`
	JenisKelamin string     `gorm:"size:1"` // L or P
	TanggalLahir *time.Time
	Hubungan     string `gorm:"size:32"` // kepala_keluarga, istri, anak, ...
	Pendidikan   string `gorm:"size:64"`
	Pekerjaan    string `gorm:"size:128"`
}
