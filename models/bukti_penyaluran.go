package models

import "time"

// BuktiPenyaluran is the uploaded proof photo (receipt / handover photo) for
// one monthly disbursement. NominalTerbaca holds the OCR-extracted amount so
// an admin can compare it against the grant's nominal.
type BuktiPenyaluran struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DistribusiID   uint              `gorm:"uniqueIndex;not null"`
	Distribusi     DistribusiBantuan `gorm:"foreignKey:DistribusiID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FileName       string            `gorm:"size:255;not null"`
	StorePath      string            `gorm:"column:store_path;size:512"`
	ContentType    string            `gorm:"size:128"`
	NominalTerbaca *int64
	// Mark upload as failed for OCR processing (record kept so admin can review)
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
