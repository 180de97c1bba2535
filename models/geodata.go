package models

import (
	"time"

	"gorm.io/datatypes"
)

// Geodata jenis values.
const (
	GeodataTitik   = "titik"
	GeodataGaris   = "garis"
	GeodataPoligon = "poligon"
)

// Geodata is a map annotation attached to a Keluarga. Geometri carries the
// raw GeoJSON geometry as drawn in the admin map.
type Geodata struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	KeluargaID uint           `gorm:"index;not null"`
	Jenis      string         `gorm:"size:16;not null"` // titik, garis, poligon
	Geometri   datatypes.JSON `gorm:"not null"`
	Keterangan string         `gorm:"size:255"`
}
