package main

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sibansos/models"
	"sibansos/pkg/bantuan"
)

// gormBantuanRepo adapts the shared gorm handle to the lifecycle engine's
// Repository interface.
type gormBantuanRepo struct {
	db *gorm.DB
}

func newBantuanRepo(gdb *gorm.DB) *gormBantuanRepo {
	return &gormBantuanRepo{db: gdb}
}

func (r *gormBantuanRepo) FindBantuan(id uint) (*models.Bantuan, error) {
	var b models.Bantuan
	if err := r.db.First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: bantuan %d", bantuan.ErrNotFound, id)
		}
		return nil, err
	}
	return &b, nil
}

func (r *gormBantuanRepo) SaveBantuan(b *models.Bantuan) error {
	return r.db.Save(b).Error
}

func (r *gormBantuanRepo) ExistsBantuanNonBatal(keluargaID uint, tahun int) (bool, error) {
	var cnt int64
	err := r.db.Model(&models.Bantuan{}).
		Where("keluarga_id = ? AND tahun_anggaran = ? AND status <> ?", keluargaID, tahun, models.BantuanDibatalkan).
		Count(&cnt).Error
	return cnt > 0, err
}

func (r *gormBantuanRepo) FindDistribusi(id uint) (*models.DistribusiBantuan, error) {
	var d models.DistribusiBantuan
	if err := r.db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: distribusi %d", bantuan.ErrNotFound, id)
		}
		return nil, err
	}
	return &d, nil
}

func (r *gormBantuanRepo) SaveDistribusi(d *models.DistribusiBantuan) error {
	return r.db.Save(d).Error
}

func (r *gormBantuanRepo) ListDistribusi(bantuanID uint) ([]models.DistribusiBantuan, error) {
	var rows []models.DistribusiBantuan
	err := r.db.Where("bantuan_id = ?", bantuanID).Order("bulan").Find(&rows).Error
	return rows, err
}

func (r *gormBantuanRepo) CountDistribusi(bantuanID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.DistribusiBantuan{}).Where("bantuan_id = ?", bantuanID).Count(&n).Error
	return n, err
}

func (r *gormBantuanRepo) CreateDistribusiBatch(rows []models.DistribusiBantuan) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.Create(&rows).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %v", bantuan.ErrConcurrency, err)
		}
		return err
	}
	return nil
}

func (r *gormBantuanRepo) Transaction(fn func(bantuan.Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormBantuanRepo{db: tx})
	})
}

// dbAuditSink writes engine events into log_aktivitas. Actor identity and
// client address are bound at construction, per request.
type dbAuditSink struct {
	actorID uint
	ip      string
}

func (s dbAuditSink) Record(ev bantuan.Event) {
	logActivity(s.actorID, s.ip, ev.Aksi, ev.NamaTabel, ev.RowID, ev.DataLama, ev.DataBaru, ev.Keterangan)
}

// logActivity appends one audit row. Failures are logged, never propagated:
// an audit hiccup must not roll back the administrative action itself.
func logActivity(actorID uint, ip, aksi, tabel string, rowID uint, lama, baru map[string]any, keterangan string) {
	entry := models.LogAktivitas{
		UserID:     actorID,
		Aksi:       aksi,
		NamaTabel:  tabel,
		RowID:      rowID,
		DataLama:   datatypes.JSONMap(lama),
		DataBaru:   datatypes.JSONMap(baru),
		AlamatIP:   ip,
		Keterangan: keterangan,
	}
	if err := db.Create(&entry).Error; err != nil {
		log.Printf("failed to write log_aktivitas (%s %s/%d): %v", aksi, tabel, rowID, err)
	}
}
