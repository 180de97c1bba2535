package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sibansos/models"
	"sibansos/pkg/bantuan"
	"sibansos/pkg/ocr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// bantuanService builds a per-request lifecycle engine with the acting user
// and client address bound into the audit sink.
func bantuanService(c *gin.Context) (*bantuan.Service, bool) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return nil, false
	}
	return bantuan.NewService(newBantuanRepo(db), dbAuditSink{actorID: actorID, ip: ip}), true
}

// writeEngineError maps lifecycle engine errors onto HTTP statuses.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bantuan.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, bantuan.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, bantuan.ErrInvalidTransition), errors.Is(err, bantuan.ErrConcurrency):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func createBantuanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	var req struct {
		KeluargaID      uint            `json:"keluarga_id" binding:"required"`
		TahunAnggaran   int             `json:"tahun_anggaran" binding:"required"`
		NominalPerBulan decimal.Decimal `json:"nominal_per_bulan"`
		Keterangan      string          `json:"keterangan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var k models.Keluarga
	if err := db.First(&k, req.KeluargaID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "keluarga not found"})
		return
	}
	b, err := svc.Tetapkan(req.KeluargaID, req.TahunAnggaran, req.NominalPerBulan, req.Keterangan)
	if err != nil {
		// a duplicate active grant for the year is a conflict, not a bad request
		if errors.Is(err, bantuan.ErrDuplikat) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func listBantuanHandler(c *gin.Context) {
	q := db.Model(&models.Bantuan{})
	if v := c.Query("tahun"); v != "" {
		if tahun, err := strconv.Atoi(v); err == nil {
			q = q.Where("tahun_anggaran = ?", tahun)
		}
	}
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
	}
	if c.Query("aktif") == "1" {
		q = q.Where("status = ?", models.BantuanAktif)
	}
	if v := c.Query("keluarga_id"); v != "" {
		if kid, err := strconv.ParseUint(v, 10, 64); err == nil {
			q = q.Where("keluarga_id = ?", kid)
		}
	}
	var items []models.Bantuan
	if err := q.Order("id desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func getBantuanHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var b models.Bantuan
	if err := db.Preload("Distribusi", func(tx *gorm.DB) *gorm.DB { return tx.Order("bulan") }).First(&b, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func deleteBantuanHandler(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var b models.Bantuan
	if err := db.First(&b, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	// distribusi children go with it via the FK cascade
	if err := db.Delete(&b).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	logActivity(actorID, ip, "hapus_bantuan", "bantuans", b.ID,
		map[string]any{"keluarga_id": b.KeluargaID, "tahun_anggaran": b.TahunAnggaran, "status": b.Status}, nil, "")
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func aktifkanBantuanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	b, err := svc.Aktifkan(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func selesaikanBantuanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	b, err := svc.Selesaikan(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func batalkanBantuanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Keterangan string `json:"keterangan"`
	}
	_ = c.ShouldBindJSON(&req) // body optional
	b, err := svc.Batalkan(id, req.Keterangan)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func ringkasanBantuanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	r, err := svc.HitungRingkasan(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// distribusiView decorates a month slot with its Indonesian month name.
type distribusiView struct {
	models.DistribusiBantuan
	NamaBulan string `json:"nama_bulan"`
}

func listDistribusiHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var b models.Bantuan
	if err := db.First(&b, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var rows []models.DistribusiBantuan
	if err := db.Where("bantuan_id = ?", b.ID).Order("bulan").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]distribusiView, 0, len(rows))
	for _, d := range rows {
		out = append(out, distribusiView{DistribusiBantuan: d, NamaBulan: bantuan.NamaBulan(d.Bulan)})
	}
	c.JSON(http.StatusOK, out)
}

// rekapBantuanHandler aggregates grants per budget year and status, with the
// yearly commitment per bucket.
func rekapBantuanHandler(c *gin.Context) {
	type rekapRow struct {
		TahunAnggaran int             `json:"tahun_anggaran"`
		Status        string          `json:"status"`
		Jumlah        int64           `json:"jumlah"`
		TotalSetahun  decimal.Decimal `json:"total_setahun"`
	}
	var rows []rekapRow
	err := db.Model(&models.Bantuan{}).
		Select("tahun_anggaran, status, COUNT(*) AS jumlah, COALESCE(SUM(nominal_per_bulan * 12), 0) AS total_setahun").
		Group("tahun_anggaran, status").
		Order("tahun_anggaran DESC, status").
		Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func salurkanHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Catatan string `json:"catatan"`
	}
	_ = c.ShouldBindJSON(&req)
	d, err := svc.Salurkan(id, req.Catatan)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, distribusiView{DistribusiBantuan: *d, NamaBulan: bantuan.NamaBulan(d.Bulan)})
}

func gagalDistribusiHandler(c *gin.Context) {
	svc, ok := bantuanService(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Catatan string `json:"catatan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "catatan is required for a failed disbursement"})
		return
	}
	d, err := svc.TandaiGagal(id, req.Catatan)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, distribusiView{DistribusiBantuan: *d, NamaBulan: bantuan.NamaBulan(d.Bulan)})
}

const maxBuktiSize = 5 << 20 // 5MB

// uploadBuktiHandler stores the proof photo for one disbursement, runs OCR on
// it and records the extracted amount next to the grant's nominal.
func uploadBuktiHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var d models.DistribusiBantuan
	if err := db.First(&d, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "distribusi not found"})
		return
	}
	var b models.Bantuan
	if err := db.First(&b, d.BantuanID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grant lookup failed"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxBuktiSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 5MB)"})
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "only jpg and png are accepted"})
		return
	}
	destDir := filepath.Join(uploadBaseDir(), time.Now().Format("2006-01"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	storedName := fmt.Sprintf("%d_%s%s", d.ID, uuid.NewString(), ext)
	destPath := filepath.Join(destDir, storedName)
	if err := c.SaveUploadedFile(fileHeader, destPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	bukti := models.BuktiPenyaluran{
		DistribusiID: d.ID,
		FileName:     fileHeader.Filename,
		StorePath:    destPath,
		ContentType:  fileHeader.Header.Get("Content-Type"),
	}

	nominal, confidence, snippet, ocrErr := ocr.BacaNominalBukti(destPath)
	if ocrErr != nil {
		bukti.Failed = true
		bukti.FailedReason = ocrErr.Error()
	} else {
		bukti.NominalTerbaca = &nominal
	}

	// one proof per month; replace an earlier upload for the same slot
	var existing models.BuktiPenyaluran
	if err := db.Where("distribusi_id = ?", d.ID).First(&existing).Error; err == nil {
		bukti.ID = existing.ID
		bukti.CreatedAt = existing.CreatedAt
	}
	if err := db.Save(&bukti).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record proof"})
		return
	}
	logActivity(actorID, ip, "unggah_bukti", "bukti_penyalurans", bukti.ID, nil, map[string]any{
		"distribusi_id": d.ID,
		"file_name":     bukti.FileName,
		"failed":        bukti.Failed,
	}, "")

	resp := gin.H{
		"id":            bukti.ID,
		"distribusi_id": d.ID,
		"file_name":     bukti.FileName,
	}
	if ocrErr != nil {
		resp["ocr_error"] = ocrErr.Error()
	} else {
		expected := b.NominalPerBulan
		read := decimal.NewFromInt(nominal)
		resp["nominal_terbaca"] = nominal
		resp["confidence"] = confidence
		resp["snippet"] = snippet
		resp["cocok"] = expected.Equal(read)
		if !expected.Equal(read) {
			resp["nominal_diharapkan"] = expected.String()
		}
	}
	c.JSON(http.StatusOK, resp)
}
