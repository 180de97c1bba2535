package main

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"sibansos/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var nomorKKRE = regexp.MustCompile(`^[0-9]{16}$`)

func validStatusEkonomi(s string) bool {
	switch s {
	case models.EkonomiSangatMiskin, models.EkonomiMiskin, models.EkonomiRentanMiskin:
		return true
	}
	return false
}

// parseIDParam reads a positive uint path parameter.
func parseIDParam(c *gin.Context) (uint, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(v), true
}

// actorFrom resolves the audit actor for the current request.
func actorFrom(c *gin.Context) (uint, string, bool) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return 0, "", false
	}
	return user.ID, c.ClientIP(), true
}

type keluargaRequest struct {
	NomorKK            string           `json:"nomor_kk" binding:"required"`
	NamaKepalaKeluarga string           `json:"nama_kepala_keluarga" binding:"required"`
	Alamat             string           `json:"alamat"`
	RT                 string           `json:"rt"`
	RW                 string           `json:"rw"`
	Desa               string           `json:"desa"`
	StatusEkonomi      string           `json:"status_ekonomi"`
	PenghasilanBulanan *decimal.Decimal `json:"penghasilan_bulanan"`
	Latitude           *float64         `json:"latitude"`
	Longitude          *float64         `json:"longitude"`
}

func createKeluargaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	var req keluargaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !nomorKKRE.MatchString(req.NomorKK) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nomor_kk must be 16 digits"})
		return
	}
	if req.StatusEkonomi == "" {
		req.StatusEkonomi = models.EkonomiMiskin
	}
	if !validStatusEkonomi(req.StatusEkonomi) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status_ekonomi"})
		return
	}
	// prevent duplicate registration of the same kartu keluarga
	var existing models.Keluarga
	if err := db.Where("nomor_kk = ?", req.NomorKK).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "nomor_kk already registered"})
		return
	}
	k := models.Keluarga{
		NomorKK:            req.NomorKK,
		NamaKepalaKeluarga: req.NamaKepalaKeluarga,
		Alamat:             req.Alamat,
		RT:                 req.RT,
		RW:                 req.RW,
		Desa:               req.Desa,
		StatusEkonomi:      req.StatusEkonomi,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
	}
	if req.PenghasilanBulanan != nil {
		if req.PenghasilanBulanan.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "penghasilan_bulanan must not be negative"})
			return
		}
		k.PenghasilanBulanan = *req.PenghasilanBulanan
	}
	if err := db.Create(&k).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "nomor_kk already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	logActivity(actorID, ip, "tambah_keluarga", "keluargas", k.ID, nil, map[string]any{
		"nomor_kk":             k.NomorKK,
		"nama_kepala_keluarga": k.NamaKepalaKeluarga,
		"status_ekonomi":       k.StatusEkonomi,
	}, "")
	c.JSON(http.StatusOK, gin.H{"id": k.ID})
}

func listKeluargaHandler(c *gin.Context) {
	q := db.Model(&models.Keluarga{})
	if s := c.Query("status_ekonomi"); s != "" {
		q = q.Where("status_ekonomi = ?", s)
	}
	if desa := c.Query("desa"); desa != "" {
		q = q.Where("desa = ?", desa)
	}
	if cari := c.Query("cari"); cari != "" {
		q = q.Where("nama_kepala_keluarga ILIKE ? OR nomor_kk LIKE ?", "%"+cari+"%", cari+"%")
	}
	var items []models.Keluarga
	if err := q.Order("id desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func getKeluargaHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.Preload("Anggota").Preload("Bantuan").Preload("Geodata").First(&k, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, k)
}

func updateKeluargaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.First(&k, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req keluargaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !nomorKKRE.MatchString(req.NomorKK) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nomor_kk must be 16 digits"})
		return
	}
	if req.StatusEkonomi != "" && !validStatusEkonomi(req.StatusEkonomi) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status_ekonomi"})
		return
	}
	old := map[string]any{
		"nomor_kk":             k.NomorKK,
		"nama_kepala_keluarga": k.NamaKepalaKeluarga,
		"status_ekonomi":       k.StatusEkonomi,
		"alamat":               k.Alamat,
	}
	k.NomorKK = req.NomorKK
	k.NamaKepalaKeluarga = req.NamaKepalaKeluarga
	k.Alamat = req.Alamat
	k.RT = req.RT
	k.RW = req.RW
	k.Desa = req.Desa
	if req.StatusEkonomi != "" {
		k.StatusEkonomi = req.StatusEkonomi
	}
	if req.PenghasilanBulanan != nil {
		k.PenghasilanBulanan = *req.PenghasilanBulanan
	}
	if err := db.Save(&k).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "nomor_kk already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	logActivity(actorID, ip, "ubah_keluarga", "keluargas", k.ID, old, map[string]any{
		"nomor_kk":             k.NomorKK,
		"nama_kepala_keluarga": k.NamaKepalaKeluarga,
		"status_ekonomi":       k.StatusEkonomi,
		"alamat":               k.Alamat,
	}, "")
	c.JSON(http.StatusOK, k)
}

func deleteKeluargaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.First(&k, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	// FK constraints cascade anggota, bantuan (with distribusi) and geodata.
	if err := db.Delete(&k).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	logActivity(actorID, ip, "hapus_keluarga", "keluargas", k.ID, map[string]any{"nomor_kk": k.NomorKK}, nil, "")
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// updateKoordinatHandler sets the household point location shown on the map.
func updateKoordinatHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.First(&k, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}
	old := map[string]any{"latitude": k.Latitude, "longitude": k.Longitude}
	k.Latitude = req.Latitude
	k.Longitude = req.Longitude
	if err := db.Save(&k).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	logActivity(actorID, ip, "ubah_koordinat", "keluargas", k.ID, old,
		map[string]any{"latitude": k.Latitude, "longitude": k.Longitude}, "")
	c.JSON(http.StatusOK, k)
}

var nikRE = regexp.MustCompile(`^[0-9]{16}$`)

type anggotaRequest struct {
	NIK          string `json:"nik" binding:"required"`
	Nama         string `json:"nama" binding:"required"`
	JenisKelamin string `json:"jenis_kelamin"`
	TanggalLahir string `json:"tanggal_lahir"` // YYYY-MM-DD
	Hubungan     string `json:"hubungan"`
	Pendidikan   string `json:"pendidikan"`
	Pekerjaan    string `json:"pekerjaan"`
}

func (r *anggotaRequest) apply(a *models.AnggotaKeluarga) (string, bool) {
	if !nikRE.MatchString(r.NIK) {
		return "nik must be 16 digits", false
	}
	if r.JenisKelamin != "" && r.JenisKelamin != "L" && r.JenisKelamin != "P" {
		return "jenis_kelamin must be L or P", false
	}
	a.NIK = r.NIK
	a.Nama = r.Nama
	a.JenisKelamin = r.JenisKelamin
	a.Hubungan = r.Hubungan
	a.Pendidikan = r.Pendidikan
	a.Pekerjaan = r.Pekerjaan
	if r.TanggalLahir != "" {
		t, err := time.Parse("2006-01-02", r.TanggalLahir)
		if err != nil {
			return "tanggal_lahir must be YYYY-MM-DD", false
		}
		a.TanggalLahir = &t
	}
	return "", true
}

func createAnggotaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	keluargaID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.First(&k, keluargaID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "keluarga not found"})
		return
	}
	var req anggotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := models.AnggotaKeluarga{KeluargaID: k.ID}
	if msg, ok := req.apply(&a); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := db.Create(&a).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "nik already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	logActivity(actorID, ip, "tambah_anggota", "anggota_keluargas", a.ID, nil,
		map[string]any{"nik": a.NIK, "nama": a.Nama, "keluarga_id": a.KeluargaID}, "")
	c.JSON(http.StatusOK, gin.H{"id": a.ID})
}

func listAnggotaHandler(c *gin.Context) {
	keluargaID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var items []models.AnggotaKeluarga
	if err := db.Where("keluarga_id = ?", keluargaID).Order("id").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func updateAnggotaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var a models.AnggotaKeluarga
	if err := db.First(&a, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req anggotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	old := map[string]any{"nik": a.NIK, "nama": a.Nama, "hubungan": a.Hubungan}
	if msg, ok := req.apply(&a); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := db.Save(&a).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "nik already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	logActivity(actorID, ip, "ubah_anggota", "anggota_keluargas", a.ID, old,
		map[string]any{"nik": a.NIK, "nama": a.Nama, "hubungan": a.Hubungan}, "")
	c.JSON(http.StatusOK, a)
}

func deleteAnggotaHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var a models.AnggotaKeluarga
	if err := db.First(&a, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := db.Delete(&a).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	logActivity(actorID, ip, "hapus_anggota", "anggota_keluargas", a.ID, map[string]any{"nik": a.NIK}, nil, "")
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func validJenisGeodata(s string) bool {
	switch s {
	case models.GeodataTitik, models.GeodataGaris, models.GeodataPoligon:
		return true
	}
	return false
}

func createGeodataHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	keluargaID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var k models.Keluarga
	if err := db.First(&k, keluargaID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "keluarga not found"})
		return
	}
	var req struct {
		Jenis      string          `json:"jenis" binding:"required"`
		Geometri   json.RawMessage `json:"geometri" binding:"required"`
		Keterangan string          `json:"keterangan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validJenisGeodata(req.Jenis) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jenis must be titik, garis or poligon"})
		return
	}
	if !json.Valid(req.Geometri) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "geometri must be valid GeoJSON"})
		return
	}
	g := models.Geodata{
		KeluargaID: k.ID,
		Jenis:      req.Jenis,
		Geometri:   datatypes.JSON(req.Geometri),
		Keterangan: req.Keterangan,
	}
	if err := db.Create(&g).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	logActivity(actorID, ip, "tambah_geodata", "geodata", g.ID, nil,
		map[string]any{"jenis": g.Jenis, "keluarga_id": g.KeluargaID}, req.Keterangan)
	c.JSON(http.StatusOK, gin.H{"id": g.ID})
}

func listGeodataHandler(c *gin.Context) {
	keluargaID, ok := parseIDParam(c)
	if !ok {
		return
	}
	q := db.Where("keluarga_id = ?", keluargaID)
	if jenis := c.Query("jenis"); jenis != "" {
		q = q.Where("jenis = ?", jenis)
	}
	var items []models.Geodata
	if err := q.Order("id").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func deleteGeodataHandler(c *gin.Context) {
	actorID, ip, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var g models.Geodata
	if err := db.First(&g, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := db.Delete(&g).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	logActivity(actorID, ip, "hapus_geodata", "geodata", g.ID, map[string]any{"jenis": g.Jenis}, nil, "")
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
