package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("integration-test-secret")
	// uploads must land in the test temp dir, so set this before initDB
	// creates the upload base during seeding
	_ = os.Setenv("UPLOAD_BASE", t.TempDir())
	initDB()
	r := gin.Default()
	setupRoutes(r)
	return r
}

func loginAs(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login %s failed status=%d body=%s", username, resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "petugas1", "password": "pass123", "nama_lengkap": "Petugas Satu"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	token := loginAs(t, r, "petugas1", "pass123")

	// 3. Create keluarga (nomor_kk unique per run)
	nomorKK := fmt.Sprintf("%016d", time.Now().UnixNano()%1_0000_0000_0000_0000)
	kBody, _ := json.Marshal(map[string]any{
		"nomor_kk":             nomorKK,
		"nama_kepala_keluarga": "Budi Santoso",
		"alamat":               "Dusun Krajan",
		"desa":                 "Sukamaju",
		"status_ekonomi":       "miskin",
		"penghasilan_bulanan":  "750000",
	})
	resp = performRequest(r, http.MethodPost, "/keluarga", bytes.NewBuffer(kBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("create keluarga failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var kResp struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &kResp)
	if kResp.ID == 0 {
		t.Fatalf("keluarga id missing in response: %s", resp.Body.String())
	}

	// 4. Add one anggota
	nik := fmt.Sprintf("%016d", time.Now().UnixNano()%1_0000_0000_0000_0000+7)
	aBody, _ := json.Marshal(map[string]any{
		"nik": nik, "nama": "Siti Santoso", "jenis_kelamin": "P", "hubungan": "istri",
	})
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/keluarga/%d/anggota", kResp.ID), bytes.NewBuffer(aBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("create anggota failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Create bantuan for a far-future year so re-runs don't collide
	tahun := 2100 + int(time.Now().UnixNano()%100)
	bBody, _ := json.Marshal(map[string]any{
		"keluarga_id": kResp.ID, "tahun_anggaran": tahun, "nominal_per_bulan": "300000",
	})
	resp = performRequest(r, http.MethodPost, "/bantuan", bytes.NewBuffer(bBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("create bantuan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var b struct {
		ID     uint   `json:"ID"`
		Status string `json:"Status"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &b)
	if b.ID == 0 {
		t.Fatalf("bantuan id missing in response: %s", resp.Body.String())
	}

	// 6. Activate: 12 month slots must appear
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/bantuan/%d/aktifkan", b.ID), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("aktifkan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/bantuan/%d/distribusi", b.ID), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list distribusi failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var slots []struct {
		ID        uint   `json:"ID"`
		Bulan     int    `json:"Bulan"`
		NamaBulan string `json:"nama_bulan"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &slots)
	if len(slots) != 12 {
		t.Fatalf("expected 12 distribusi rows, got %d", len(slots))
	}
	if slots[0].NamaBulan != "Januari" {
		t.Fatalf("expected first month Januari, got %s", slots[0].NamaBulan)
	}

	// 7. Disburse January, then verify a second attempt is rejected
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/distribusi/%d/salurkan", slots[0].ID), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("salurkan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/distribusi/%d/salurkan", slots[0].ID), nil, token, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double salurkan, got %d body=%s", resp.Code, resp.Body.String())
	}

	// 8. Ringkasan reflects the single disbursed month
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/bantuan/%d/ringkasan", b.ID), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("ringkasan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var ring struct {
		Tersalurkan int     `json:"tersalurkan"`
		SisaBulan   int     `json:"sisa_bulan"`
		Persentase  float64 `json:"persentase"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &ring)
	if ring.Tersalurkan != 1 || ring.SisaBulan != 11 {
		t.Fatalf("unexpected ringkasan: %+v", ring)
	}

	// 9. Rekap endpoint responds
	resp = performRequest(r, http.MethodGet, "/rekap-bantuan", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("rekap failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 10. Audit log is admin-only
	resp = performRequest(r, http.MethodGet, "/log-aktivitas", nil, token, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin log access, got %d", resp.Code)
	}
	adminToken := loginAs(t, r, "admin", "admin123")
	resp = performRequest(r, http.MethodGet, "/log-aktivitas?aksi=distribusi_bantuan", nil, adminToken, "")
	if resp.Code != 200 {
		t.Fatalf("admin log access failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 11. Unauthorized access to a protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/keluarga", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list keluarga got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}
