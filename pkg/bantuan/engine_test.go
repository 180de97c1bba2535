package bantuan

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sibansos/models"
)

type sinkRecorder struct {
	events []Event
}

func (s *sinkRecorder) Record(ev Event) { s.events = append(s.events, ev) }

func newTestService() (*Service, *MemoryRepository, *sinkRecorder) {
	repo := NewMemoryRepository()
	sink := &sinkRecorder{}
	return NewService(repo, sink), repo, sink
}

func tetapkanAktif(t *testing.T, svc *Service) *models.Bantuan {
	t.Helper()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	b, err = svc.Aktifkan(b.ID)
	require.NoError(t, err)
	return b
}

func TestValidasiPenetapan(t *testing.T) {
	assert.ErrorIs(t, ValidasiPenetapan(99, decimal.NewFromInt(100)), ErrValidation)
	assert.ErrorIs(t, ValidasiPenetapan(10000, decimal.NewFromInt(100)), ErrValidation)
	assert.ErrorIs(t, ValidasiPenetapan(2025, decimal.NewFromInt(-1)), ErrValidation)
	assert.NoError(t, ValidasiPenetapan(2025, decimal.Zero))
}

func TestTetapkanTolakDuplikat(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Tetapkan(7, 2025, decimal.NewFromInt(250000), "")
	require.NoError(t, err)

	_, err = svc.Tetapkan(7, 2025, decimal.NewFromInt(250000), "")
	assert.ErrorIs(t, err, ErrDuplikat)
	assert.ErrorIs(t, err, ErrValidation, "duplicate is still a validation failure")

	// Different year is fine.
	_, err = svc.Tetapkan(7, 2026, decimal.NewFromInt(250000), "")
	assert.NoError(t, err)
}

func TestTetapkanSetelahPembatalan(t *testing.T) {
	svc, _, _ := newTestService()
	b, err := svc.Tetapkan(7, 2025, decimal.NewFromInt(250000), "")
	require.NoError(t, err)
	_, err = svc.Batalkan(b.ID, "salah input")
	require.NoError(t, err)

	// A cancelled grant no longer blocks a new one for the same year.
	_, err = svc.Tetapkan(7, 2025, decimal.NewFromInt(300000), "")
	assert.NoError(t, err)
}

func TestAktifkanMembuatDuaBelasBulan(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)

	assert.Equal(t, models.BantuanAktif, b.Status)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)
	require.Len(t, children, 12)
	for i, d := range children {
		assert.Equal(t, i+1, d.Bulan)
		assert.Equal(t, models.DistribusiBelum, d.Status)
		assert.Nil(t, d.TanggalPenyaluran)
	}

	r, err := svc.HitungRingkasan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Persentase)
	assert.Equal(t, 12, r.SisaBulan)
	assert.True(t, r.TotalSetahun.Equal(decimal.NewFromInt(3600000)), "total setahun = %s", r.TotalSetahun)
}

func TestAktifkanIdempoten(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)

	_, err := svc.Aktifkan(b.ID)
	require.NoError(t, err)

	n, err := repo.CountDistribusi(b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n, "second activation must not duplicate months")
}

func TestAktifkanBersamaan(t *testing.T) {
	svc, repo, _ := newTestService()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Aktifkan(b.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := repo.CountDistribusi(b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n, "racing activations must not duplicate months")
	got, err := repo.FindBantuan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BantuanAktif, got.Status)
}

func TestBatchBulanGandaErrConcurrency(t *testing.T) {
	repo := NewMemoryRepository()
	b := models.Bantuan{KeluargaID: 1, TahunAnggaran: 2025, Status: models.BantuanAktif}
	require.NoError(t, repo.SaveBantuan(&b))
	require.NoError(t, repo.CreateDistribusiBatch([]models.DistribusiBantuan{
		{BantuanID: b.ID, Bulan: 3, Status: models.DistribusiBelum},
	}))

	err := repo.CreateDistribusiBatch([]models.DistribusiBantuan{
		{BantuanID: b.ID, Bulan: 4, Status: models.DistribusiBelum},
		{BantuanID: b.ID, Bulan: 3, Status: models.DistribusiBelum},
	})
	assert.ErrorIs(t, err, ErrConcurrency)

	n, err := repo.CountDistribusi(b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "a rejected batch must insert nothing")
}

func TestAktifkanDariStatusTerlarang(t *testing.T) {
	svc, _, _ := newTestService()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	_, err = svc.Batalkan(b.ID, "")
	require.NoError(t, err)
	_, err = svc.Aktifkan(b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b2, err := svc.Tetapkan(2, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	_, err = svc.Selesaikan(b2.ID)
	require.NoError(t, err)
	_, err = svc.Aktifkan(b2.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSalurkanEnamBulan(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)

	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)
	for _, d := range children[:6] {
		_, err := svc.Salurkan(d.ID, "")
		require.NoError(t, err)
	}

	r, err := svc.HitungRingkasan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Tersalurkan)
	assert.Equal(t, 50.0, r.Persentase)
	assert.Equal(t, 6, r.SisaBulan)
	assert.True(t, r.NominalTersalurkan.Equal(decimal.NewFromInt(1800000)), "nominal tersalurkan = %s", r.NominalTersalurkan)
}

func TestTandaiGagalSetelahEnamBulan(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)
	for _, d := range children[:6] {
		_, err := svc.Salurkan(d.ID, "")
		require.NoError(t, err)
	}

	d7, err := svc.TandaiGagal(children[6].ID, "bank rejected")
	require.NoError(t, err)
	assert.Equal(t, models.DistribusiGagal, d7.Status)
	assert.Equal(t, "bank rejected", d7.Catatan)

	r, err := svc.HitungRingkasan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Tersalurkan)
	assert.Equal(t, 1, r.Gagal)
	assert.Equal(t, 5, r.BelumDisalurkan)
}

func TestSelesaikanBantuanDibatalkan(t *testing.T) {
	svc, repo, _ := newTestService()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	_, err = svc.Batalkan(b.ID, "")
	require.NoError(t, err)

	_, err = svc.Selesaikan(b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := repo.FindBantuan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BantuanDibatalkan, got.Status, "failed transition must not change state")
}

func TestBatalkanIdempoten(t *testing.T) {
	svc, _, sink := newTestService()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	_, err = svc.Batalkan(b.ID, "pindah domisili")
	require.NoError(t, err)
	before := len(sink.events)
	got, err := svc.Batalkan(b.ID, "lagi")
	require.NoError(t, err)
	assert.Equal(t, models.BantuanDibatalkan, got.Status)
	assert.Len(t, sink.events, before, "repeat cancel must not emit another event")
}

func TestSalurkanDuaKaliDitolak(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)

	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return first }
	d, err := svc.Salurkan(children[0].ID, "")
	require.NoError(t, err)
	require.NotNil(t, d.TanggalPenyaluran)
	assert.True(t, d.TanggalPenyaluran.Equal(first))

	svc.Now = func() time.Time { return first.Add(48 * time.Hour) }
	_, err = svc.Salurkan(children[0].ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := repo.FindDistribusi(children[0].ID)
	require.NoError(t, err)
	assert.True(t, got.TanggalPenyaluran.Equal(first), "original payment timestamp must survive")
}

func TestSalurkanUlangSetelahGagal(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)

	_, err = svc.TandaiGagal(children[0].ID, "rekening tidak aktif")
	require.NoError(t, err)
	d, err := svc.Salurkan(children[0].ID, "percobaan kedua")
	require.NoError(t, err)
	assert.Equal(t, models.DistribusiDisalurkan, d.Status)
	assert.NotNil(t, d.TanggalPenyaluran)
}

func TestGagalTidakMenghapusTanggalPenyaluran(t *testing.T) {
	svc, repo, _ := newTestService()
	b := tetapkanAktif(t, svc)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)

	_, err = svc.Salurkan(children[0].ID, "")
	require.NoError(t, err)
	d, err := svc.TandaiGagal(children[0].ID, "dana ditarik kembali")
	require.NoError(t, err)
	assert.Equal(t, models.DistribusiGagal, d.Status)
	assert.NotNil(t, d.TanggalPenyaluran, "mark-failed must not clear the timestamp")

	got, err := repo.FindDistribusi(children[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, got.TanggalPenyaluran)
}

func TestPersentaseSetiapJumlahBulan(t *testing.T) {
	for n := 0; n <= 12; n++ {
		svc, repo, _ := newTestService()
		b := tetapkanAktif(t, svc)
		children, err := repo.ListDistribusi(b.ID)
		require.NoError(t, err)
		for _, d := range children[:n] {
			_, err := svc.Salurkan(d.ID, "")
			require.NoError(t, err)
		}
		r, err := svc.HitungRingkasan(b.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(n)/12*100, r.Persentase, "n=%d", n)
		assert.True(t, r.TotalSetahun.Equal(decimal.NewFromInt(3600000)), "total setahun invariant, n=%d", n)
	}
}

func TestRingkasanTanpaDistribusi(t *testing.T) {
	svc, _, _ := newTestService()
	b, err := svc.Tetapkan(1, 2025, decimal.NewFromInt(300000), "")
	require.NoError(t, err)
	r, err := svc.HitungRingkasan(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Persentase)
	assert.Equal(t, 0, r.Tersalurkan)
}

func TestNamaBulan(t *testing.T) {
	assert.Equal(t, "Januari", NamaBulan(1))
	assert.Equal(t, "Desember", NamaBulan(12))
	assert.Equal(t, NamaBulanSentinel, NamaBulan(0))
	assert.Equal(t, NamaBulanSentinel, NamaBulan(13))
	assert.Equal(t, NamaBulanSentinel, NamaBulan(-3))
}

func TestEventAudit(t *testing.T) {
	svc, repo, sink := newTestService()
	b := tetapkanAktif(t, svc)
	children, err := repo.ListDistribusi(b.ID)
	require.NoError(t, err)
	_, err = svc.Salurkan(children[0].ID, "tahap pertama")
	require.NoError(t, err)
	_, err = svc.TandaiGagal(children[1].ID, "")
	require.NoError(t, err)
	_, err = svc.Selesaikan(b.ID)
	require.NoError(t, err)

	var aksi []string
	for _, ev := range sink.events {
		aksi = append(aksi, ev.Aksi)
	}
	assert.Equal(t, []string{AksiPenetapan, AksiAktivasi, AksiDistribusi, AksiGagalSalur, AksiPenyelesaian}, aksi)

	salur := sink.events[2]
	assert.Equal(t, "distribusi_bantuans", salur.NamaTabel)
	assert.Equal(t, models.DistribusiBelum, salur.DataLama["status"])
	assert.Equal(t, models.DistribusiDisalurkan, salur.DataBaru["status"])
	assert.Equal(t, "tahap pertama", salur.Keterangan)
}

func TestNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Aktifkan(42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Salurkan(42, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.HitungRingkasan(42)
	assert.ErrorIs(t, err, ErrNotFound)
}
