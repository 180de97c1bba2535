package bantuan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sibansos/models"
)

// TotalBulan is the number of monthly slots generated per grant year.
const TotalBulan = 12

// Aksi tags recorded on audit events.
const (
	AksiPenetapan    = "penetapan_bantuan"
	AksiAktivasi     = "aktivasi_bantuan"
	AksiPenyelesaian = "penyelesaian_bantuan"
	AksiPembatalan   = "pembatalan_bantuan"
	AksiDistribusi   = "distribusi_bantuan"
	AksiGagalSalur   = "distribusi_gagal"
)

// Repository abstracts persistence so the engine stays testable without a
// database. The GORM adapter lives in the root package; MemoryRepository in
// this package backs the unit tests.
type Repository interface {
	FindBantuan(id uint) (*models.Bantuan, error)
	SaveBantuan(b *models.Bantuan) error
	ExistsBantuanNonBatal(keluargaID uint, tahun int) (bool, error)
	FindDistribusi(id uint) (*models.DistribusiBantuan, error)
	SaveDistribusi(d *models.DistribusiBantuan) error
	ListDistribusi(bantuanID uint) ([]models.DistribusiBantuan, error)
	CountDistribusi(bantuanID uint) (int64, error)
	// CreateDistribusiBatch inserts the month slots atomically. It must return
	// ErrConcurrency (wrapped) when the (bantuan_id, bulan) unique index is
	// violated by a racing activation.
	CreateDistribusiBatch(rows []models.DistribusiBantuan) error
	// Transaction runs fn against a transactional view of the repository.
	Transaction(fn func(Repository) error) error
}

// Event describes one log-worthy mutation. Actor identity and client address
// are bound into the AuditSink by the caller, never read from globals here.
type Event struct {
	Aksi       string
	NamaTabel  string
	RowID      uint
	DataLama   map[string]any
	DataBaru   map[string]any
	Keterangan string
}

// AuditSink receives one Event per successful mutating operation.
type AuditSink interface {
	Record(ev Event)
}

// Service is the aid lifecycle engine.
type Service struct {
	repo  Repository
	audit AuditSink
	// Now is the clock used when stamping TanggalPenyaluran; replaceable in tests.
	Now func() time.Time
}

func NewService(repo Repository, audit AuditSink) *Service {
	return &Service{repo: repo, audit: audit, Now: time.Now}
}

func (s *Service) record(ev Event) {
	if s.audit != nil {
		s.audit.Record(ev)
	}
}

// ValidasiPenetapan checks the creation inputs: a plausible 4-digit budget
// year and a non-negative monthly nominal.
func ValidasiPenetapan(tahun int, nominal decimal.Decimal) error {
	if tahun < 2000 || tahun > 9999 {
		return fmt.Errorf("%w: tahun anggaran %d tidak valid", ErrValidation, tahun)
	}
	if nominal.IsNegative() {
		return fmt.Errorf("%w: nominal per bulan negatif", ErrValidation)
	}
	return nil
}

// Tetapkan creates a new grant in status ditetapkan. No distribusi children
// exist until Aktifkan is called.
func (s *Service) Tetapkan(keluargaID uint, tahun int, nominal decimal.Decimal, keterangan string) (*models.Bantuan, error) {
	if err := ValidasiPenetapan(tahun, nominal); err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsBantuanNonBatal(keluargaID, tahun)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: keluarga %d sudah memiliki bantuan tahun %d", ErrDuplikat, keluargaID, tahun)
	}
	b := &models.Bantuan{
		KeluargaID:       keluargaID,
		TahunAnggaran:    tahun,
		Status:           models.BantuanDitetapkan,
		NominalPerBulan:  nominal,
		Keterangan:       keterangan,
		TanggalPenetapan: s.Now(),
	}
	if err := s.repo.SaveBantuan(b); err != nil {
		return nil, err
	}
	s.record(Event{
		Aksi:      AksiPenetapan,
		NamaTabel: "bantuans",
		RowID:     b.ID,
		DataBaru: map[string]any{
			"keluarga_id":       b.KeluargaID,
			"tahun_anggaran":    b.TahunAnggaran,
			"status":            b.Status,
			"nominal_per_bulan": b.NominalPerBulan.String(),
		},
		Keterangan: keterangan,
	})
	return b, nil
}

// Aktifkan transitions a grant to aktif and generates its 12 monthly slots.
// Idempotent: months that already exist are never recreated, so a second call
// only re-asserts the status. Runs in one transaction so a partial batch can
// never leave the grant aktif with fewer than 12 children.
func (s *Service) Aktifkan(id uint) (*models.Bantuan, error) {
	var out *models.Bantuan
	err := s.repo.Transaction(func(r Repository) error {
		b, err := r.FindBantuan(id)
		if err != nil {
			return err
		}
		if b.Status != models.BantuanDitetapkan && b.Status != models.BantuanAktif {
			return fmt.Errorf("%w: tidak dapat mengaktifkan bantuan berstatus %s", ErrInvalidTransition, b.Status)
		}
		existing, err := r.ListDistribusi(b.ID)
		if err != nil {
			return err
		}
		if len(existing) < TotalBulan {
			have := make(map[int]bool, len(existing))
			for _, d := range existing {
				have[d.Bulan] = true
			}
			var rows []models.DistribusiBantuan
			for bln := 1; bln <= TotalBulan; bln++ {
				if have[bln] {
					continue
				}
				rows = append(rows, models.DistribusiBantuan{
					BantuanID: b.ID,
					Bulan:     bln,
					Status:    models.DistribusiBelum,
				})
			}
			if err := r.CreateDistribusiBatch(rows); err != nil {
				return err
			}
		}
		old := b.Status
		b.Status = models.BantuanAktif
		if err := r.SaveBantuan(b); err != nil {
			return err
		}
		s.record(Event{
			Aksi:      AksiAktivasi,
			NamaTabel: "bantuans",
			RowID:     b.ID,
			DataLama:  map[string]any{"status": old},
			DataBaru:  map[string]any{"status": b.Status},
		})
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Selesaikan marks the grant complete. Children are untouched. The one
// forbidden source state is dibatalkan (terminal).
func (s *Service) Selesaikan(id uint) (*models.Bantuan, error) {
	b, err := s.repo.FindBantuan(id)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BantuanDibatalkan {
		return nil, fmt.Errorf("%w: bantuan yang dibatalkan tidak dapat diselesaikan", ErrInvalidTransition)
	}
	old := b.Status
	b.Status = models.BantuanSelesai
	if err := s.repo.SaveBantuan(b); err != nil {
		return nil, err
	}
	s.record(Event{
		Aksi:      AksiPenyelesaian,
		NamaTabel: "bantuans",
		RowID:     b.ID,
		DataLama:  map[string]any{"status": old},
		DataBaru:  map[string]any{"status": b.Status},
	})
	return b, nil
}

// Batalkan cancels a grant from any state. Cancelling an already-cancelled
// grant is a no-op. Children are not cascaded.
func (s *Service) Batalkan(id uint, keterangan string) (*models.Bantuan, error) {
	b, err := s.repo.FindBantuan(id)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BantuanDibatalkan {
		return b, nil
	}
	old := b.Status
	b.Status = models.BantuanDibatalkan
	if keterangan != "" {
		b.Keterangan = keterangan
	}
	if err := s.repo.SaveBantuan(b); err != nil {
		return nil, err
	}
	s.record(Event{
		Aksi:       AksiPembatalan,
		NamaTabel:  "bantuans",
		RowID:      b.ID,
		DataLama:   map[string]any{"status": old},
		DataBaru:   map[string]any{"status": b.Status},
		Keterangan: keterangan,
	})
	return b, nil
}

// Salurkan marks one monthly slot as disbursed, stamping the current time.
// Allowed from belum_disalurkan and from gagal (retry after a failed
// attempt); a slot that is already disalurkan is rejected so the original
// payment timestamp is never overwritten.
func (s *Service) Salurkan(distribusiID uint, catatan string) (*models.DistribusiBantuan, error) {
	d, err := s.repo.FindDistribusi(distribusiID)
	if err != nil {
		return nil, err
	}
	if d.Status == models.DistribusiDisalurkan {
		return nil, fmt.Errorf("%w: bulan %d sudah disalurkan", ErrInvalidTransition, d.Bulan)
	}
	old := d.Status
	now := s.Now()
	d.Status = models.DistribusiDisalurkan
	d.TanggalPenyaluran = &now
	if catatan != "" {
		d.Catatan = catatan
	}
	if err := s.repo.SaveDistribusi(d); err != nil {
		return nil, err
	}
	s.record(Event{
		Aksi:      AksiDistribusi,
		NamaTabel: "distribusi_bantuans",
		RowID:     d.ID,
		DataLama:  map[string]any{"status": old},
		DataBaru: map[string]any{
			"status":             d.Status,
			"bulan":              d.Bulan,
			"tanggal_penyaluran": now.Format(time.RFC3339),
		},
		Keterangan: catatan,
	})
	return d, nil
}

// TandaiGagal marks a slot failed and stores the note. A previously stamped
// TanggalPenyaluran is deliberately left as-is.
func (s *Service) TandaiGagal(distribusiID uint, catatan string) (*models.DistribusiBantuan, error) {
	d, err := s.repo.FindDistribusi(distribusiID)
	if err != nil {
		return nil, err
	}
	old := d.Status
	d.Status = models.DistribusiGagal
	if catatan != "" {
		d.Catatan = catatan
	}
	if err := s.repo.SaveDistribusi(d); err != nil {
		return nil, err
	}
	s.record(Event{
		Aksi:       AksiGagalSalur,
		NamaTabel:  "distribusi_bantuans",
		RowID:      d.ID,
		DataLama:   map[string]any{"status": old},
		DataBaru:   map[string]any{"status": d.Status, "bulan": d.Bulan},
		Keterangan: catatan,
	})
	return d, nil
}

// Ringkasan is the per-grant read projection used by listing and detail
// views. Always recomputed from the current children and nominal.
type Ringkasan struct {
	BantuanID          uint            `json:"bantuan_id"`
	TotalBulan         int             `json:"total_bulan"`
	Tersalurkan        int             `json:"tersalurkan"`
	BelumDisalurkan    int             `json:"belum_disalurkan"`
	Gagal              int             `json:"gagal"`
	Persentase         float64         `json:"persentase"`
	SisaBulan          int             `json:"sisa_bulan"`
	TotalSetahun       decimal.Decimal `json:"total_setahun"`
	NominalTersalurkan decimal.Decimal `json:"nominal_tersalurkan"`
}

// HitungRingkasan summarizes a grant from its children.
func (s *Service) HitungRingkasan(id uint) (*Ringkasan, error) {
	b, err := s.repo.FindBantuan(id)
	if err != nil {
		return nil, err
	}
	children, err := s.repo.ListDistribusi(b.ID)
	if err != nil {
		return nil, err
	}
	r := &Ringkasan{BantuanID: b.ID, TotalBulan: TotalBulan}
	for _, d := range children {
		switch d.Status {
		case models.DistribusiDisalurkan:
			r.Tersalurkan++
		case models.DistribusiGagal:
			r.Gagal++
		default:
			r.BelumDisalurkan++
		}
	}
	if len(children) > 0 {
		r.Persentase = float64(r.Tersalurkan) / float64(TotalBulan) * 100
	}
	r.SisaBulan = TotalBulan - r.Tersalurkan
	r.TotalSetahun = b.NominalPerBulan.Mul(decimal.NewFromInt(TotalBulan))
	r.NominalTersalurkan = b.NominalPerBulan.Mul(decimal.NewFromInt(int64(r.Tersalurkan)))
	return r, nil
}

var namaBulan = [TotalBulan]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// NamaBulanSentinel is returned for month numbers outside 1..12. Month
// integrity is guaranteed by batch creation, so a bad number is rendered
// rather than rejected.
const NamaBulanSentinel = "Tidak diketahui"

// NamaBulan maps a month number 1..12 to its Indonesian name.
func NamaBulan(bulan int) string {
	if bulan < 1 || bulan > TotalBulan {
		return NamaBulanSentinel
	}
	return namaBulan[bulan-1]
}
