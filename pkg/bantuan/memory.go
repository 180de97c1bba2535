package bantuan

import (
	"fmt"
	"sync"

	"sibansos/models"
)

// MemoryRepository is an in-memory Repository used by unit tests and local
// experiments. A single mutex serialises all access, which also stands in for
// the row-level serialisation the Postgres adapter gets from its transaction.
type MemoryRepository struct {
	mu             sync.Mutex
	bantuan        map[uint]models.Bantuan
	distribusi     map[uint]models.DistribusiBantuan
	nextBantuan    uint
	nextDistribusi uint
	inTx           bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bantuan:        map[uint]models.Bantuan{},
		distribusi:     map[uint]models.DistribusiBantuan{},
		nextBantuan:    1,
		nextDistribusi: 1,
	}
}

func (m *MemoryRepository) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryRepository) FindBantuan(id uint) (*models.Bantuan, error) {
	defer m.lock()()
	b, ok := m.bantuan[id]
	if !ok {
		return nil, fmt.Errorf("%w: bantuan %d", ErrNotFound, id)
	}
	cp := b
	return &cp, nil
}

func (m *MemoryRepository) SaveBantuan(b *models.Bantuan) error {
	defer m.lock()()
	if b.ID == 0 {
		b.ID = m.nextBantuan
		m.nextBantuan++
	}
	m.bantuan[b.ID] = *b
	return nil
}

func (m *MemoryRepository) ExistsBantuanNonBatal(keluargaID uint, tahun int) (bool, error) {
	defer m.lock()()
	for _, b := range m.bantuan {
		if b.KeluargaID == keluargaID && b.TahunAnggaran == tahun && b.Status != models.BantuanDibatalkan {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) FindDistribusi(id uint) (*models.DistribusiBantuan, error) {
	defer m.lock()()
	d, ok := m.distribusi[id]
	if !ok {
		return nil, fmt.Errorf("%w: distribusi %d", ErrNotFound, id)
	}
	cp := d
	return &cp, nil
}

func (m *MemoryRepository) SaveDistribusi(d *models.DistribusiBantuan) error {
	defer m.lock()()
	if d.ID == 0 {
		d.ID = m.nextDistribusi
		m.nextDistribusi++
	}
	m.distribusi[d.ID] = *d
	return nil
}

func (m *MemoryRepository) ListDistribusi(bantuanID uint) ([]models.DistribusiBantuan, error) {
	defer m.lock()()
	var out []models.DistribusiBantuan
	for bln := 1; bln <= TotalBulan; bln++ {
		for _, d := range m.distribusi {
			if d.BantuanID == bantuanID && d.Bulan == bln {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (m *MemoryRepository) CountDistribusi(bantuanID uint) (int64, error) {
	defer m.lock()()
	var n int64
	for _, d := range m.distribusi {
		if d.BantuanID == bantuanID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) CreateDistribusiBatch(rows []models.DistribusiBantuan) error {
	defer m.lock()()
	for _, row := range rows {
		for _, existing := range m.distribusi {
			if existing.BantuanID == row.BantuanID && existing.Bulan == row.Bulan {
				return fmt.Errorf("%w: bulan %d sudah dibuat", ErrConcurrency, row.Bulan)
			}
		}
	}
	for _, row := range rows {
		row.ID = m.nextDistribusi
		m.nextDistribusi++
		m.distribusi[row.ID] = row
	}
	return nil
}

// Transaction serialises fn under the repository mutex. Rollback is not
// simulated; the uniqueness pre-check in CreateDistribusiBatch runs before
// any insert, which preserves the all-or-nothing activation behaviour.
func (m *MemoryRepository) Transaction(fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &MemoryRepository{
		bantuan:        m.bantuan,
		distribusi:     m.distribusi,
		nextBantuan:    m.nextBantuan,
		nextDistribusi: m.nextDistribusi,
		inTx:           true,
	}
	err := fn(tx)
	m.nextBantuan = tx.nextBantuan
	m.nextDistribusi = tx.nextDistribusi
	return err
}
