package admission

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"

	"AttendGate/internal/model"
	"AttendGate/internal/repository"
)

type fakeProfiles struct {
	profiles map[string]*model.EnrolledProfile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*model.EnrolledProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return p, nil
}

// memRecords 内存实现，同样保证每个用户最多一条未签退记录
type memRecords struct {
	mu      sync.Mutex
	records []*model.AttendanceRecord
	// skipFind 模拟查询与写入之间的竞争窗口
	skipFind  bool
	createErr error
}

func (m *memRecords) FindOpen(_ context.Context, userID string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipFind {
		return nil, repository.ErrNoOpenRecord
	}
	for _, r := range m.records {
		if r.UserID == userID && r.CheckOutTime == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNoOpenRecord
}

func (m *memRecords) CreateCheckIn(_ context.Context, rec *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, r := range m.records {
		if r.UserID == rec.UserID && r.CheckOutTime == nil {
			return repository.ErrOpenRecordExists
		}
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memRecords) CompleteCheckOut(_ context.Context, rec *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == rec.ID && r.CheckOutTime == nil {
			r.CheckOutTime = rec.CheckOutTime
			r.TotalMinutes = rec.TotalMinutes
			r.Status = rec.Status
			return nil
		}
	}
	return repository.ErrNoOpenRecord
}

func (m *memRecords) openCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && r.CheckOutTime == nil {
			n++
		}
	}
	return n
}

func (m *memRecords) all() []model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AttendanceRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out
}

type staticOffice struct {
	cfg model.OfficeConfig
	err error
}

func (s *staticOffice) Current(context.Context) (*model.OfficeConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := s.cfg
	return &cfg, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() (int64, error) {
	return s.n.Add(1), nil
}

var errStoreDown = errors.New("store unavailable")

var officeLocation = model.GeoPoint{Lat: 31.2304, Lng: 121.4737}

// offsetNorth 向北偏移指定米数
func offsetNorth(p model.GeoPoint, meters float64) model.GeoPoint {
	return model.GeoPoint{Lat: p.Lat + meters/EarthRadiusMeters*180/math.Pi, Lng: p.Lng}
}

func unitVector(axis int) []float64 {
	v := make([]float64, model.EmbeddingDim)
	v[axis] = 1
	return v
}

func profileOf(userID string, vectors ...[]float64) *model.EnrolledProfile {
	return &model.EnrolledProfile{UserID: userID, Embeddings: datatypes.NewJSONType(vectors)}
}
