package store

import (
	"sort"
	"sync"
	"time"

	"medexplain/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User // key: user ID
	email    map[string]string      // email -> user ID
	reports  map[string]domain.Report
	messages map[string]domain.ChatMessage
	order    []string // message IDs in insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		reports:  make(map[string]domain.Report),
		messages: make(map[string]domain.ChatMessage),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) SaveReport(r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.reports[r.ID]; ok {
		r.OwnerID = prev.OwnerID
		r.CreatedAt = prev.CreatedAt
	}
	r.KeyFindings = cloneFindings(r.KeyFindings)
	m.reports[r.ID] = r
	return nil
}

func (m *MemoryStore) SetReportStatus(id string, status domain.ReportStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil
	}
	r.Status = status
	r.ErrorMessage = errMsg
	r.UpdatedAt = time.Now().UTC()
	m.reports[id] = r
	return nil
}

func (m *MemoryStore) GetReport(id string) (domain.Report, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if ok {
		r.KeyFindings = cloneFindings(r.KeyFindings)
	}
	return r, ok, nil
}

// ListReportsByOwner returns an owner's reports, newest first.
func (m *MemoryStore) ListReportsByOwner(ownerID string) ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Report, 0)
	for _, r := range m.reports {
		if r.OwnerID == ownerID {
			r.KeyFindings = cloneFindings(r.KeyFindings)
			res = append(res, r)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteReport(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	m.removeMessages(func(msg domain.ChatMessage) bool { return msg.ReportID == id })
	return nil
}

func (m *MemoryStore) CountReports(ownerID string, filter ReportFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.reports {
		if r.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) AppendMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		m.order = append(m.order, msg.ID)
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *MemoryStore) GetMessage(id string) (domain.ChatMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	return msg, ok, nil
}

// ListMessages returns the latest limit messages of a scope, oldest first.
func (m *MemoryStore) ListMessages(ownerID, reportID string, limit int) ([]domain.ChatMessage, error) {
	msgs := m.filterMessages(func(msg domain.ChatMessage) bool {
		return msg.OwnerID == ownerID && msg.ReportID == reportID
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *MemoryStore) ListMessagesByOwner(ownerID string) ([]domain.ChatMessage, error) {
	return m.filterMessages(func(msg domain.ChatMessage) bool { return msg.OwnerID == ownerID }), nil
}

func (m *MemoryStore) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeMessages(func(msg domain.ChatMessage) bool { return msg.ID == id })
	return nil
}

func (m *MemoryStore) DeleteMessages(ownerID, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeMessages(func(msg domain.ChatMessage) bool {
		return msg.OwnerID == ownerID && msg.ReportID == reportID
	})
	return nil
}

func (m *MemoryStore) CountMessages(ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, msg := range m.messages {
		if msg.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// filterMessages returns matches ordered by timestamp, then ID, matching
// GormStore.
func (m *MemoryStore) filterMessages(keep func(domain.ChatMessage) bool) []domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatMessage, 0)
	for _, id := range m.order {
		if msg, ok := m.messages[id]; ok && keep(msg) {
			res = append(res, msg)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// removeMessages must be called with mu held.
func (m *MemoryStore) removeMessages(drop func(domain.ChatMessage) bool) {
	kept := m.order[:0]
	for _, id := range m.order {
		msg, ok := m.messages[id]
		if !ok {
			continue
		}
		if drop(msg) {
			delete(m.messages, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func cloneFindings(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	return out
}
