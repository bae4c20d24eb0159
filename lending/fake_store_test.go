package lending_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/google/uuid"
)

// memStore is an in-memory db.Store. Transactions are serialized and rolled
// back by restoring a snapshot, which is enough to observe atomicity.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	items     map[string]models.Item
	lendings  map[string]models.Lending
	blacklist map[string]models.BlacklistEntry
	approvals map[string]models.ApprovalRequest
	failOn    map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		items:     map[string]models.Item{},
		lendings:  map[string]models.Lending{},
		blacklist: map[string]models.BlacklistEntry{},
		approvals: map[string]models.ApprovalRequest{},
		failOn:    map[string]error{},
	}
}

type memTx struct{ *memStore }

func (t memTx) Transaction(_ context.Context, fn func(tx db.Store) error) error { return fn(t) }

type memSnapshot struct {
	items     map[string]models.Item
	lendings  map[string]models.Lending
	blacklist map[string]models.BlacklistEntry
	approvals map[string]models.ApprovalRequest
}

func (s *memStore) Transaction(_ context.Context, fn func(tx db.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := memSnapshot{maps.Clone(s.items), maps.Clone(s.lendings), maps.Clone(s.blacklist), maps.Clone(s.approvals)}
	s.mu.Unlock()

	if err := fn(memTx{s}); err != nil {
		s.mu.Lock()
		s.items, s.lendings, s.blacklist, s.approvals = snap.items, snap.lendings, snap.blacklist, snap.approvals
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failOn[op]
}

// seeding helpers

func (s *memStore) addItem(scope tenant.Tenant, total, available int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.items[id] = models.Item{ID: id, OrgID: scope.OrgID, InstanceID: scope.InstanceID, Name: "item", TotalCount: total, AvailableCount: available}
	return id
}

func (s *memStore) item(id string) models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

func (s *memStore) lending(id string) models.Lending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lendings[id]
}

func (s *memStore) approval(id string) models.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvals[id]
}

func (s *memStore) putBlacklist(e models.BlacklistEntry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.blacklist[e.ID] = e
	return e.ID
}

func (s *memStore) activeBlacklist(userID string) []models.BlacklistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BlacklistEntry
	for _, e := range s.blacklist {
		if e.UserID == userID && e.IsActive {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) countLendings(itemID string, state models.LendingState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lendings {
		if l.ItemID == itemID && l.State == state {
			n++
		}
	}
	return n
}

func (s *memStore) countApprovals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.approvals)
}

// db.Store

func (s *memStore) FindItemByID(_ context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &it, nil
}

func (s *memStore) LockItem(ctx context.Context, id string) (*models.Item, error) {
	return s.FindItemByID(ctx, id)
}

func (s *memStore) SetItemAvailable(_ context.Context, id string, available int) error {
	if err := s.fail("SetItemAvailable"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return db.ErrNotFound
	}
	if available < 0 || available > it.TotalCount {
		return fmt.Errorf("check constraint violated: available %d of %d", available, it.TotalCount)
	}
	it.AvailableCount = available
	s.items[id] = it
	return nil
}

func (s *memStore) CreateLending(_ context.Context, l *models.Lending) error {
	if err := s.fail("CreateLending"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lendings[l.ID]; ok {
		return db.ErrDuplicate
	}
	s.lendings[l.ID] = *l
	return nil
}

func (s *memStore) FindLendingByID(_ context.Context, id string) (*models.Lending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lendings[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &l, nil
}

func (s *memStore) LockLending(ctx context.Context, id string) (*models.Lending, error) {
	return s.FindLendingByID(ctx, id)
}

func (s *memStore) SaveLending(_ context.Context, l *models.Lending) error {
	if err := s.fail("SaveLending"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lendings[l.ID] = *l
	return nil
}

func (s *memStore) CountOpenLendings(_ context.Context, scope tenant.Tenant, borrowerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.lendings {
		if l.BorrowerID == borrowerID && l.Scope() == scope && l.State == models.LendingActive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindBlockingEntry(_ context.Context, scope tenant.Tenant, userID string, now time.Time) (*models.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.BlacklistEntry
	for _, e := range s.blacklist {
		if e.UserID != userID || e.OrgID != scope.OrgID {
			continue
		}
		if e.InstanceID != "" && e.InstanceID != scope.InstanceID {
			continue
		}
		if !e.BlocksAt(now) {
			continue
		}
		if best == nil || e.BlockedUntil.After(best.BlockedUntil) {
			best = &e
		}
	}
	return best, nil
}

func (s *memStore) LockActiveBlacklist(_ context.Context, scope tenant.Tenant, userID string) (*models.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.blacklist {
		if e.UserID == userID && e.Scope() == scope && e.IsActive {
			return &e, nil
		}
	}
	return nil, nil
}

func (s *memStore) LockBlacklistEntry(_ context.Context, id string) (*models.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.blacklist[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) CreateBlacklistEntry(_ context.Context, e *models.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.blacklist {
		if other.IsActive && other.UserID == e.UserID && other.Scope() == e.Scope() {
			return fmt.Errorf("%w: lsb_blacklist_one_active_per_user", db.ErrDuplicate)
		}
	}
	s.blacklist[e.ID] = *e
	return nil
}

func (s *memStore) SaveBlacklistEntry(_ context.Context, e *models.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[e.ID] = *e
	return nil
}

func (s *memStore) CreateApproval(_ context.Context, a *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = *a
	return nil
}

func (s *memStore) FindApprovalByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) LockApproval(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return s.FindApprovalByID(ctx, id)
}

func (s *memStore) SaveApproval(_ context.Context, a *models.ApprovalRequest) error {
	if err := s.fail("SaveApproval"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = *a
	return nil
}

func inScope(scope tenant.Tenant, org, inst string) bool {
	return org == scope.OrgID && (scope.InstanceID == "" || inst == scope.InstanceID)
}

func (s *memStore) ListLendings(_ context.Context, q db.LendingsQuery) (*db.PagedLendings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &db.PagedLendings{}
	for _, l := range s.lendings {
		if !inScope(q.Scope, l.OrgID, l.InstanceID) {
			continue
		}
		if (q.BorrowerID != "" && l.BorrowerID != q.BorrowerID) || (q.ItemID != "" && l.ItemID != q.ItemID) {
			continue
		}
		if q.Status != "" && l.StatusAt(q.Now) != q.Status {
			continue
		}
		out.Items = append(out.Items, l)
	}
	out.Total = int64(len(out.Items))
	return out, nil
}

func (s *memStore) ListApprovals(_ context.Context, q db.ApprovalsQuery) (*db.PagedApprovals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &db.PagedApprovals{}
	for _, a := range s.approvals {
		if !inScope(q.Scope, a.OrgID, a.InstanceID) {
			continue
		}
		if (q.RequesterID != "" && a.RequesterID != q.RequesterID) || (q.Status != "" && a.Status != q.Status) {
			continue
		}
		out.Items = append(out.Items, a)
	}
	out.Total = int64(len(out.Items))
	return out, nil
}

// collaborators

type staticPolicies struct{ p policy.Policy }

func (s staticPolicies) Get(context.Context, tenant.Tenant) (policy.Policy, error) { return s.p, nil }

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
	err error
}

func (r *recorder) Publish(_ context.Context, evs ...events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.evs = append(r.evs, evs...)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evs))
	for _, e := range r.evs {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errBoom = errors.New("boom")

// racingBlacklistStore commits a competing active entry for the borrower just
// before the first blacklist insert, the way a parallel late return would.
type racingBlacklistStore struct {
	*memStore
	competitor models.BlacklistEntry
	raced      bool
	attempts   int
}

func (s *racingBlacklistStore) Transaction(ctx context.Context, fn func(tx db.Store) error) error {
	s.attempts++
	committed := false
	err := s.memStore.Transaction(ctx, func(tx db.Store) error {
		return fn(racingTx{Store: tx, race: func() {
			if !s.raced {
				s.raced, committed = true, true
				s.putBlacklist(s.competitor)
			}
		}})
	})
	if committed && err != nil {
		// the other transaction's insert survives our rollback
		s.putBlacklist(s.competitor)
	}
	return err
}

type racingTx struct {
	db.Store
	race func()
}

func (t racingTx) CreateBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	t.race()
	return t.Store.CreateBlacklistEntry(ctx, e)
}
