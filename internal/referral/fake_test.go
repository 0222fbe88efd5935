// AngelaMos | 2026
// fake_test.go

package referral

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TatyOko28/refresh-system/internal/core"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

type memUser struct {
	ref          UserRef
	passwordHash string
	attrs        Attrs
}

type memState struct {
	users     map[string]memUser
	codes     []Code
	referrals []Referral
	seq       int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:     make(map[string]memUser, len(s.users)),
		codes:     append([]Code(nil), s.codes...),
		referrals: append([]Referral(nil), s.referrals...),
		seq:       s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// memStore is a transactional in-memory Store. Transactions are fully
// serialized and only commit when fn returns nil.
type memStore struct {
	mu          sync.Mutex
	state       *memState
	clock       *fakeClock
	failures    map[string]error
	alwaysTaken bool
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		state:    &memState{users: map[string]memUser{}},
		clock:    clock,
		failures: map[string]error{},
	}
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *memStore) addUser(email string) UserRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := UserRef{ID: uuid.New().String(), Email: email}
	s.state.users[ref.ID] = memUser{ref: ref}
	return ref
}

func (s *memStore) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) Codes() Repository {
	return &memView{store: s}
}

func (s *memStore) Users() UserDirectory {
	return &memView{store: s}
}

func (s *memStore) WithinTx(
	ctx context.Context,
	fn func(codes Repository, users UserDirectory) error,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	view := &memView{store: s, tx: work}
	if err := fn(view, view); err != nil {
		return err
	}

	s.state = work
	return nil
}

// memView implements both Repository and UserDirectory. Outside a
// transaction it locks the store per call; inside one it works on the
// transaction's private copy.
type memView struct {
	store *memStore
	tx    *memState
}

func (v *memView) do(op string, fn func(st *memState) error) error {
	if v.tx != nil {
		if err := v.store.failures[op]; err != nil {
			return err
		}
		return fn(v.tx)
	}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if err := v.store.failures[op]; err != nil {
		return err
	}
	return fn(v.store.state)
}

func (v *memView) now() time.Time {
	return v.store.clock.Now()
}

func (v *memView) Create(
	ctx context.Context,
	email, passwordHash string,
	attrs Attrs,
) (*UserRef, error) {
	var ref *UserRef
	err := v.do("Create", func(st *memState) error {
		for _, u := range st.users {
			if u.ref.Email == email {
				return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
			}
		}
		u := memUser{
			ref:          UserRef{ID: uuid.New().String(), Email: email},
			passwordHash: passwordHash,
			attrs:        attrs,
		}
		st.users[u.ref.ID] = u
		r := u.ref
		ref = &r
		return nil
	})
	return ref, err
}

func (v *memView) Exists(ctx context.Context, email string) (bool, error) {
	var found bool
	err := v.do("Exists", func(st *memState) error {
		for _, u := range st.users {
			if u.ref.Email == email {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (v *memView) Find(ctx context.Context, email string) (*UserRef, error) {
	var ref *UserRef
	err := v.do("Find", func(st *memState) error {
		for _, u := range st.users {
			if u.ref.Email == email {
				r := u.ref
				ref = &r
				return nil
			}
		}
		return fmt.Errorf("get user by email: %w", core.ErrNotFound)
	})
	return ref, err
}

func (v *memView) FindByID(ctx context.Context, id string) (*UserRef, error) {
	var ref *UserRef
	err := v.do("FindByID", func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("get user: %w", core.ErrNotFound)
		}
		r := u.ref
		ref = &r
		return nil
	})
	return ref, err
}

func (v *memView) LockOwner(ctx context.Context, ownerID string) error {
	return v.do("LockOwner", func(st *memState) error {
		if _, ok := st.users[ownerID]; !ok {
			return fmt.Errorf("lock owner: %w", core.ErrNotFound)
		}
		return nil
	})
}

func (v *memView) DeactivateAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := v.do("DeactivateAllForOwner", func(st *memState) error {
		for i := range st.codes {
			if st.codes[i].OwnerID == ownerID && st.codes[i].IsActive {
				st.codes[i].IsActive = false
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v *memView) CodeExists(ctx context.Context, code string) (bool, error) {
	var found bool
	err := v.do("CodeExists", func(st *memState) error {
		if v.store.alwaysTaken {
			found = true
			return nil
		}
		for _, c := range st.codes {
			if c.Code == code {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (v *memView) CreateCode(ctx context.Context, code *Code) error {
	return v.do("CreateCode", func(st *memState) error {
		for _, c := range st.codes {
			if c.Code == code.Code || (code.IsActive && c.IsActive && c.OwnerID == code.OwnerID) {
				return fmt.Errorf("create code: %w", core.ErrDuplicateKey)
			}
		}
		code.CreatedAt = v.now()
		st.codes = append(st.codes, *code)
		return nil
	})
}

func (v *memView) findCode(op string, match func(c Code) bool) (*Code, error) {
	var found *Code
	err := v.do(op, func(st *memState) error {
		for i := len(st.codes) - 1; i >= 0; i-- {
			if match(st.codes[i]) {
				c := st.codes[i]
				found = &c
				return nil
			}
		}
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	})
	return found, err
}

func (v *memView) FindActiveByCode(ctx context.Context, code string, now time.Time) (*Code, error) {
	return v.findCode("FindActiveByCode", func(c Code) bool {
		return c.Code == code && c.Usable(now)
	})
}

func (v *memView) LockActiveByCode(ctx context.Context, code string, now time.Time) (*Code, error) {
	return v.findCode("LockActiveByCode", func(c Code) bool {
		return c.Code == code && c.Usable(now)
	})
}

func (v *memView) FindActiveByOwner(ctx context.Context, ownerID string, now time.Time) (*Code, error) {
	return v.findCode("FindActiveByOwner", func(c Code) bool {
		return c.OwnerID == ownerID && c.Usable(now)
	})
}

func (v *memView) deactivateWhere(op string, match func(c Code) bool) error {
	return v.do(op, func(st *memState) error {
		for i := range st.codes {
			if st.codes[i].IsActive && match(st.codes[i]) {
				st.codes[i].IsActive = false
				return nil
			}
		}
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	})
}

func (v *memView) Deactivate(ctx context.Context, code, ownerID string) error {
	return v.deactivateWhere("Deactivate", func(c Code) bool {
		return c.Code == code && c.OwnerID == ownerID
	})
}

func (v *memView) DeactivateByID(ctx context.Context, id string) error {
	return v.deactivateWhere("DeactivateByID", func(c Code) bool {
		return c.ID == id
	})
}

func (v *memView) CreateReferral(ctx context.Context, ref *Referral) error {
	return v.do("CreateReferral", func(st *memState) error {
		for _, r := range st.referrals {
			if r.ReferredID == ref.ReferredID {
				return fmt.Errorf("create referral: %w", core.ErrDuplicateKey)
			}
		}
		st.seq++
		ref.Seq = st.seq
		ref.CreatedAt = v.now()
		st.referrals = append(st.referrals, *ref)
		return nil
	})
}

func (v *memView) CountByReferrer(ctx context.Context, referrerID string) (int, error) {
	var n int
	err := v.do("CountByReferrer", func(st *memState) error {
		for _, r := range st.referrals {
			if r.ReferrerID == referrerID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v *memView) ListByReferrer(ctx context.Context, referrerID string, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := v.do("ListByReferrer", func(st *memState) error {
		var refs []Referral
		for _, r := range st.referrals {
			if r.ReferrerID == referrerID {
				refs = append(refs, r)
			}
		}
		sort.SliceStable(refs, func(i, j int) bool {
			if !refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
				return refs[i].CreatedAt.After(refs[j].CreatedAt)
			}
			return refs[i].Seq < refs[j].Seq
		})
		if limit > 0 && len(refs) > limit {
			refs = refs[:limit]
		}
		codes := make(map[string]string, len(st.codes))
		for _, c := range st.codes {
			codes[c.ID] = c.Code
		}
		for _, r := range refs {
			entries = append(entries, Entry{
				ID:            r.ID,
				ReferrerEmail: st.users[r.ReferrerID].ref.Email,
				ReferredEmail: st.users[r.ReferredID].ref.Email,
				Code:          codes[r.ReferralCodeID],
				CreatedAt:     r.CreatedAt,
			})
		}
		return nil
	})
	return entries, err
}

func (v *memView) Totals(ctx context.Context) (*Totals, error) {
	var t Totals
	err := v.do("Totals", func(st *memState) error {
		now := v.now()
		t.Codes = len(st.codes)
		t.Referrals = len(st.referrals)
		for _, c := range st.codes {
			if c.Usable(now) {
				t.ActiveCodes++
			}
		}
		return nil
	})
	return &t, err
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	v, ok := c.data[key]
	if !ok {
		return "", core.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for _, k := range keys {
		delete(c.data, k)
		delete(c.ttls, k)
	}
	return nil
}

func (c *memCache) peek(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

var (
	_ Store         = (*memStore)(nil)
	_ Repository    = (*memView)(nil)
	_ UserDirectory = (*memView)(nil)
	_ core.Cache    = (*memCache)(nil)
)
