package rumor

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeRumor never merges, so re-inserting an existing id is always
// ignored.
type fakeRumor struct {
	id         string
	key        string
	expiration Expiration
}

func newFakeRumor() *fakeRumor {
	return &fakeRumor{
		id:         uuid.New().String(),
		key:        "fakerton",
		expiration: Forever(),
	}
}

func (f *fakeRumor) Kind() Kind                  { return KindService }
func (f *fakeRumor) ID() string                  { return f.id }
func (f *fakeRumor) Key() string                 { return f.key }
func (f *fakeRumor) Merge(other *fakeRumor) bool { return false }
func (f *fakeRumor) Expired(now time.Time) bool  { return f.expiration.Expired(now) }
func (f *fakeRumor) Expire()                     { f.expiration.Expire() }
func (f *fakeRumor) Clone() *fakeRumor {
	c := *f
	return &c
}
func (f *fakeRumor) Encode() ([]byte, error) {
	return []byte(f.id + "-" + f.key), nil
}

type countingObserver struct {
	ignored map[Kind]int
}

func (o *countingObserver) RumorIgnored(kind Kind) {
	if o.ignored == nil {
		o.ignored = make(map[Kind]int)
	}
	o.ignored[kind]++
}

func TestUpdateCounter(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	rs.incrementUpdateCounter()
	if got := rs.GetUpdateCounter(); got != 1 {
		t.Fatalf("unexpected update counter: %d", got)
	}
}

func TestUpdateCounterOverflowsSafely(t *testing.T) {
	rs := NewStoreWithCounter[*fakeRumor](nil, math.MaxUint64)
	rs.incrementUpdateCounter()
	if got := rs.GetUpdateCounter(); got != 0 {
		t.Fatalf("counter should wrap to 0, got: %d", got)
	}
}

func TestInsertAddsRumorWhenEmpty(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	if !rs.Insert(newFakeRumor()) {
		t.Fatal("insert of new rumor should report changed")
	}
	if got := rs.GetUpdateCounter(); got != 1 {
		t.Fatalf("unexpected update counter: %d", got)
	}
}

func TestInsertAddsMultipleRumorsForSameKey(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f1 := newFakeRumor()
	f2 := newFakeRumor()
	if !rs.Insert(f1) || !rs.Insert(f2) {
		t.Fatal("inserts should report changed")
	}
	if got := rs.LenForKey("fakerton"); got != 2 {
		t.Fatalf("unexpected rumor count: %d", got)
	}
	rs.AssertRumor("fakerton", f1.id, func(r *fakeRumor) bool { return r.id == f1.id })
	rs.AssertRumor("fakerton", f2.id, func(r *fakeRumor) bool { return r.id == f2.id })
}

func TestInsertReturnsFalseOnNoChanges(t *testing.T) {
	obs := &countingObserver{}
	rs := NewStore[*fakeRumor](obs)
	f1 := newFakeRumor()
	f2 := f1.Clone()
	if !rs.Insert(f1) {
		t.Fatal("first insert should change")
	}
	if rs.Insert(f2) {
		t.Fatal("duplicate insert should not change")
	}
	if got := rs.GetUpdateCounter(); got != 1 {
		t.Fatalf("unexpected update counter: %d", got)
	}
	if got := obs.ignored[KindService]; got != 1 {
		t.Fatalf("ignored counter should be bumped once, got: %d", got)
	}
}

func TestContainsRumor(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	if rs.ContainsRumor("bar", "foo") {
		t.Fatal("empty store should not contain rumors")
	}
	f := newFakeRumor()
	rs.Insert(f)
	if !rs.ContainsRumor(f.key, f.id) {
		t.Fatal("inserted rumor should be present")
	}
}

func TestRemove(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	rs.Insert(f)
	rs.Remove(f.key, f.id)
	if rs.ContainsRumor(f.key, f.id) {
		t.Fatal("removed rumor still present")
	}
}

func TestClearResetsCounter(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	rs.Insert(newFakeRumor())
	rs.Insert(newFakeRumor())
	if prior := rs.Clear(); prior != 2 {
		t.Fatalf("unexpected prior counter: %d", prior)
	}
	if got := rs.GetUpdateCounter(); got != 0 {
		t.Fatalf("counter should reset to 0, got: %d", got)
	}
	if got := rs.LenForKey("fakerton"); got != 0 {
		t.Fatalf("store should be empty, got: %d", got)
	}
}

func TestEncodeMissingRumor(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	if _, err := rs.Encode("nope", "nothing"); err == nil {
		t.Fatal("expected NonExistentRumorError")
	}
}

func TestWithRumorCallsClosure(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	rs.Insert(f)
	called := false
	rs.WithRumor(f.key, f.id, func(r *fakeRumor) {
		called = true
		if r.id != f.id {
			t.Fatalf("unexpected rumor: %s", r.id)
		}
	})
	if !called {
		t.Fatal("closure never called")
	}
}

func TestPurgeExpired(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	f.expiration = NewExpiration(time.Now().Add(-1 * time.Second))
	rs.Insert(f)
	if !rs.ContainsRumor(f.key, f.id) {
		t.Fatal("rumor should exist before purge")
	}
	rs.PurgeExpired(time.Now())
	if rs.ContainsRumor(f.key, f.id) {
		t.Fatal("expired rumor should have been purged")
	}
}

func TestLiveAndExpiredRumors(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	live := newFakeRumor()
	dead := newFakeRumor()
	dead.expiration = NewExpiration(time.Now().Add(-1 * time.Hour))
	rs.Insert(live)
	rs.Insert(dead)
	now := time.Now()
	if got := rs.LiveRumors(now); len(got) != 1 || got[0].id != live.id {
		t.Fatalf("unexpected live rumors: %+v", got)
	}
	if got := rs.ExpiredRumors(now); len(got) != 1 || got[0].id != dead.id {
		t.Fatalf("unexpected expired rumors: %+v", got)
	}
}

func TestRumorKeysSkipsExpired(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	live := newFakeRumor()
	dead := newFakeRumor()
	dead.expiration = NewExpiration(time.Now().Add(-1 * time.Hour))
	rs.Insert(live)
	rs.Insert(dead)
	keys := rs.RumorKeys()
	if len(keys) != 1 {
		t.Fatalf("unexpected rumor keys: %+v", keys)
	}
	if keys[0].ID != live.id || keys[0].Key != live.key || keys[0].Kind != KindService {
		t.Fatalf("unexpected rumor key: %+v", keys[0])
	}
}

func TestExpireAllForKey(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	rs.Insert(f)
	rs.ExpireAllForKey(f.key)
	// The rumor now expires within the soon window rather than forever.
	horizon := time.Now().Add(2 * time.Hour)
	if got := rs.ExpiredRumors(horizon); len(got) != 1 {
		t.Fatalf("rumor should expire within the soon window: %+v", got)
	}
}

func TestContainsGroupWithoutMember(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	rs.Insert(f)
	if !rs.ContainsGroupWithoutMember(f.key, "someone-else") {
		t.Fatal("group exists without the member")
	}
	if rs.ContainsGroupWithoutMember(f.key, f.id) {
		t.Fatal("member is present in the group")
	}
	if rs.ContainsGroupWithoutMember("no-such-group", "anyone") {
		t.Fatal("missing group should report false")
	}
}

func TestContainsGroupWithoutMemberAfterGroupEmpties(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	f := newFakeRumor()
	rs.Insert(f)
	rs.Remove(f.key, f.id)
	// The group was seen once; removing its last rumor does not make it
	// unknown.
	if !rs.ContainsGroupWithoutMember(f.key, f.id) {
		t.Fatal("emptied group should still report true")
	}

	g := newFakeRumor()
	g.expiration = NewExpiration(time.Now().Add(-1 * time.Hour))
	rs.Insert(g)
	rs.PurgeExpired(time.Now())
	if !rs.ContainsGroupWithoutMember(g.key, g.id) {
		t.Fatal("purged-out group should still report true")
	}
}

func TestMinMemberIDWith(t *testing.T) {
	rs := NewStore[*fakeRumor](nil)
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		rs.Insert(&fakeRumor{id: id, key: "g", expiration: Forever()})
	}
	min, ok := rs.MinMemberIDWith("g", func(string) bool { return true })
	if !ok || min != "alpha" {
		t.Fatalf("unexpected min member: %v %v", min, ok)
	}
	min, ok = rs.MinMemberIDWith("g", func(id string) bool { return id != "alpha" })
	if !ok || min != "bravo" {
		t.Fatalf("unexpected filtered min member: %v %v", min, ok)
	}
	if _, ok := rs.MinMemberIDWith("g", func(string) bool { return false }); ok {
		t.Fatal("no member should satisfy the predicate")
	}
}

func TestRumorKeyString(t *testing.T) {
	k := NewRumorKey(KindMember, "my-sweet-id", "my-sweet-key")
	if k.Kind.String() != "member" {
		t.Fatalf("unexpected kind string: %s", k.Kind)
	}
	if k.String() != "my-sweet-id-my-sweet-key" {
		t.Fatalf("unexpected key string: %s", k)
	}
	if got := NewRumorKey(KindMember, "id-only", "").String(); got != "id-only" {
		t.Fatalf("unexpected key string: %s", got)
	}
}
