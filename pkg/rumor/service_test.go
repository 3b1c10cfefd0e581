package rumor

import (
	"testing"
)

func newService(member, group string, incarnation uint64) *Service {
	return &Service{
		MemberID:     member,
		ServiceGroup: group,
		Incarnation:  incarnation,
		Pkg:          "core/redis/4.0.14/20200421191514",
		FromID:       member,
		Expiration:   Forever(),
	}
}

func TestServiceInsertAndMerge(t *testing.T) {
	rs := NewStore[*Service](nil)
	if !rs.Insert(newService("m1", "redis.default", 1)) {
		t.Fatal("first insert should change")
	}
	if !rs.Insert(newService("m1", "redis.default", 2)) {
		t.Fatal("higher incarnation should change")
	}
	if got := rs.LenForKey("redis.default"); got != 1 {
		t.Fatalf("unexpected rumor count: %d", got)
	}
	rs.AssertRumor("redis.default", "m1", func(s *Service) bool { return s.Incarnation == 2 })
	if got := rs.GetUpdateCounter(); got != 2 {
		t.Fatalf("counter should be incremented exactly twice, got: %d", got)
	}
}

func TestServiceMergeEqualIncarnationIsNoOp(t *testing.T) {
	s := newService("m1", "redis.default", 2)
	other := newService("m1", "redis.default", 2)
	other.Pkg = "core/redis/5.0.0/20200501000000"
	if s.Merge(other) {
		t.Fatal("equal incarnation should not merge")
	}
	if s.Pkg != "core/redis/4.0.14/20200421191514" {
		t.Fatalf("payload should be unchanged: %s", s.Pkg)
	}
}

func TestServiceMergeReplacesAllFields(t *testing.T) {
	s := newService("m1", "redis.default", 1)
	other := newService("m1", "redis.default", 2)
	other.Initialized = true
	other.Cfg = []byte("port = 6380")
	if !s.Merge(other) {
		t.Fatal("higher incarnation should merge")
	}
	if !s.Initialized || string(s.Cfg) != "port = 6380" {
		t.Fatalf("fields not replaced: %+v", s)
	}
}
