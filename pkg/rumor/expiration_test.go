package rumor

import (
	"os"
	"testing"
	"time"
)

func TestForeverOutlivesAnyReasonableHorizon(t *testing.T) {
	e := Forever()
	if e.Expired(time.Now().Add(24 * 365 * time.Hour)) {
		t.Fatal("forever should not expire within a year")
	}
}

func TestSoonDefaultsToAnHour(t *testing.T) {
	os.Unsetenv("HAB_RUMOR_EXPIRATION_SECS")
	e := Soon()
	if e.Expired(time.Now().Add(59 * time.Minute)) {
		t.Fatal("soon should outlive 59 minutes")
	}
	if !e.Expired(time.Now().Add(61 * time.Minute)) {
		t.Fatal("soon should expire within 61 minutes")
	}
}

func TestSoonWindowFromEnvironment(t *testing.T) {
	t.Setenv("HAB_RUMOR_EXPIRATION_SECS", "60")
	e := Soon()
	if e.Expired(time.Now().Add(30 * time.Second)) {
		t.Fatal("soon should outlive 30 seconds")
	}
	if !e.Expired(time.Now().Add(2 * time.Minute)) {
		t.Fatal("soon should expire within 2 minutes")
	}
}

func TestBadEnvironmentFallsBackToDefault(t *testing.T) {
	t.Setenv("HAB_RUMOR_EXPIRATION_SECS", "not-a-number")
	e := Soon()
	if !e.Expired(time.Now().Add(2 * time.Hour)) {
		t.Fatal("soon should expire within 2 hours")
	}
}

func TestExpireMovesExpirationUp(t *testing.T) {
	os.Unsetenv("HAB_RUMOR_EXPIRATION_SECS")
	e := Forever()
	e.Expire()
	if !e.Expired(time.Now().Add(2 * time.Hour)) {
		t.Fatal("expire should move the rumor into the soon window")
	}
}

func TestExpirationWireRoundTrip(t *testing.T) {
	e := NewExpiration(time.Date(2024, 6, 1, 12, 30, 0, 500, time.UTC))
	got, err := expirationFromWire(expirationToWire(e))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(e) {
		t.Fatalf("round trip differs: %s != %s", got, e)
	}
}

func TestAbsentWireExpirationMeansForever(t *testing.T) {
	e, err := expirationFromWire("")
	if err != nil {
		t.Fatal(err)
	}
	if e.Expired(time.Now().Add(24 * 365 * time.Hour)) {
		t.Fatal("absent expiration should be forever")
	}
}

func TestMalformedWireExpiration(t *testing.T) {
	if _, err := expirationFromWire("june 1st"); err == nil {
		t.Fatal("expected protocol mismatch")
	}
}
