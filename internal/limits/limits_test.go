package limits

import "testing"

func TestUnlimitedByDefault(t *testing.T) {
	m := New(0, 0)
	for i := 0; i < 100; i++ {
		if !m.Acquire("1.2.3.4") {
			t.Fatalf("acquire %d should succeed with no caps", i)
		}
	}
}

func TestMaxConnectionsCap(t *testing.T) {
	m := New(2, 0)
	if !m.Acquire("1.1.1.1") || !m.Acquire("2.2.2.2") {
		t.Fatal("first two acquires should succeed")
	}
	if m.Acquire("3.3.3.3") {
		t.Fatal("third acquire should be rejected by the total cap")
	}
}

func TestPerIPLimitCap(t *testing.T) {
	m := New(0, 2)
	if !m.Acquire("1.1.1.1") || !m.Acquire("1.1.1.1") {
		t.Fatal("first two acquires from the same IP should succeed")
	}
	if m.Acquire("1.1.1.1") {
		t.Fatal("third acquire from the same IP should be rejected")
	}
	if !m.Acquire("2.2.2.2") {
		t.Fatal("a different IP should not be affected by another IP's cap")
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	m := New(1, 1)
	if !m.Acquire("1.1.1.1") {
		t.Fatal("first acquire should succeed")
	}
	if m.Acquire("1.1.1.1") {
		t.Fatal("second acquire should be rejected before release")
	}
	m.Release("1.1.1.1")
	if !m.Acquire("1.1.1.1") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestReleaseWithoutIPIsSafe(t *testing.T) {
	m := New(1, 0)
	m.Acquire("")
	m.Release("")
	if total := m.Total(); total != 0 {
		t.Fatalf("want total 0 after release, got %d", total)
	}
}

func TestEmptyIPBypassesPerIPLimit(t *testing.T) {
	m := New(0, 1)
	if !m.Acquire("") || !m.Acquire("") {
		t.Fatal("empty IP (e.g. unparseable RemoteAddr) should not be capped per-IP")
	}
}
