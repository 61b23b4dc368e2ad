package filter

import "testing"

func TestCounters_RecordAndAverage(t *testing.T) {
	var c Counters
	c.RecordCall(100, true)
	c.RecordCall(300, false)

	if c.Called() != 2 {
		t.Fatalf("Called() = %d, want 2", c.Called())
	}
	if c.Passed() != 1 || c.Dropped() != 1 {
		t.Fatalf("Passed()=%d Dropped()=%d, want 1,1", c.Passed(), c.Dropped())
	}
	if avg := c.AvgExecTimeNS(); avg != 200 {
		t.Fatalf("AvgExecTimeNS() = %d, want 200", avg)
	}
}

func TestCounters_AvgIsZeroWhenNeverCalled(t *testing.T) {
	var c Counters
	if avg := c.AvgExecTimeNS(); avg != 0 {
		t.Fatalf("AvgExecTimeNS() = %d, want 0", avg)
	}
}

func TestCounters_Clear(t *testing.T) {
	var c Counters
	c.RecordCall(50, true)
	c.Clear()
	if c.Called() != 0 || c.Passed() != 0 || c.Dropped() != 0 || c.TimeNS() != 0 {
		t.Fatal("Clear() did not reset all counters")
	}
}
