package orders

import "testing"

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "shipped", "delivered"} {
		if _, ok := ParseStatus(s); !ok {
			t.Errorf("%q should be accepted", s)
		}
	}
	for _, s := range []string{"", "PENDING", "cancelled", " shipped"} {
		if _, ok := ParseStatus(s); ok {
			t.Errorf("%q should be rejected", s)
		}
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusDelivered, true},
		{StatusShipped, StatusShipped, true},
		{StatusDelivered, StatusPending, false},
		{StatusShipped, StatusProcessing, false},
		{Status("bogus"), StatusPending, false},
	}
	for _, c := range cases {
		if got := CanAdvance(c.from, c.to); got != c.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
