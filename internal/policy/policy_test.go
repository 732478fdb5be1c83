package policy

import "testing"

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"vip", CategoryVIP, false},
		{"VIP", CategoryVIP, false},
		{" spam ", CategorySpam, false},
		{"primary", CategoryPrimary, false},
		{"unknown", CategoryUnknown, false},
		{"", "", true},
		{"important", "", true},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseCategory(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCategory(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSuppress_OnlyVIPPasses(t *testing.T) {
	for _, c := range Categories() {
		got := Suppress(c)
		want := c != CategoryVIP
		if got != want {
			t.Errorf("Suppress(%s) = %v, want %v", c, got, want)
		}
	}
}

func TestUnknownRepeatAlert_FiresExactlyOnThreshold(t *testing.T) {
	for count := 1; count <= 8; count++ {
		got := UnknownRepeatAlert(CategoryUnknown, count)
		want := count == UnknownRepeatCount
		if got != want {
			t.Errorf("UnknownRepeatAlert(unknown, %d) = %v, want %v", count, got, want)
		}
	}
}

func TestUnknownRepeatAlert_OtherCategoriesNeverFire(t *testing.T) {
	for _, c := range []Category{CategorySpam, CategoryPrimary, CategoryVIP} {
		if UnknownRepeatAlert(c, UnknownRepeatCount) {
			t.Errorf("UnknownRepeatAlert(%s, %d) fired", c, UnknownRepeatCount)
		}
	}
}

func TestEscalationAlert(t *testing.T) {
	if EscalationAlert(CategoryPrimary, 2) {
		t.Error("2 recent events should not escalate")
	}
	if !EscalationAlert(CategoryPrimary, 3) {
		t.Error("3 recent events should escalate")
	}
	if !EscalationAlert(CategoryPrimary, 5) {
		t.Error("escalation stays armed above the threshold")
	}
	if EscalationAlert(CategoryUnknown, 10) {
		t.Error("non-primary senders never escalate")
	}
}

func TestBannerEligible(t *testing.T) {
	if BannerEligible(CategoryUnknown, 2) {
		t.Error("2 messages should not be banner-eligible")
	}
	if !BannerEligible(CategoryUnknown, 3) {
		t.Error("3 messages should be banner-eligible")
	}
	if BannerEligible(CategorySpam, 10) {
		t.Error("categorized senders never prompt")
	}
}
