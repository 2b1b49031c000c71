package domain

import "testing"

func TestRollOverOnlyMovesForward(t *testing.T) {
	cases := []struct {
		name      string
		last      string
		today     string
		rolled    bool
		wantDate  string
		wantCount int
	}{
		{"new day", "2025-03-13", "2025-03-14", true, "2025-03-14", 0},
		{"same day", "2025-03-14", "2025-03-14", false, "2025-03-14", 4},
		{"late message", "2025-03-14", "2025-03-13", false, "2025-03-14", 4},
		{"never used", "", "2025-03-14", true, "2025-03-14", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := UserRecord{UserID: "u", DailyUsageCount: 4, LastUsedDate: tc.last}
			if got := r.RollOver(tc.today); got != tc.rolled {
				t.Fatalf("RollOver = %v, want %v", got, tc.rolled)
			}
			if r.LastUsedDate != tc.wantDate || r.DailyUsageCount != tc.wantCount {
				t.Fatalf("record = %+v", r)
			}
		})
	}
}
