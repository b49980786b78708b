package normalize

import "testing"

func TestPhoneFormats(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"ten digits with punctuation", "205-555-0100", "+12055550100", false},
		{"ten digits with parens", "(205) 555 0100", "+12055550100", false},
		{"eleven digits with trunk", "12055550100", "+12055550100", false},
		{"already international", "+12055550100", "+12055550100", false},
		{"international with spaces", "+1 205 555 0100", "+12055550100", false},
		{"too short", "555-0100", "", true},
		{"too long", "120555501001234", "", true},
		{"empty", "", "", true},
		{"letters only", "call me", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Phone(tc.raw, "1")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.raw, got)
				}
				if !IsNormalizationError(err) {
					t.Fatalf("expected normalization error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Phone(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestPhoneIdempotent(t *testing.T) {
	inputs := []string{"205-555-0100", "12055550100", "+12055550100", "(205)555-0100"}
	for _, raw := range inputs {
		once, err := Phone(raw, "1")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		twice, err := Phone(once, "1")
		if err != nil {
			t.Fatalf("canonical form %q rejected: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

func TestName(t *testing.T) {
	cases := []struct {
		raw    string
		given  []string
		family string
	}{
		{"Robert Green", []string{"robert"}, "green"},
		{"  Mary-Anne   O'Brien ", []string{"mary", "anne", "o"}, "brien"},
		{"Cher", nil, "cher"},
		{"", nil, ""},
		{"Jane  Q.  Smith", []string{"jane", "q"}, "smith"},
	}

	for _, tc := range cases {
		got := Name(tc.raw)
		if got.Family != tc.family {
			t.Errorf("Name(%q).Family = %q, want %q", tc.raw, got.Family, tc.family)
		}
		if len(got.Given) != len(tc.given) {
			t.Errorf("Name(%q).Given = %v, want %v", tc.raw, got.Given, tc.given)
			continue
		}
		for i := range tc.given {
			if got.Given[i] != tc.given[i] {
				t.Errorf("Name(%q).Given = %v, want %v", tc.raw, got.Given, tc.given)
				break
			}
		}
	}
}

func TestNameFull(t *testing.T) {
	if full := Name("Robert  Q. Green").Full(); full != "robert q green" {
		t.Fatalf("Full() = %q", full)
	}
	if full := Name("Cher").Full(); full != "cher" {
		t.Fatalf("Full() single token = %q", full)
	}
}

func TestDOB(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1955-03-02", "1955-03-02"},
		{"03/02/1955", "1955-03-02"},
		{"3/2/1955", "1955-03-02"},
		{"Mar 2, 1955", "1955-03-02"},
		{"19550302", "1955-03-02"},
		{"", ""},
		{"not a date", ""},
	}

	for _, tc := range cases {
		if got := DOB(tc.raw); got != tc.want {
			t.Errorf("DOB(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
