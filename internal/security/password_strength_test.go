package security

import "testing"

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		wantValid bool
		wantErrs  int
		minScore  int
	}{
		{name: "strong", password: "Str0ng!Pass1", wantValid: true, minScore: 4},
		{name: "too short", password: "Ab1!", wantValid: false, wantErrs: 1},
		{name: "common", password: "Password123", wantValid: false, wantErrs: 1},
		{name: "short and common", password: "", wantValid: false, wantErrs: 1},
		{name: "lowercase only passes gate", password: "longlowercasephrase", wantValid: true, minScore: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePasswordStrength(tc.password)
			if got.IsValid != tc.wantValid {
				t.Fatalf("IsValid=%v want %v (errors=%v)", got.IsValid, tc.wantValid, got.Errors)
			}
			if !tc.wantValid && len(got.Errors) != tc.wantErrs {
				t.Fatalf("errors=%v want %d entries", got.Errors, tc.wantErrs)
			}
			if got.Score < tc.minScore {
				t.Fatalf("score=%d want >= %d", got.Score, tc.minScore)
			}
		})
	}
}

func TestValidatePasswordStrengthScoresClasses(t *testing.T) {
	weak := ValidatePasswordStrength("abcdefgh")
	strong := ValidatePasswordStrength("Abcdef1!xyz09")
	if weak.Score >= strong.Score {
		t.Fatalf("expected more classes to score higher: weak=%d strong=%d", weak.Score, strong.Score)
	}
}

func FuzzValidatePasswordStrengthDeterministic(f *testing.F) {
	f.Add("Str0ng!Pass1")
	f.Add("")
	f.Add("password")
	f.Add("ðŸ”¥ðŸ”¥ðŸ”¥ðŸ”¥ðŸ”¥ðŸ”¥ðŸ”¥ðŸ”¥")

	f.Fuzz(func(t *testing.T, password string) {
		first := ValidatePasswordStrength(password)
		second := ValidatePasswordStrength(password)
		if first.IsValid != second.IsValid || first.Score != second.Score {
			t.Fatalf("non-deterministic result: %+v vs %+v", first, second)
		}
		if first.IsValid != (len(first.Errors) == 0) {
			t.Fatalf("IsValid must mirror Errors: %+v", first)
		}
		if first.Score < 0 || first.Score > 5 {
			t.Fatalf("score out of range: %d", first.Score)
		}
	})
}
