package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng-Enough-Pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "Str0ng-Enough-Pass") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		wantErr  bool
	}{
		{"Str0ng-Enough-Pass", false},
		{"UPPERlower12345", false},
		{"Short1!", true},
		// Long enough but only two character classes.
		{"alllowercase12345", true},
		{"aaaaaaaaaaaaaaaa", true},
	}
	for _, tc := range cases {
		err := ValidatePasswordStrength(tc.password)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tc.password, err, tc.wantErr)
		}
	}
}
