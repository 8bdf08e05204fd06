package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "Str0ng&Secure!", ""},
		{"too short", "Sh0rt!pass", "at least 12 characters"},
		{"no uppercase", "str0ng&secure!", "uppercase letter"},
		{"no lowercase", "STR0NG&SECURE!", "lowercase letter"},
		{"no digit", "Strong&Secure!", "digit"},
		{"no special", "Str0ngAndSecure", "special character"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("ValidatePassword(%q) = %v, want nil", tc.password, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("ValidatePassword(%q) = %v, want containing %q", tc.password, err, tc.wantErr)
			}
		})
	}
}
