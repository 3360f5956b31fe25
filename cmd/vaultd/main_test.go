package main

import "testing"

func TestResolveLogEnv(t *testing.T) {
	cases := []struct {
		env        string
		configured string
		want       string
	}{
		{"production", "development", "production"},
		{"  staging  ", "development", "staging"},
		{"", "development", "development"},
		{"   ", " production ", "production"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := resolveLogEnv(tc.env, tc.configured); got != tc.want {
			t.Errorf("resolveLogEnv(%q, %q) = %q, want %q", tc.env, tc.configured, got, tc.want)
		}
	}
}
