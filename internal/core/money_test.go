package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{".5", "0.5", true},
		{" 2.50 ", "2.5", true},
		{"150000", "150000", true},
		{"1000000000000000", "1000000000000000", true},
		{"1000000000000000.01", "", false},
		{"99999999999999999999999", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestCheckRange(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"-1000000000000000", true},
		{"1000000000000000", true},
		{"1e16", false},
		{"-1e25", false},
	}
	for _, tc := range cases {
		err := CheckRange("openingBalance", decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected validation error, got %v", tc.in, err)
		}
	}
}
