// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	httpclient "github.com/wneessen/waybar-location/internal/http"
)

func TestClassifyError(t *testing.T) {
	plain := errors.New("connection refused")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &httpclient.StatusError{StatusCode: http.StatusUnauthorized}, ErrInvalidAPIKey},
		{"forbidden", &httpclient.StatusError{StatusCode: http.StatusForbidden}, ErrInvalidAPIKey},
		{"payment required", &httpclient.StatusError{StatusCode: http.StatusPaymentRequired}, ErrQuotaExceeded},
		{"wrapped status error", fmt.Errorf("request: %w",
			&httpclient.StatusError{StatusCode: http.StatusPaymentRequired}), ErrQuotaExceeded},
		{"server error is kept", &httpclient.StatusError{StatusCode: http.StatusBadGateway}, nil},
		{"plain error is kept", plain, plain},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyError(tc.err)
			if tc.want == nil {
				if got != tc.err {
					t.Errorf("expected error to be unchanged, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("expected error to be %s, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Errorf("expected original error to be wrapped, got %v", got)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "Otley", "Pool"); got != "Otley" {
		t.Errorf("expected Otley, got %q", got)
	}
	if got := FirstNonEmpty("", ""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	tests := map[string]string{
		"de":  "DE",
		" us": "US",
		"":    "",
		"deu": "",
	}
	for in, want := range tests {
		if got := NormalizeCountryCode(in); got != want {
			t.Errorf("NormalizeCountryCode(%q): expected %q, got %q", in, want, got)
		}
	}
}
