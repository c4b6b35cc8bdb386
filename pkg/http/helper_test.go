package http

import (
	"net/http/httptest"
	"testing"

	"campsite/pkg/config"
)

func TestExtractLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int64
		wantErr    bool
	}{
		{
			name:       "absent parameters mean no limit",
			query:      "",
			wantLimit:  0,
			wantOffset: 0,
		},
		{
			name:       "explicit limit and offset",
			query:      "?limit=7&offset=14",
			wantLimit:  7,
			wantOffset: 14,
		},
		{
			name:       "oversized limit is capped",
			query:      "?limit=1000",
			wantLimit:  config.DefaultPaginationLimit,
			wantOffset: 0,
		},
		{
			name:       "negative offset is clamped",
			query:      "?offset=-5",
			wantLimit:  0,
			wantOffset: 0,
		},
		{
			name:    "non-numeric limit",
			query:   "?limit=abc",
			wantErr: true,
		},
		{
			name:    "non-numeric offset",
			query:   "?offset=xyz",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/bookings"+tt.query, nil)

			limit, offset, err := ExtractLimitOffset(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, limit)
			}
			if offset != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, offset)
			}
		})
	}
}
