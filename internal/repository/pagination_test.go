package repository

import "testing"

func TestPageRequestNormalization(t *testing.T) {
	tests := []struct {
		name       string
		in         PageRequest
		want       PageRequest
		wantOffset int
	}{
		{"zero value", PageRequest{}, PageRequest{Page: DefaultPage, PageSize: DefaultPageSize}, 0},
		{"negative page", PageRequest{Page: -3, PageSize: 10}, PageRequest{Page: 1, PageSize: 10}, 0},
		{"negative size", PageRequest{Page: 3, PageSize: -1}, PageRequest{Page: 3, PageSize: DefaultPageSize}, 2 * DefaultPageSize},
		{"oversized", PageRequest{Page: 2, PageSize: 1000}, PageRequest{Page: 2, PageSize: MaxPageSize}, MaxPageSize},
		{"in range", PageRequest{Page: 4, PageSize: 25}, PageRequest{Page: 4, PageSize: 25}, 75},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.normalized(); got != tc.want {
				t.Fatalf("normalized()=%+v want %+v", got, tc.want)
			}
			if got := tc.in.Offset(); got != tc.wantOffset {
				t.Fatalf("Offset()=%d want %d", got, tc.wantOffset)
			}
		})
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		name      string
		req       PageRequest
		total     int64
		wantPages int
		wantNext  bool
	}{
		{"empty", PageRequest{Page: 1, PageSize: 10}, 0, 0, false},
		{"single partial page", PageRequest{Page: 1, PageSize: 20}, 1, 1, false},
		{"exact fit", PageRequest{Page: 1, PageSize: 20}, 20, 1, false},
		{"first of two", PageRequest{Page: 1, PageSize: 20}, 21, 2, true},
		{"last of two", PageRequest{Page: 2, PageSize: 20}, 21, 2, false},
		{"past the end", PageRequest{Page: 9, PageSize: 20}, 21, 2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := newPageResult[int](tc.req, tc.total, nil)
			if res.TotalPages != tc.wantPages || res.HasNext != tc.wantNext {
				t.Fatalf("pages=%d next=%v want %d %v", res.TotalPages, res.HasNext, tc.wantPages, tc.wantNext)
			}
			if res.Items == nil {
				t.Fatal("items must encode as an empty list, not null")
			}
		})
	}
}

func FuzzPageMath(f *testing.F) {
	f.Add(0, 0, int64(0))
	f.Add(-1, -1, int64(5))
	f.Add(3, MaxPageSize+1, int64(1<<40))
	f.Fuzz(func(t *testing.T, page, size int, total int64) {
		req := PageRequest{Page: page, PageSize: size}
		n := req.normalized()
		if n.Page < 1 || n.PageSize < 1 || n.PageSize > MaxPageSize {
			t.Fatalf("normalized out of bounds: %+v", n)
		}
		if total < 0 || total > 1<<50 {
			return
		}
		res := newPageResult[struct{}](req, total, nil)
		covered := int64(res.TotalPages) * int64(res.PageSize)
		if covered < total || (res.TotalPages > 0 && covered-total >= int64(res.PageSize)) {
			t.Fatalf("pages=%d size=%d do not tightly cover total=%d", res.TotalPages, res.PageSize, total)
		}
	})
}
