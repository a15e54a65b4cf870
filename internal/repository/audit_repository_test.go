package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
)

func TestAuditRepositoryListPaged(t *testing.T) {
	ctx := context.Background()
	repo := newStoreForTest(t).Audit()
	uid := uint(7)
	for i := 0; i < 25; i++ {
		entry := &domain.AuditEntry{
			ID:       fmt.Sprintf("01ENTRY%04d", i),
			Action:   "login",
			Resource: "auth",
			Success:  i%2 == 0,
		}
		if i < 5 {
			entry.UserID = &uid
			entry.Action = "password_change"
		}
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := repo.ListPaged(ctx, AuditListQuery{PageRequest: PageRequest{Page: 2, PageSize: 10}})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 || len(page.Items) != 10 {
		t.Fatalf("unexpected page: total=%d pages=%d items=%d", page.Total, page.TotalPages, len(page.Items))
	}

	filtered, err := repo.ListPaged(ctx, AuditListQuery{UserID: &uid, Action: "password_change"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if filtered.Total != 5 || len(filtered.Items) != 5 {
		t.Fatalf("expected 5 filtered entries, got total=%d items=%d", filtered.Total, len(filtered.Items))
	}
}
