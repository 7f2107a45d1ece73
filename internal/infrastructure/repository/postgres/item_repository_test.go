package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

func TestFindByGroupAndURL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	createdAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE group_id = \$1 AND output_url = \$2`).
		WithArgs("g-1", "https://cdn/1.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "subtype", "output_url", "original_filename", "created_at"}).
			AddRow("i-1", "g-1", "front", "https://cdn/1.jpg", "SKU1-front.cr2", createdAt))

	repo := NewItemRepository(db)
	item, err := repo.FindByGroupAndURL(context.Background(), "g-1", "https://cdn/1.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID != "i-1" || item.Subtype != domain.SubtypeFront {
		t.Errorf("item = %+v", item)
	}
}

func TestFindByGroupAndURLMapsNoRowsToNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, group_id, subtype, output_url, original_filename, created_at`).
		WithArgs("g-1", "https://cdn/none.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "subtype", "output_url", "original_filename", "created_at"}))

	repo := NewItemRepository(db)
	_, err = repo.FindByGroupAndURL(context.Background(), "g-1", "https://cdn/none.jpg")
	if !domain.IsKind(err, domain.ErrItemNotFound) {
		t.Errorf("error = %v, want item not found", err)
	}
}

func TestCreateItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	createdAt := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO items`).
		WithArgs("i-1", "g-1", "back", "https://cdn/2.jpg", "SKU1-back.cr2", createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewItemRepository(db)
	err = repo.Create(context.Background(), &domain.Item{
		ID:               "i-1",
		GroupID:          "g-1",
		Subtype:          domain.SubtypeBack,
		OutputURL:        "https://cdn/2.jpg",
		OriginalFilename: "SKU1-back.cr2",
		CreatedAt:        createdAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
