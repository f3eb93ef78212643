package helpers

import (
	"testing"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
)

func TestSellerIDsInCartOrderKeepsFirstSeenOrder(t *testing.T) {
	sellerA := uuid.New()
	sellerB := uuid.New()
	sellerC := uuid.New()

	books := []models.Book{
		{ID: uuid.New(), SellerID: sellerB},
		{ID: uuid.New(), SellerID: sellerA},
		{ID: uuid.New(), SellerID: sellerB},
		{ID: uuid.New(), SellerID: sellerC},
		{ID: uuid.New(), SellerID: sellerA},
	}

	got := SellerIDsInCartOrder(books)
	want := []uuid.UUID{sellerB, sellerA, sellerC}
	if len(got) != len(want) {
		t.Fatalf("expected %d sellers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestGroupBooksBySellerPartitionsEveryCopy(t *testing.T) {
	sellerA := uuid.New()
	sellerB := uuid.New()

	books := []models.Book{
		{ID: uuid.New(), SellerID: sellerA},
		{ID: uuid.New(), SellerID: sellerB},
		{ID: uuid.New(), SellerID: sellerA},
	}

	grouped := GroupBooksBySeller(books)
	if len(grouped[sellerA]) != 2 || len(grouped[sellerB]) != 1 {
		t.Fatalf("partition mismatch: %+v", grouped)
	}
}
