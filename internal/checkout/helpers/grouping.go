package helpers

import (
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/google/uuid"
)

// GroupBooksBySeller groups the provided copies by their listing seller.
func GroupBooksBySeller(books []models.Book) map[uuid.UUID][]models.Book {
	grouped := make(map[uuid.UUID][]models.Book, len(books))
	for _, book := range books {
		grouped[book.SellerID] = append(grouped[book.SellerID], book)
	}
	return grouped
}

// SellerCartTotals captures pre-calculated totals for one seller's slice of
// the cart.
type SellerCartTotals struct {
	SellerID       uuid.UUID
	ItemTotalCents int
	ItemCount      int
}

// ComputeTotalsBySeller returns pre-computed totals keyed by seller.
func ComputeTotalsBySeller(books []models.Book) map[uuid.UUID]SellerCartTotals {
	results := make(map[uuid.UUID]SellerCartTotals)
	for _, book := range books {
		totals := results[book.SellerID]
		if totals.ItemCount == 0 {
			totals.SellerID = book.SellerID
		}
		totals.ItemTotalCents += book.PriceCents
		totals.ItemCount++
		results[book.SellerID] = totals
	}
	return results
}

// SellerIDsInCartOrder returns each seller once, in the order the buyer's
// cart first mentions them, so partitions keep the cart's own ordering.
func SellerIDsInCartOrder(books []models.Book) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(books))
	ids := make([]uuid.UUID, 0, len(books))
	for _, book := range books {
		if seen[book.SellerID] {
			continue
		}
		seen[book.SellerID] = true
		ids = append(ids, book.SellerID)
	}
	return ids
}
