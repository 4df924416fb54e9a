// Package matching resolves the transaction record a thread refers to.
//
// A transaction may be referenced by up to four key strategies depending on
// which fields were populated when the anchor message was sent. Strategies
// are tried in order; a later strategy is consulted only when every earlier
// one produced no candidate.
package matching

import (
	"sort"
	"time"

	"barter-service/internal/confirmation"
	"barter-service/internal/gset"
	"barter-service/internal/models"
	"barter-service/internal/threads"
)

const (
	// RecentWindow bounds the single-product strategy around the anchor.
	RecentWindow = 30 * time.Minute
	// StaleCompletedGap is how much older than the anchor a completed
	// winner may be before it is treated as an unrelated earlier exchange.
	StaleCompletedGap = 2 * time.Minute
)

// Strategy names reported in Result.
const (
	StrategyID            = "id"
	StrategyPair          = "pair"
	StrategyRecentProduct = "recent-product"
	StrategyTitlePair     = "title-pair"
	StrategySynthetic     = "synthetic"
)

// Strategy is one rung of the identity hierarchy.
type Strategy struct {
	Name    string
	Matches func(anchor models.Message, tx models.Transaction) bool
}

// Result is the outcome of a match.
type Result struct {
	Transaction models.Transaction
	Strategy    string
	Synthetic   bool
}

// DefaultStrategies is the identity hierarchy in priority order.
var DefaultStrategies = []Strategy{
	{Name: StrategyID, Matches: byID},
	{Name: StrategyPair, Matches: byPair},
	{Name: StrategyRecentProduct, Matches: byRecentProduct},
	{Name: StrategyTitlePair, Matches: byTitlePair},
}

// Matcher runs an ordered list of strategies.
type Matcher struct {
	strategies []Strategy
}

// New builds a Matcher. With no strategies DefaultStrategies is used.
func New(strategies ...Strategy) *Matcher {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Matcher{strategies: strategies}
}

// Match finds the transaction anchor refers to using DefaultStrategies.
func Match(anchor models.Message, transactions []models.Transaction) Result {
	return New().Match(anchor, transactions)
}

// Match finds the best transaction for anchor. When nothing plausible
// matches a synthetic pending transaction scoped to the anchor is returned.
func (m *Matcher) Match(anchor models.Message, transactions []models.Transaction) Result {
	eligible := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Deleted || tx.IsDonation() {
			continue
		}
		eligible = append(eligible, tx)
	}

	for _, s := range m.strategies {
		var candidates []models.Transaction
		for _, tx := range eligible {
			if s.Matches(anchor, tx) {
				candidates = append(candidates, tx)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		winner := freshest(candidates)
		if isStale(anchor, winner) {
			break
		}
		return Result{Transaction: winner, Strategy: s.Name}
	}
	return Result{Transaction: Synthetic(anchor), Strategy: StrategySynthetic, Synthetic: true}
}

// Synthetic builds the pending placeholder for an anchor with no
// transaction yet. It never reports completion.
func Synthetic(anchor models.Message) models.Transaction {
	return models.Transaction{
		LocalID:               models.PendingPrefix + anchor.ID,
		Kind:                  models.KindExchange,
		FromID:                anchor.FromID,
		ToID:                  anchor.ToID,
		OfferedProductID:      anchor.CounterOfferProductID,
		OfferedProductTitle:   anchor.CounterOfferProductTitle,
		RequestedProductID:    anchor.ProductID,
		RequestedProductTitle: anchor.ProductTitle,
		Status:                models.StatusPendingConfirmation,
		ConfirmedBy:           gset.NewGSet(),
		CreatedAt:             anchor.CreatedAt,
		UpdatedAt:             anchor.CreatedAt,
	}
}

func freshest(candidates []models.Transaction) models.Transaction {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Key() < b.Key()
	})
	return candidates[0]
}

func isStale(anchor models.Message, winner models.Transaction) bool {
	if !confirmation.TransactionComplete(winner) {
		return false
	}
	return anchor.CreatedAt.Sub(winner.LastActivity()) > StaleCompletedGap
}

func byID(anchor models.Message, tx models.Transaction) bool {
	return anchor.ID != "" && tx.ID == anchor.ID
}

func byPair(anchor models.Message, tx models.Transaction) bool {
	if !anchor.HasProductPair() {
		return false
	}
	forward := tx.OfferedProductID == anchor.CounterOfferProductID && tx.RequestedProductID == anchor.ProductID
	reverse := tx.OfferedProductID == anchor.ProductID && tx.RequestedProductID == anchor.CounterOfferProductID
	return forward || reverse
}

func byRecentProduct(anchor models.Message, tx models.Transaction) bool {
	if anchor.ProductID == "" || tx.OfferedProductID != anchor.ProductID {
		return false
	}
	if confirmation.TransactionComplete(tx) {
		return false
	}
	gap := tx.UpdatedAt.Sub(anchor.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= RecentWindow
}

func byTitlePair(anchor models.Message, tx models.Transaction) bool {
	product := threads.NormalizeTitle(anchor.ProductTitle)
	counter := threads.NormalizeTitle(anchor.CounterOfferProductTitle)
	if product == "" || counter == "" {
		return false
	}
	offered := threads.NormalizeTitle(tx.OfferedProductTitle)
	requested := threads.NormalizeTitle(tx.RequestedProductTitle)
	return (offered == counter && requested == product) || (offered == product && requested == counter)
}
