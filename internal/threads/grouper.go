// Package threads partitions a flat message log into conversation threads.
// Grouping is a pure function of the message fields: it never depends on the
// order messages arrived in, and it is always recomputed from scratch.
package threads

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"time"

	"barter-service/internal/gset"
	"barter-service/internal/models"
)

// ErrThreadNotFound means no thread of the viewer has the requested id.
var ErrThreadNotFound = errors.New("thread not found")

// Key kinds in priority order.
const (
	KindDonation     = "donation"
	KindProduct      = "product"
	KindProductTitle = "product-title"
	KindMisc         = "misc"
)

// Key identifies a thread. Counterparty is always relative to the viewer.
type Key struct {
	Kind         string
	Ref          string
	Counterparty string
}

func (k Key) String() string {
	if k.Kind == KindMisc {
		return k.Kind + "|" + k.Counterparty
	}
	return k.Kind + "|" + k.Ref + "|" + k.Counterparty
}

// ID is an opaque, URL-safe form of the key.
func (k Key) ID() string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.String()))
}

// KeyFor derives the thread key of msg as seen by viewerID.
func KeyFor(msg models.Message, viewerID string) Key {
	counterparty := gset.NormalizeID(msg.Counterparty(viewerID))
	switch {
	case msg.DonationID != "":
		return Key{Kind: KindDonation, Ref: msg.DonationID, Counterparty: counterparty}
	case msg.ProductID != "":
		return Key{Kind: KindProduct, Ref: msg.ProductID, Counterparty: counterparty}
	case msg.CounterOfferProductID != "":
		return Key{Kind: KindProduct, Ref: msg.CounterOfferProductID, Counterparty: counterparty}
	}
	if title := NormalizeTitle(msg.ProductTitle); title != "" {
		return Key{Kind: KindProductTitle, Ref: title, Counterparty: counterparty}
	}
	if title := NormalizeTitle(msg.CounterOfferProductTitle); title != "" {
		return Key{Kind: KindProductTitle, Ref: title, Counterparty: counterparty}
	}
	return Key{Kind: KindMisc, Counterparty: counterparty}
}

// Thread is one conversation between the viewer and a counterparty about a
// single product or donation context.
type Thread struct {
	Key              Key
	Messages         []models.Message
	ViewerName       string
	CounterpartyName string
}

// Group partitions messages into threads keyed by KeyFor.
func Group(messages []models.Message, viewerID string) map[Key]*Thread {
	groups := make(map[Key]*Thread)
	for _, msg := range messages {
		key := KeyFor(msg, viewerID)
		th, ok := groups[key]
		if !ok {
			th = &Thread{Key: key}
			groups[key] = th
		}
		th.Messages = append(th.Messages, msg)
	}
	for _, th := range groups {
		sortMessages(th.Messages)
		th.ViewerName, th.CounterpartyName = displayNames(th.Messages[0], viewerID)
	}
	return groups
}

// Find returns the thread whose ID is threadID.
func Find(groups map[Key]*Thread, threadID string) (*Thread, error) {
	for key, th := range groups {
		if key.ID() == threadID {
			return th, nil
		}
	}
	return nil, ErrThreadNotFound
}

func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// Names are taken from the first message only so a counterparty's display
// name does not flap as later messages arrive.
func displayNames(first models.Message, viewerID string) (viewer, counterparty string) {
	if gset.NormalizeID(first.FromID) == gset.NormalizeID(viewerID) {
		return first.FromName, first.ToName
	}
	return first.ToName, first.FromName
}

// UnreadCount counts messages addressed to viewerID not yet marked read.
func UnreadCount(th *Thread, viewerID string) int {
	viewer := gset.NormalizeID(viewerID)
	n := 0
	for _, msg := range th.Messages {
		if !msg.Read && gset.NormalizeID(msg.ToID) == viewer {
			n++
		}
	}
	return n
}

// Anchor picks the message representing the thread's transaction: the most
// recent participant message carrying both product ids, else the latest
// initial offer, else the latest message carrying any product id.
func (th *Thread) Anchor() (models.Message, bool) {
	pick := func(ok func(models.Message) bool) (models.Message, bool) {
		for i := len(th.Messages) - 1; i >= 0; i-- {
			msg := th.Messages[i]
			if !msg.IsSystem && ok(msg) {
				return msg, true
			}
		}
		return models.Message{}, false
	}
	if msg, ok := pick(models.Message.HasProductPair); ok {
		return msg, true
	}
	if msg, ok := pick(func(m models.Message) bool { return m.IsInitialOffer }); ok {
		return msg, true
	}
	return pick(func(m models.Message) bool {
		return m.ProductID != "" || m.CounterOfferProductID != "" || m.ProductTitle != ""
	})
}

// Last returns the newest message of the thread.
func (th *Thread) Last() models.Message {
	return th.Messages[len(th.Messages)-1]
}

// Title returns a human readable context for the thread.
func (th *Thread) Title() string {
	for _, msg := range th.Messages {
		switch {
		case msg.DonationTitle != "":
			return msg.DonationTitle
		case msg.ProductTitle != "":
			return msg.ProductTitle
		}
	}
	return strings.TrimSpace(th.CounterpartyName)
}

// Summary is a list-view projection of a thread.
type Summary struct {
	ThreadID         string    `json:"thread_id"`
	Kind             string    `json:"kind"`
	Title            string    `json:"title"`
	CounterpartyID   string    `json:"counterparty_id"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	LastMessage      string    `json:"last_message"`
	LastMessageAt    time.Time `json:"last_message_at"`
	Unread           int       `json:"unread"`
}

// Summaries projects groups into a list ordered by most recent activity.
func Summaries(groups map[Key]*Thread, viewerID string) []Summary {
	out := make([]Summary, 0, len(groups))
	for key, th := range groups {
		last := th.Last()
		out = append(out, Summary{
			ThreadID:         key.ID(),
			Kind:             key.Kind,
			Title:            th.Title(),
			CounterpartyID:   key.Counterparty,
			CounterpartyName: th.CounterpartyName,
			LastMessage:      last.Text,
			LastMessageAt:    last.CreatedAt,
			Unread:           UnreadCount(th, viewerID),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out
}
