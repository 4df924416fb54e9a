package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barter-service/internal/db"
	"barter-service/internal/gset"
	"barter-service/internal/models"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMessageRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))

	first, err := repo.CreateMessage(ctx, models.Message{
		FromID:                "u1",
		ToID:                  "u2",
		Text:                  "swap?",
		ProductID:             "p1",
		CounterOfferProductID: "p2",
		IsInitialOffer:        true,
		CreatedAt:             time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	_, err = repo.CreateMessage(ctx, models.Message{ID: "m2", FromID: "u2", ToID: "u1", Text: "ok", CreatedAt: time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, models.Message{ID: "m3", FromID: "u3", ToID: "u4", Text: "other"})
	require.NoError(t, err)

	msgs, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.True(t, msgs[0].IsInitialOffer)
	assert.Equal(t, "p2", msgs[0].CounterOfferProductID)

	require.NoError(t, repo.UpdateText(ctx, "m2", "deal"))
	require.NoError(t, repo.UpdateConfirmation(ctx, first.ID, gset.NewGSet("u1"), models.MessageStatusPending))
	require.NoError(t, repo.MarkRead(ctx, "u1", []string{"m2"}))

	got, err := repo.GetMessage(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "deal", got.Text)
	assert.True(t, got.Read)

	got, err = repo.GetMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, got.ConfirmedBy.Slice())
	assert.Equal(t, models.MessageStatusPending, got.Status)

	require.NoError(t, repo.DeleteMessage(ctx, "m2"))
	_, err = repo.GetMessage(ctx, "m2")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.ErrorIs(t, repo.UpdateText(ctx, "missing", "x"), ErrMessageNotFound)
	assert.NoError(t, repo.MarkRead(ctx, "u1", nil))
}

func TestRecordRepoWholeCollectionWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepo(openTestDB(t))

	_, err := repo.ReadRecord(ctx, "u1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	tx := models.Transaction{ID: "t1", FromID: "u1", ToID: "u2", Status: models.StatusPendingConfirmation, ConfirmedBy: gset.NewGSet("u1")}
	require.NoError(t, repo.WriteTransactions(ctx, "u1", []models.Transaction{tx}))

	rec, err := repo.ReadRecord(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rec.Transactions, 1)
	assert.Equal(t, []string{"u1"}, rec.Transactions[0].ConfirmedBy.Slice())

	require.NoError(t, repo.UpsertProfile(ctx, "u1", "Ann"))
	require.NoError(t, repo.WriteTransactions(ctx, "u1", nil))

	rec, err = repo.ReadRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec.DisplayName)
	assert.Empty(t, rec.Transactions)
}

func TestDonationRepo(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewDonationRepo(conn)

	_, err := conn.Exec(`INSERT INTO donations (id, title, donor_id, recipient_id, status, created_at) VALUES
        ('d1', 'Lamp', 'u1', 'u2', 'reserved', '2024-01-01 10:00:00'),
        ('d2', 'Desk', 'u3', '', 'available', '2024-01-02 10:00:00')`)
	require.NoError(t, err)

	mine, err := repo.ListDonations(ctx, models.DonationFilter{ParticipantID: "u2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Nil(t, mine[0].DeliveryDate)

	require.NoError(t, repo.SetDonationStatus(ctx, "d1", models.DonationDelivered))
	delivered, err := repo.ListDonations(ctx, models.DonationFilter{Status: models.DonationDelivered})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.NotNil(t, delivered[0].DeliveryDate)

	require.NoError(t, repo.DeleteDonation(ctx, "d2"))
	assert.ErrorIs(t, repo.DeleteDonation(ctx, "d2"), ErrDonationNotFound)
	assert.ErrorIs(t, repo.SetDonationStatus(ctx, "nope", models.DonationRemoved), ErrDonationNotFound)
}

func TestProductRepoSetExchanged(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewProductRepo(conn)

	_, err := conn.Exec(`INSERT INTO products (id, owner_id, title) VALUES ('p1', 'u1', 'Guitar')`)
	require.NoError(t, err)

	require.NoError(t, repo.SetExchanged(ctx, "p1"))
	var status string
	require.NoError(t, conn.Get(&status, `SELECT status FROM products WHERE id = 'p1'`))
	assert.Equal(t, models.ProductExchanged, status)

	assert.ErrorIs(t, repo.SetExchanged(ctx, "p9"), ErrProductNotFound)
}
