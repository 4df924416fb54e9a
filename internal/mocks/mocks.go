package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"barter-service/internal/gset"
	"barter-service/internal/models"
	"barter-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateText(ctx context.Context, messageID string, text string) error {
	args := m.Called(ctx, messageID, text)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateConfirmation(ctx context.Context, messageID string, confirmedBy gset.GSet, status string) error {
	args := m.Called(ctx, messageID, confirmedBy, status)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, userID string, messageIDs []string) error {
	args := m.Called(ctx, userID, messageIDs)
	return args.Error(0)
}

type RecordRepositoryMock struct {
	mock.Mock
}

func (m *RecordRepositoryMock) ReadRecord(ctx context.Context, userID string) (models.UserRecord, error) {
	args := m.Called(ctx, userID)
	var rec models.UserRecord
	if val := args.Get(0); val != nil {
		rec = val.(models.UserRecord)
	}
	return rec, args.Error(1)
}

func (m *RecordRepositoryMock) WriteTransactions(ctx context.Context, userID string, transactions []models.Transaction) error {
	args := m.Called(ctx, userID, transactions)
	return args.Error(0)
}

func (m *RecordRepositoryMock) UpsertProfile(ctx context.Context, userID string, displayName string) error {
	args := m.Called(ctx, userID, displayName)
	return args.Error(0)
}

type DonationRepositoryMock struct {
	mock.Mock
}

func (m *DonationRepositoryMock) ListDonations(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error) {
	args := m.Called(ctx, filter)
	var list []models.Donation
	if val := args.Get(0); val != nil {
		list = val.([]models.Donation)
	}
	return list, args.Error(1)
}

func (m *DonationRepositoryMock) SetDonationStatus(ctx context.Context, donationID string, status string) error {
	args := m.Called(ctx, donationID, status)
	return args.Error(0)
}

func (m *DonationRepositoryMock) DeleteDonation(ctx context.Context, donationID string) error {
	args := m.Called(ctx, donationID)
	return args.Error(0)
}

type ProductRepositoryMock struct {
	mock.Mock
}

func (m *ProductRepositoryMock) SetExchanged(ctx context.Context, productID string) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.RecordRepository = (*RecordRepositoryMock)(nil)
var _ repositories.DonationRepository = (*DonationRepositoryMock)(nil)
var _ repositories.ProductRepository = (*ProductRepositoryMock)(nil)
