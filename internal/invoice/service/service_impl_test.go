package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/invoice/domain"
	"github.com/smallbiznis/allotment/internal/invoice/render"
	invoiceservice "github.com/smallbiznis/allotment/internal/invoice/service"
	"github.com/smallbiznis/allotment/internal/invoice/store"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *mockStore) SignedURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func newService(s domain.Store) domain.Service {
	return invoiceservice.New(invoiceservice.Params{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(now),
		Billing:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Renderer: render.NewRenderer(),
		Store:    s,
	})
}

func paidEntry() *paymenthistorydomain.PaymentHistory {
	tx := "tx-1"
	return &paymenthistorydomain.PaymentHistory{
		ID:              42,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Charges: []paymenthistorydomain.Charge{{
			ItemType:        subscriptiondomain.ItemTypeDevice,
			ItemReference:   "d1",
			ItemPrice:       decimal.NewFromInt(3),
			FinalPrice:      decimal.NewFromInt(15),
			Quantity:        10,
			Service:         "DEVICE_MANAGER",
			BillingInterval: 1,
			Period:          []string{"Mar, 15 2026", "Apr, 01 2026"},
		}},
		TotalBillAmount:   decimal.NewFromInt(15),
		Currency:          "USD",
		TransactionID:     &tx,
		TransactionStatus: "SUCCESS",
	}
}

func TestGenerateStoresPDF(t *testing.T) {
	memory := store.NewMemory("https://files.test")
	doc, err := newService(memory).Generate(context.Background(), domain.KindUpdate, paidEntry())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.Number, "INV-20260315-"))
	assert.Equal(t, "invoices/org-1/"+strings.ToLower(doc.Number)+".pdf", doc.Key)
	assert.Equal(t, "https://files.test/"+doc.Key, doc.SignedURL)
	assert.True(t, doc.IssuedAt.Equal(now))
	assert.Contains(t, doc.Number, doc.ID)

	data, ok := memory.Get(doc.Key)
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestGenerateNumbersAreUnique(t *testing.T) {
	svc := newService(store.NewMemory("https://files.test"))
	first, err := svc.Generate(context.Background(), domain.KindRenewal, paidEntry())
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), domain.KindRenewal, paidEntry())
	require.NoError(t, err)
	assert.NotEqual(t, first.Number, second.Number)
}

func TestGenerateFailsOnUpload(t *testing.T) {
	failing := &mockStore{}
	failing.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(errors.New("bucket gone"))

	_, err := newService(failing).Generate(context.Background(), domain.KindUpdate, paidEntry())
	require.Error(t, err)
	failing.AssertNotCalled(t, "SignedURL", mock.Anything, mock.Anything)
}

func TestGenerateWithoutCharges(t *testing.T) {
	entry := paidEntry()
	entry.Charges = nil
	_, err := newService(store.NewMemory("")).Generate(context.Background(), domain.KindUpdate, entry)
	assert.ErrorIs(t, err, domain.ErrNothingToInvoice)
}

func TestGenerateWithoutStore(t *testing.T) {
	_, err := newService(nil).Generate(context.Background(), domain.KindUpdate, paidEntry())
	assert.ErrorIs(t, err, domain.ErrStoreUnconfigured)
}
