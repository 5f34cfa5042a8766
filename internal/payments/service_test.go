package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

type stubCustomerStore struct {
	customer      *models.Customer
	updatedRef    *string
	updatedStatus *enums.MandateStatus
	updatedCalled bool
}

func (s *stubCustomerStore) FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Customer, error) {
	return s.customer, nil
}

func (s *stubCustomerStore) UpdateMandateState(ctx context.Context, id uuid.UUID, ref *string, status *enums.MandateStatus) error {
	s.updatedCalled = true
	s.updatedRef = ref
	s.updatedStatus = status
	return nil
}

type stubJobStore struct {
	job *models.Job

	claimOK      bool
	claimErr     error
	claimUpdates map[string]any

	linkOK      bool
	linkErr     error
	linkUpdates map[string]any

	reverted  bool
	revertErr error
}

func (s *stubJobStore) FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Job, error) {
	return s.job, nil
}

func (s *stubJobStore) MarkPaymentSubmitted(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	s.claimUpdates = updates
	return s.claimOK, s.claimErr
}

func (s *stubJobStore) UpdatePaymentIfProcessing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	s.linkUpdates = updates
	return s.linkOK, s.linkErr
}

func (s *stubJobStore) RevertPayment(ctx context.Context, id uuid.UUID) error {
	s.reverted = true
	return s.revertErr
}

type stubProvider struct {
	mandate      *gocardless.Mandate
	mandateErr   error
	payment      *gocardless.Payment
	paymentErr   error
	paymentCalls int
	lastParams   gocardless.PaymentParams
}

func (s *stubProvider) GetMandate(ctx context.Context, token, mandateID string) (*gocardless.Mandate, error) {
	if s.mandateErr != nil {
		return nil, s.mandateErr
	}
	return s.mandate, nil
}

func (s *stubProvider) CreatePayment(ctx context.Context, token string, params gocardless.PaymentParams) (*gocardless.Payment, error) {
	s.paymentCalls++
	s.lastParams = params
	if s.paymentErr != nil {
		return nil, s.paymentErr
	}
	return s.payment, nil
}

type stubTokens struct{}

func (stubTokens) Token(ctx context.Context, merchantID uuid.UUID) (string, error) {
	return "tok", nil
}

func strPtr(s string) *string { return &s }

func statusPtr(s enums.MandateStatus) *enums.MandateStatus { return &s }

func activeCustomer(customerID uuid.UUID) *models.Customer {
	return &models.Customer{
		ID:            customerID,
		GCMandateRef:  strPtr("MD1"),
		MandateStatus: statusPtr(enums.MandateStatusActive),
	}
}

func newTestService(t *testing.T, customers *stubCustomerStore, jobs *stubJobStore, provider *stubProvider) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Customers: customers,
		Jobs:      jobs,
		Provider:  provider,
		Tokens:    stubTokens{},
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func collectInput(jobID, customerID uuid.UUID) CollectInput {
	return CollectInput{
		MerchantID:  uuid.New(),
		JobID:       jobID,
		CustomerID:  customerID,
		Amount:      decimal.RequireFromString("45.00"),
		Description: "Weekly clean",
	}
}

func TestCollectSuccessWritesLedgerAndSubmits(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}, claimOK: true, linkOK: true}
	provider := &stubProvider{
		mandate: &gocardless.Mandate{ID: "MD1", Status: "active"},
		payment: &gocardless.Payment{ID: "PM1", Status: "pending_submission"},
	}
	svc := newTestService(t, customers, jobs, provider)

	result, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.NoError(t, err)
	assert.Equal(t, "PM1", result.PaymentRef)
	assert.Equal(t, enums.ProviderPaymentStatusPendingSubmission, result.ProviderStatus)

	// The claim carries the full fee breakdown.
	assert.Equal(t, enums.PaymentStatusProcessing, jobs.claimUpdates["payment_status"])
	assert.Equal(t, enums.PaymentMethodDirectDebit, jobs.claimUpdates["payment_method"])
	platform, ok := jobs.claimUpdates["platform_fee"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, platform.Equal(decimal.RequireFromString("0.64")))

	// The provider call is in pence, carries the app fee and the metadata ids.
	assert.Equal(t, int64(4500), provider.lastParams.AmountPence)
	assert.Equal(t, int64(64), provider.lastParams.AppFeePence)
	assert.Equal(t, "MD1", provider.lastParams.MandateID)
	assert.Equal(t, jobID.String(), provider.lastParams.Metadata["job_id"])

	assert.Equal(t, "PM1", jobs.linkUpdates["gc_payment_ref"])
	assert.False(t, jobs.reverted)
}

func TestCollectRejectsInvalidAmounts(t *testing.T) {
	svc := newTestService(t, &stubCustomerStore{}, &stubJobStore{}, &stubProvider{})

	for _, amount := range []string{"0", "-5", "1.999"} {
		input := collectInput(uuid.New(), uuid.New())
		input.Amount = decimal.RequireFromString(amount)
		_, err := svc.Collect(context.Background(), input)
		require.Error(t, err, amount)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), amount)
	}
}

func TestCollectRejectsMismatchedJobCustomer(t *testing.T) {
	customerID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: uuid.New(), CustomerID: uuid.New()}}
	svc := newTestService(t, customers, jobs, &stubProvider{})

	_, err := svc.Collect(context.Background(), collectInput(uuid.New(), customerID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCollectPreconditionErrors(t *testing.T) {
	cases := []struct {
		name            string
		customer        func(id uuid.UUID) *models.Customer
		wantRequiresNew bool
	}{
		{"no mandate at all", func(id uuid.UUID) *models.Customer {
			return &models.Customer{ID: id}
		}, true},
		{"pending mandate just waits", func(id uuid.UUID) *models.Customer {
			return &models.Customer{ID: id, GCMandateRef: strPtr("BRQ1"), MandateStatus: statusPtr(enums.MandateStatusPending)}
		}, false},
		{"cancelled needs a new mandate", func(id uuid.UUID) *models.Customer {
			return &models.Customer{ID: id, MandateStatus: statusPtr(enums.MandateStatusCancelled)}
		}, true},
		{"active status with billing-request ref", func(id uuid.UUID) *models.Customer {
			return &models.Customer{ID: id, GCMandateRef: strPtr("BRQ1"), MandateStatus: statusPtr(enums.MandateStatusActive)}
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			customerID := uuid.New()
			jobID := uuid.New()
			customers := &stubCustomerStore{customer: tc.customer(customerID)}
			jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}}
			provider := &stubProvider{}
			svc := newTestService(t, customers, jobs, provider)

			_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			assert.Equal(t, pkgerrors.CodeMandateInactive, typed.Code())
			details, ok := typed.Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.wantRequiresNew, details["requires_new_mandate"])
			assert.Equal(t, 0, provider.paymentCalls)
		})
	}
}

func TestCollectStaleMandateRejectedBeforeSubmission(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}}
	provider := &stubProvider{mandate: &gocardless.Mandate{ID: "MD1", Status: "cancelled"}}
	svc := newTestService(t, customers, jobs, provider)

	_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeMandateInactive, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, true, details["requires_new_mandate"])

	// No payment was created, and the local record caught up with reality.
	assert.Equal(t, 0, provider.paymentCalls)
	assert.True(t, customers.updatedCalled)
	assert.Nil(t, customers.updatedRef)
	require.NotNil(t, customers.updatedStatus)
	assert.Equal(t, enums.MandateStatusCancelled, *customers.updatedStatus)
}

func TestCollectMandateGoneProviderSide(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}}
	provider := &stubProvider{mandateErr: &gocardless.APIError{StatusCode: 404}}
	svc := newTestService(t, customers, jobs, provider)

	_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMandateInactive, pkgerrors.As(err).Code())
	require.NotNil(t, customers.updatedStatus)
	assert.Equal(t, enums.MandateStatusExpired, *customers.updatedStatus)
}

func TestCollectRevertsOnProviderFailure(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}, claimOK: true}
	provider := &stubProvider{
		mandate:    &gocardless.Mandate{ID: "MD1", Status: "active"},
		paymentErr: &gocardless.APIError{StatusCode: 422, Body: `{"error":"mandate_is_inactive"}`},
	}
	svc := newTestService(t, customers, jobs, provider)

	_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.Error(t, err)
	assert.True(t, jobs.reverted)
}

func TestCollectDoesNotOverwriteCompetingPayment(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}, claimOK: false}
	provider := &stubProvider{mandate: &gocardless.Mandate{ID: "MD1", Status: "active"}}
	svc := newTestService(t, customers, jobs, provider)

	_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Equal(t, 0, provider.paymentCalls)
	assert.False(t, jobs.reverted)
}

func TestCollectLinkFailureKeepsProviderRef(t *testing.T) {
	customerID := uuid.New()
	jobID := uuid.New()
	customers := &stubCustomerStore{customer: activeCustomer(customerID)}
	jobs := &stubJobStore{job: &models.Job{ID: jobID, CustomerID: customerID}, claimOK: true, linkOK: false}
	provider := &stubProvider{
		mandate: &gocardless.Mandate{ID: "MD1", Status: "active"},
		payment: &gocardless.Payment{ID: "PM1", Status: "pending_submission"},
	}
	svc := newTestService(t, customers, jobs, provider)

	_, err := svc.Collect(context.Background(), collectInput(jobID, customerID))
	require.Error(t, err)
	// The created payment is never deleted; reconciliation happens via the
	// webhook feed, so no revert either.
	assert.False(t, jobs.reverted)
}
