package gcwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/internal/customers"
	"github.com/glintbooks/glint-backend/internal/jobs"
	"github.com/glintbooks/glint-backend/pkg/db"
	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
	"github.com/glintbooks/glint-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idempotencyGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

type paymentFetcher interface {
	GetPayment(ctx context.Context, token, paymentID string) (*gocardless.Payment, error)
}

type tokenSource interface {
	Token(ctx context.Context, merchantID uuid.UUID) (string, error)
}

// errAlreadyProcessed aborts the event transaction when the processed-event
// insert hits the primary key.
var errAlreadyProcessed = errors.New("event already processed")

const guardScope = "gocardless"

// ServiceParams groups dependencies for the webhook processor.
type ServiceParams struct {
	WebhookSecret     string
	TransactionRunner txRunner
	Events            EventsRepository
	Customers         customers.Repository
	Jobs              jobs.Repository
	Provider          paymentFetcher
	Tokens            tokenSource
	Guard             idempotencyGuard
	GuardTTL          time.Duration
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service verifies, deduplicates, and dispatches the provider's event feed.
type Service struct {
	secret    string
	txRunner  txRunner
	events    EventsRepository
	customers customers.Repository
	jobs      jobs.Repository
	provider  paymentFetcher
	tokens    tokenSource
	guard     idempotencyGuard
	guardTTL  time.Duration
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time

	handlers map[string]func(ctx context.Context, tx *gorm.DB, event Event) error
}

// NewService builds a webhook processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.WebhookSecret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Events == nil {
		return nil, errors.New("events repository is required")
	}
	if params.Customers == nil {
		return nil, errors.New("customers repository is required")
	}
	if params.Jobs == nil {
		return nil, errors.New("jobs repository is required")
	}
	if params.Provider == nil {
		return nil, errors.New("provider client is required")
	}
	if params.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		secret:    params.WebhookSecret,
		txRunner:  params.TransactionRunner,
		events:    params.Events,
		customers: params.Customers,
		jobs:      params.Jobs,
		provider:  params.Provider,
		tokens:    params.Tokens,
		guard:     params.Guard,
		guardTTL:  params.GuardTTL,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}
	// Closed handler set: adding a resource type means adding an entry here.
	s.handlers = map[string]func(ctx context.Context, tx *gorm.DB, event Event) error{
		ResourceMandate:        s.handleMandate,
		ResourcePayment:        s.handlePayment,
		ResourceBillingRequest: s.handleBillingRequest,
	}
	return s, nil
}

// EventResult reports the outcome for one event of a delivery.
type EventResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"` // processed | already_processed | failed
	Error   string `json:"error,omitempty"`
}

// Summary is the per-delivery processing report.
type Summary struct {
	Processed        int           `json:"processed"`
	AlreadyProcessed int           `json:"already_processed"`
	Failed           int           `json:"failed"`
	Results          []EventResult `json:"results"`
}

// Process verifies the signature, parses the delivery, and runs every event.
// One event's failure never aborts its siblings; failures are combined into a
// single log line and reported individually in the summary.
func (s *Service) Process(ctx context.Context, body []byte, signature string) (*Summary, error) {
	if !VerifySignature(s.secret, body, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}

	events, err := ParseDelivery(body)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Results: make([]EventResult, 0, len(events))}
	var failures error

	for _, event := range events {
		resource := normalizeResource(event.ResourceType)
		result := EventResult{EventID: event.ID, Status: "processed"}

		switch err := s.processEvent(ctx, resource, event); {
		case errors.Is(err, errAlreadyProcessed):
			result.Status = "already_processed"
			summary.AlreadyProcessed++
		case err != nil:
			result.Status = "failed"
			result.Error = err.Error()
			summary.Failed++
			failures = multierr.Append(failures, fmt.Errorf("event %s: %w", event.ID, err))
		default:
			summary.Processed++
		}

		if s.metrics != nil {
			s.metrics.IncWebhookEvent(resource, result.Status)
		}
		summary.Results = append(summary.Results, result)
	}

	if failures != nil {
		s.logg.Error(ctx, "webhook delivery had failing events", failures)
	}
	return summary, nil
}

func (s *Service) processEvent(ctx context.Context, resource string, event Event) error {
	ctx = s.logg.WithEventID(ctx, event.ID)

	guardKey := ""
	if s.guard != nil {
		guardKey = s.guard.IdempotencyKey(guardScope, event.ID)
		fresh, err := s.guard.SetNX(ctx, guardKey, "1", s.guardTTL)
		if err != nil {
			// The durable dedup row still protects us; the cache is only a
			// fast path.
			s.logg.Warn(ctx, "idempotency cache unavailable, falling through to db dedup")
			guardKey = ""
		} else if !fresh {
			return errAlreadyProcessed
		}
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		insertErr := s.events.WithTx(tx).InsertProcessed(ctx, &models.WebhookEvent{
			EventID:      event.ID,
			ResourceType: resource,
			Action:       event.Action,
		})
		if insertErr != nil {
			if db.IsUniqueViolation(insertErr, "webhook_events_pkey") {
				return errAlreadyProcessed
			}
			return insertErr
		}

		handler, ok := s.handlers[resource]
		if !ok {
			s.logg.Warn(s.logg.WithField(ctx, "resource_type", event.ResourceType), "unhandled webhook resource type")
			return nil
		}
		return handler(ctx, tx, event)
	})

	if err != nil && !errors.Is(err, errAlreadyProcessed) && guardKey != "" {
		// Free the cache slot so a redelivery can retry the event.
		if delErr := s.guard.Del(ctx, guardKey); delErr != nil {
			s.logg.Warn(ctx, "failed to release idempotency cache slot")
		}
	}
	return err
}

func (s *Service) handleMandate(ctx context.Context, tx *gorm.DB, event Event) error {
	customerRepo := s.customers.WithTx(tx)

	switch event.Action {
	case "created", "active", "reinstated":
		if event.Links.Mandate == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "mandate event without mandate link")
		}
		customer, err := s.resolveCustomer(ctx, customerRepo, event)
		if err != nil {
			return err
		}
		if customer == nil {
			return nil
		}
		active := enums.MandateStatusActive
		mandateRef := event.Links.Mandate
		return customerRepo.UpdateMandateState(ctx, customer.ID, &mandateRef, &active)

	case "cancelled", "expired", "failed":
		customer, err := s.resolveCustomer(ctx, customerRepo, event)
		if err != nil {
			return err
		}
		if customer == nil {
			return nil
		}
		status := enums.MandateStatus(event.Action)
		if err := customerRepo.UpdateMandateState(ctx, customer.ID, nil, &status); err != nil {
			return err
		}
		// Payments in flight against a dead mandate cannot be trusted to
		// complete; unwind them in the same transaction.
		reverted, err := s.jobs.WithTx(tx).RevertProcessingDirectDebitByCustomer(ctx, customer.ID)
		if err != nil {
			return err
		}
		if reverted > 0 {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"customer_id":   customer.ID.String(),
				"jobs_reverted": reverted,
			}), "reverted in-flight collections after mandate termination")
		}
		return nil

	default:
		s.logg.Info(s.logg.WithField(ctx, "action", event.Action), "ignoring mandate action")
		return nil
	}
}

// paymentTransitions maps provider payment actions to the local pair of
// provider sub-status and job payment status.
var paymentTransitions = map[string]struct {
	provider enums.ProviderPaymentStatus
	local    enums.PaymentStatus
}{
	"created":      {enums.ProviderPaymentStatusPendingSubmission, enums.PaymentStatusProcessing},
	"submitted":    {enums.ProviderPaymentStatusSubmitted, enums.PaymentStatusProcessing},
	"confirmed":    {enums.ProviderPaymentStatusConfirmed, enums.PaymentStatusProcessing},
	"paid_out":     {enums.ProviderPaymentStatusPaid, enums.PaymentStatusPaid},
	"failed":       {enums.ProviderPaymentStatusFailed, enums.PaymentStatusUnpaid},
	"cancelled":    {enums.ProviderPaymentStatusCancelled, enums.PaymentStatusUnpaid},
	"charged_back": {enums.ProviderPaymentStatusChargedBack, enums.PaymentStatusUnpaid},
}

func (s *Service) handlePayment(ctx context.Context, tx *gorm.DB, event Event) error {
	if event.Links.Payment == "" || !gocardless.IsPaymentID(event.Links.Payment) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment event without a payment link")
	}

	transition, ok := paymentTransitions[event.Action]
	if !ok {
		s.logg.Info(s.logg.WithField(ctx, "action", event.Action), "ignoring payment action")
		return nil
	}

	jobRepo := s.jobs.WithTx(tx)
	// The job is located by its stored payment ref, never trusted from the
	// payload alone.
	job, err := jobRepo.FindByPaymentRef(ctx, event.Links.Payment)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A collection whose link write was lost leaves a claimed job with no
		// ref; re-attach it from the payment's own metadata before giving up.
		job, err = s.recoverUnlinkedPayment(ctx, jobRepo, event)
		if job == nil {
			return err
		}
	}
	if err != nil {
		return err
	}

	var updates map[string]any
	switch transition.local {
	case enums.PaymentStatusUnpaid:
		// A dead payment releases the job completely, including its ref, so
		// it can be retried or collected another way.
		updates = jobs.PaymentResetColumns()
	case enums.PaymentStatusPaid:
		updates = map[string]any{
			"payment_status":    transition.local,
			"gc_payment_status": transition.provider,
			"payment_date":      s.now().UTC(),
		}
	default:
		updates = map[string]any{
			"payment_status":    transition.local,
			"gc_payment_status": transition.provider,
		}
	}

	updated, err := jobRepo.UpdatePaymentIfProcessing(ctx, job.ID, updates)
	if err != nil {
		return err
	}
	if !updated {
		// The job already left processing (settled or reverted); a late or
		// out-of-order event is a no-op.
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"job_id": job.ID.String(),
			"action": event.Action,
		}), "payment event skipped, job no longer processing")
	}
	return nil
}

// recoverUnlinkedPayment correlates a payment event with the job named in the
// payment's creation metadata when no job carries the ref. The metadata is
// confirmed against the provider before anything is written; a payment this
// system never issued stays a logged no-op.
func (s *Service) recoverUnlinkedPayment(ctx context.Context, jobRepo jobs.Repository, event Event) (*models.Job, error) {
	ctx = s.logg.WithField(ctx, "payment_ref", event.Links.Payment)

	jobID, err := uuid.Parse(event.ResourceMetadata["job_id"])
	if err != nil {
		s.logg.Warn(ctx, "payment event for unknown job")
		return nil, nil
	}
	merchantID, err := uuid.Parse(event.ResourceMetadata["merchant_id"])
	if err != nil {
		s.logg.Warn(ctx, "payment event for unknown job")
		return nil, nil
	}

	token, err := s.tokens.Token(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	payment, err := s.provider.GetPayment(ctx, token, event.Links.Payment)
	if err != nil {
		var apiErr *gocardless.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			s.logg.Warn(ctx, "payment event for unknown payment")
			return nil, nil
		}
		return nil, err
	}
	if payment.Metadata["job_id"] != jobID.String() {
		s.logg.Warn(ctx, "payment metadata does not match the event's job")
		return nil, nil
	}

	linked, err := jobRepo.LinkPayment(ctx, jobID, event.Links.Payment)
	if err != nil {
		return nil, err
	}
	if !linked {
		// The job already settled, reverted, or carries another payment.
		s.logg.Warn(s.logg.WithField(ctx, "job_id", jobID.String()), "job not eligible for payment relink")
		return nil, nil
	}

	s.logg.Info(s.logg.WithField(ctx, "job_id", jobID.String()), "relinked provider payment to job")
	return jobRepo.FindByID(ctx, jobID)
}

func (s *Service) handleBillingRequest(ctx context.Context, tx *gorm.DB, event Event) error {
	// The mandate event carries the actual state transition; billing request
	// events are informational.
	s.logg.Info(s.logg.WithField(ctx, "action", event.Action), "billing request event")
	return nil
}

// resolveCustomer matches the billing-request ref first (pre-authorization),
// then the mandate ref. A miss is logged, not an error: the feed can carry
// events for records this system never issued.
func (s *Service) resolveCustomer(ctx context.Context, repo customers.Repository, event Event) (*models.Customer, error) {
	if event.Links.BillingRequest != "" {
		customer, err := repo.FindByMandateRef(ctx, event.Links.BillingRequest)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if event.Links.Mandate != "" {
		customer, err := repo.FindByMandateRef(ctx, event.Links.Mandate)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"mandate_ref":         event.Links.Mandate,
		"billing_request_ref": event.Links.BillingRequest,
	}), "mandate event for unknown customer")
	return nil, nil
}
