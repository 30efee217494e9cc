package franchise

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	domainFranchise "github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

// TransitionResult describes a committed status change.
type TransitionResult struct {
	Kind         domainFranchise.Kind `json:"kind"`
	ID           int64                `json:"id"`
	FranchiseID  int64                `json:"franchise_id"`
	OwnerID      int64                `json:"owner_id"`
	PlateNo      string               `json:"plate_no"`
	From         approval.Status      `json:"from"`
	To           approval.Status      `json:"to"`
	ApprovalDate *time.Time           `json:"approval_date,omitempty"`
	ExpiryDate   *time.Time           `json:"expiry_date,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

func (r *TransitionResult) payload() kafka.StatusChangedPayload {
	return kafka.StatusChangedPayload{
		Kind:         string(r.Kind),
		RecordID:     r.ID,
		FranchiseID:  r.FranchiseID,
		OwnerID:      r.OwnerID,
		PlateNo:      r.PlateNo,
		From:         string(r.From),
		To:           string(r.To),
		ApprovalDate: r.ApprovalDate,
		ExpiryDate:   r.ExpiryDate,
		OccurredAt:   r.OccurredAt,
	}
}

// LifecycleService is the inbound API of the franchise lifecycle engine.
type LifecycleService interface {
	// RegisterFranchise files a new franchise and announces it.
	RegisterFranchise(ctx context.Context, ownerID int64, in domainFranchise.FranchiseInput) (*domainFranchise.View, error)
	// FileRenewal files a renewal against an approved franchise and announces it.
	FileRenewal(ctx context.Context, ownerID int64, in domainFranchise.RenewalInput) (*domainFranchise.Renewal, error)

	RequestTransition(ctx context.Context, req domainFranchise.TransitionRequest) (*TransitionResult, error)
	// RecordPayment is the treasurer path from Validated to Paid.
	RecordPayment(ctx context.Context, kind domainFranchise.Kind, id int64, orNo string) (*TransitionResult, error)

	QueryEffectiveStatus(ctx context.Context, franchiseID int64) (*domainFranchise.ExpiryStatus, error)
	QueryRates(ctx context.Context, franchiseID int64) (*ratesheet.Resolution, error)
}

// Option configures optional collaborators of the lifecycle service.
type Option func(*lifecycleServiceImpl)

func WithLocker(l Locker) Option {
	return func(s *lifecycleServiceImpl) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *lifecycleServiceImpl) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *lifecycleServiceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *lifecycleServiceImpl) {
		if l != nil {
			s.logger = l
		}
	}
}

type lifecycleServiceImpl struct {
	franchises *domainFranchise.Service
	resolver   *ratesheet.Resolver
	clock      calendar.Clock
	locker     Locker
	publisher  EventPublisher
	metrics    Metrics
	logger     logging.Logger
}

// NewLifecycleService wires the lifecycle engine. Locking, publishing and
// metrics default to no-ops.
func NewLifecycleService(franchises *domainFranchise.Service, resolver *ratesheet.Resolver, clock calendar.Clock, opts ...Option) (LifecycleService, error) {
	if franchises == nil {
		return nil, errors.Internal("franchise domain service must not be nil")
	}
	if resolver == nil {
		return nil, errors.Internal("rate resolver must not be nil")
	}
	if clock == nil {
		clock = calendar.SystemClock()
	}
	s := &lifecycleServiceImpl{
		franchises: franchises,
		resolver:   resolver,
		clock:      clock,
		locker:     localLocker{},
		publisher:  noopPublisher{},
		metrics:    noopMetrics{},
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func lockName(kind domainFranchise.Kind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func eventKey(franchiseID int64) string {
	return strconv.FormatInt(franchiseID, 10)
}

// ---------------------------------------------------------------------------
// Filing
// ---------------------------------------------------------------------------

func (s *lifecycleServiceImpl) RegisterFranchise(ctx context.Context, ownerID int64, in domainFranchise.FranchiseInput) (*domainFranchise.View, error) {
	now := s.clock.Now()
	v, err := s.franchises.CreateFranchise(ctx, ownerID, in, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &TransitionResult{
		Kind:        domainFranchise.KindFranchise,
		ID:          v.ID,
		FranchiseID: v.ID,
		OwnerID:     v.OwnerID,
		PlateNo:     v.PlateNo,
		To:          v.Status,
		OccurredAt:  now,
	})
	return v, nil
}

func (s *lifecycleServiceImpl) FileRenewal(ctx context.Context, ownerID int64, in domainFranchise.RenewalInput) (*domainFranchise.Renewal, error) {
	now := s.clock.Now()
	r, err := s.franchises.CreateRenewal(ctx, ownerID, in, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &TransitionResult{
		Kind:        domainFranchise.KindRenewal,
		ID:          r.ID,
		FranchiseID: r.FranchiseID,
		OwnerID:     ownerID,
		To:          r.Status,
		OccurredAt:  now,
	})
	return r, nil
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

type txFunc func(ctx context.Context, tx domainFranchise.Repository, now time.Time) (*domainFranchise.TransitionOutcome, error)

// commit runs fn under the record lock and a single transaction, then
// publishes the change. now is read once so every check agrees on it.
func (s *lifecycleServiceImpl) commit(ctx context.Context, kind domainFranchise.Kind, id int64, fn txFunc) (*TransitionResult, error) {
	if !kind.IsValid() {
		return nil, errors.Validation("unknown record kind").WithDetail(string(kind))
	}
	now := s.clock.Now()

	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, lockName(kind, id))
	s.metrics.RecordLockWait(string(kind), time.Since(waitStart))
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.Warn("failed to release record lock",
				logging.String("kind", string(kind)), logging.Int64("id", id), logging.Err(relErr))
		}
	}()

	var out *domainFranchise.TransitionOutcome
	err = s.franchises.Repository().WithTx(ctx, func(tx domainFranchise.Repository) error {
		o, txErr := fn(ctx, tx, now)
		if txErr != nil {
			return txErr
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &TransitionResult{
		Kind:         out.Kind,
		ID:           out.ID,
		FranchiseID:  out.FranchiseID,
		OwnerID:      out.OwnerID,
		PlateNo:      out.PlateNo,
		From:         out.Change.From,
		To:           out.Change.To,
		ApprovalDate: out.Change.ApprovalDate,
		ExpiryDate:   out.Change.ExpiryDate,
		OccurredAt:   now,
	}
	s.logger.Info("approval status changed",
		logging.String("kind", string(res.Kind)),
		logging.Int64("id", res.ID),
		logging.Int64("franchise_id", res.FranchiseID),
		logging.String("from", string(res.From)),
		logging.String("to", string(res.To)))
	s.publish(ctx, res)
	return res, nil
}

func (s *lifecycleServiceImpl) RequestTransition(ctx context.Context, req domainFranchise.TransitionRequest) (*TransitionResult, error) {
	start := time.Now()
	res, err := s.commit(ctx, req.Kind, req.ID, func(ctx context.Context, tx domainFranchise.Repository, now time.Time) (*domainFranchise.TransitionOutcome, error) {
		return s.franchises.Transition(ctx, tx, req, now)
	})
	to := string(req.Status)
	if res != nil {
		to = string(res.To)
	} else if to == "" {
		to = "next"
	}
	s.metrics.RecordTransition(string(req.Kind), to, err, time.Since(start))
	if err != nil {
		s.logger.Warn("transition rejected",
			logging.String("kind", string(req.Kind)),
			logging.Int64("id", req.ID),
			logging.String("requested", string(req.Status)),
			logging.Err(err))
		return nil, err
	}
	return res, nil
}

func (s *lifecycleServiceImpl) RecordPayment(ctx context.Context, kind domainFranchise.Kind, id int64, orNo string) (*TransitionResult, error) {
	res, err := s.commit(ctx, kind, id, func(ctx context.Context, tx domainFranchise.Repository, now time.Time) (*domainFranchise.TransitionOutcome, error) {
		return s.franchises.RecordPayment(ctx, tx, kind, id, orNo, now)
	})
	s.metrics.RecordPayment(string(kind), err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// publish announces a committed change. The change is already durable, so
// a broker failure is logged and counted but not returned.
func (s *lifecycleServiceImpl) publish(ctx context.Context, res *TransitionResult) {
	p := res.payload()
	topics := []string{kafka.TopicStatusChanged}
	if res.To == approval.StatusApproved {
		topics = append(topics, kafka.TopicIssued)
	}
	for _, topic := range topics {
		err := s.publisher.Publish(ctx, topic, eventKey(res.FranchiseID), p)
		s.metrics.RecordEventPublished(topic, err)
		if err != nil {
			s.logger.Error("failed to publish lifecycle event",
				logging.String("topic", topic),
				logging.Int64("franchise_id", res.FranchiseID),
				logging.Err(err))
		}
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (s *lifecycleServiceImpl) QueryEffectiveStatus(ctx context.Context, franchiseID int64) (*domainFranchise.ExpiryStatus, error) {
	return s.franchises.EffectiveStatus(ctx, franchiseID, s.clock.Now())
}

func (s *lifecycleServiceImpl) QueryRates(ctx context.Context, franchiseID int64) (*ratesheet.Resolution, error) {
	now := s.clock.Now()
	f, err := s.franchises.Repository().GetByID(ctx, franchiseID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolver.Resolve(ctx, ratesheet.SubjectOf(f), now)
	s.metrics.RecordRateResolution(err, err == nil && res.ActivePenalty != nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}
