package franchise_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	appFranchise "github.com/turtacn/toda-franchise/internal/application/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/redis"
	"github.com/turtacn/toda-franchise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/testutil"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

var cal = calendar.MustLoad(calendar.DefaultZone)

func tp(t time.Time) *time.Time { return &t }

type published struct {
	topic   string
	key     string
	payload kafka.StatusChangedPayload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, key: key, payload: payload.(kafka.StatusChangedPayload)})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	payments    int
	resolutions int
	penalties   int
	publishErrs int
	lockWaits   int
}

func (m *recordingMetrics) RecordTransition(kind, to string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "ok"
	if err != nil {
		result = string(apperrors.GetCode(err))
	}
	m.transitions = append(m.transitions, kind+"/"+to+"/"+result)
}

func (m *recordingMetrics) RecordPayment(string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments++
}

func (m *recordingMetrics) RecordLockWait(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockWaits++
}

func (m *recordingMetrics) RecordRateResolution(_ error, penalty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions++
	if penalty {
		m.penalties++
	}
}

func (m *recordingMetrics) RecordEventPublished(_ string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.publishErrs++
	}
}

type LifecycleServiceSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *calendar.FixedClock
	store     *testutil.MemFranchiseStore
	sheets    *testutil.MemRateSheetStore
	publisher *recordingPublisher
	metrics   *recordingMetrics
	log       *testutil.MockLogger
	svc       appFranchise.LifecycleService
	assoc     *franchise.Association
}

func (s *LifecycleServiceSuite) newService(opts ...appFranchise.Option) appFranchise.LifecycleService {
	machine := approval.NewMachine(cal, approval.DefaultPolicy)
	domainSvc := franchise.NewService(s.store, s.store.Associations(), machine, cal, franchise.DefaultWindow, s.log)
	resolver := ratesheet.NewResolver(s.sheets, cal)
	base := []appFranchise.Option{
		appFranchise.WithPublisher(s.publisher),
		appFranchise.WithMetrics(s.metrics),
		appFranchise.WithLogger(s.log),
	}
	svc, err := appFranchise.NewLifecycleService(domainSvc, resolver, s.clock, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *LifecycleServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = calendar.NewFixedClock(cal.Date(2024, 1, 1))
	s.store = testutil.NewMemFranchiseStore()
	s.sheets = testutil.NewMemRateSheetStore()
	s.publisher = &recordingPublisher{}
	s.metrics = &recordingMetrics{}
	s.log = testutil.NewMockLogger()
	s.assoc = s.store.SeedAssociation(&franchise.Association{Name: "Poblacion TODA"})
	s.svc = s.newService()
}

func (s *LifecycleServiceSuite) register(plate string) *franchise.View {
	v, err := s.svc.RegisterFranchise(s.ctx, 7, franchise.FranchiseInput{
		AssociationID: s.assoc.ID,
		PlateNo:       plate,
		IsDriverOwner: true,
	})
	s.Require().NoError(err)
	return v
}

func (s *LifecycleServiceSuite) TestRegisterFranchise_AnnouncesFiling() {
	v := s.register("ABC 123")

	s.Require().Len(s.publisher.events, 1)
	ev := s.publisher.events[0]
	s.Equal(kafka.TopicStatusChanged, ev.topic)
	s.Equal(itoa(v.ID), ev.key)
	s.Equal(v.ID, ev.payload.FranchiseID)
	s.Equal("", ev.payload.From)
	s.Equal(string(approval.StatusPendingValidation), ev.payload.To)
}

func (s *LifecycleServiceSuite) TestFullWorkflow_PublishesIssuance() {
	v := s.register("abc")

	res, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.Require().NoError(err)
	s.Equal(approval.StatusValidated, res.To)

	res, err = s.svc.RecordPayment(s.ctx, franchise.KindFranchise, v.ID, "OR-1")
	s.Require().NoError(err)
	s.Equal(approval.StatusPaid, res.To)

	res, err = s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{
		Kind: franchise.KindFranchise, ID: v.ID, Status: approval.StatusApproved,
		Remarks: []franchise.RemarkInput{{Remark: "documents complete"}},
	})
	s.Require().NoError(err)
	s.Equal(approval.StatusPaid, res.From)
	s.Equal(approval.StatusApproved, res.To)
	s.Require().NotNil(res.ExpiryDate)
	s.True(cal.SameDay(*res.ExpiryDate, cal.Date(2024, 12, 31)))

	s.Equal([]string{
		kafka.TopicStatusChanged,
		kafka.TopicStatusChanged,
		kafka.TopicStatusChanged,
		kafka.TopicStatusChanged,
		kafka.TopicIssued,
	}, s.publisher.topics())
	s.Len(s.store.Remarks, 1)
	s.Equal(1, s.metrics.payments)
	s.Equal(3, s.metrics.lockWaits)
	s.Contains(s.metrics.transitions, "franchise/approved/ok")
	s.True(s.log.HasMessage("info", "approval status changed"))
}

func (s *LifecycleServiceSuite) TestRequestTransition_OlderRenewalSuperseded() {
	approvedAt := cal.Date(2023, 1, 1)
	firstExp := cal.AddDays(cal.Date(2023, 12, 20), 365)
	exp := cal.AddDays(approvedAt, 365)
	older := &franchise.Renewal{CreatedAt: cal.Date(2023, 12, 15),
		Lifecycle: franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: tp(cal.Date(2023, 12, 20)), ExpiresAt: &firstExp}}
	newer := &franchise.Renewal{CreatedAt: cal.Date(2024, 12, 10),
		Lifecycle: franchise.Lifecycle{Status: approval.StatusPendingValidation}}
	s.store.SeedFranchise(&franchise.Franchise{
		OwnerID:   1,
		PlateNo:   "abc",
		Lifecycle: franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: &approvedAt, ExpiresAt: &exp},
		Renewals:  []*franchise.Renewal{older, newer},
	})
	s.clock.Set(cal.Date(2024, 12, 11))

	_, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindRenewal, ID: older.ID, Status: approval.StatusRevoked})
	s.Require().Error(err)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeRenewalSuperseded))
	s.True(apperrors.IsNotFound(err))
	s.Empty(s.publisher.events)
	s.Contains(s.metrics.transitions, "renewal/revoked/"+string(apperrors.ErrCodeRenewalSuperseded))
	s.True(s.log.HasMessage("warn", "transition rejected"))

	res, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindRenewal, ID: newer.ID})
	s.Require().NoError(err)
	s.Equal(approval.StatusValidated, res.To)
}

func (s *LifecycleServiceSuite) TestRequestTransition_ConcurrentModification() {
	v := s.register("abc")
	s.store.BeforeSaveLifecycle = func(kind franchise.Kind, id int64) {
		s.store.ForceStatus(kind, id, approval.StatusCanceled)
	}

	_, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeConcurrentModification))
	s.Contains(s.metrics.transitions, "franchise/next/"+string(apperrors.ErrCodeConcurrentModification))
	s.Len(s.publisher.events, 1)
}

func (s *LifecycleServiceSuite) TestRequestTransition_UnknownKind() {
	_, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: "permit", ID: 1})
	s.True(apperrors.IsValidation(err))
}

func (s *LifecycleServiceSuite) TestPublishFailureDoesNotFailTransition() {
	v := s.register("abc")
	s.publisher.err = stderrors.New("broker down")

	res, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.Require().NoError(err)
	s.Equal(approval.StatusValidated, res.To)
	s.Equal(1, s.metrics.publishErrs)
	s.True(s.log.HasMessage("error", "failed to publish lifecycle event"))
}

func (s *LifecycleServiceSuite) TestRecordPayment_RequiresORNumber() {
	v := s.register("abc")
	_, err := s.svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.Require().NoError(err)

	_, err = s.svc.RecordPayment(s.ctx, franchise.KindFranchise, v.ID, "  ")
	s.True(apperrors.IsValidation(err))
	s.Equal(1, s.metrics.payments)
}

func (s *LifecycleServiceSuite) TestQueries_AreIdempotent() {
	approvedAt := cal.Date(2024, 1, 1)
	exp := cal.AddDays(approvedAt, 365)
	f := s.store.SeedFranchise(&franchise.Franchise{
		OwnerID:   1,
		PlateNo:   "abc",
		Lifecycle: franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: &approvedAt, ExpiresAt: &exp},
		Renewals: []*franchise.Renewal{{CreatedAt: cal.Date(2024, 12, 20),
			Lifecycle: franchise.Lifecycle{Status: approval.StatusValidated, ApprovedAt: tp(cal.Date(2024, 12, 21))}}},
	})
	s.sheets.Seed(&ratesheet.RateSheet{
		Name: "Registration", FeeType: ratesheet.FeeTypeRegistration,
		Fees:      []*ratesheet.Fee{{Name: "Filing", Amount: 50000}},
		CreatedAt: cal.Date(2023, 6, 1),
	})
	s.sheets.Seed(&ratesheet.RateSheet{
		Name: "Renewal", FeeType: ratesheet.FeeTypeRenewal,
		Fees: []*ratesheet.Fee{
			{Name: "Renewal", Amount: 30000},
			{Name: "Late", Amount: 10000, IsPenalty: true, ActivatePenaltyAfterExpiryDays: 1},
		},
		CreatedAt: cal.Date(2023, 6, 1),
	})
	s.clock.Set(cal.Date(2025, 1, 5))

	st1, err := s.svc.QueryEffectiveStatus(s.ctx, f.ID)
	s.Require().NoError(err)
	st2, err := s.svc.QueryEffectiveStatus(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(st1, st2)
	s.Equal(approval.StatusValidated, st1.EffectiveStatus)

	r1, err := s.svc.QueryRates(s.ctx, f.ID)
	s.Require().NoError(err)
	r2, err := s.svc.QueryRates(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(r1, r2)
	s.Require().NotNil(r1.ActivePenalty)
	s.Equal("Late", r1.ActivePenalty.Name)
	s.Equal("400", r1.Total(ratesheet.FeeTypeRenewal).String())
	s.Equal(2, s.metrics.resolutions)
	s.Equal(2, s.metrics.penalties)
}

func (s *LifecycleServiceSuite) TestQueryRates_UnknownFranchise() {
	_, err := s.svc.QueryRates(s.ctx, 404)
	s.True(apperrors.IsNotFound(err))
}

func (s *LifecycleServiceSuite) TestRedisLock_Contention() {
	mr := miniredis.RunT(s.T())
	client := redis.NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "tricycle", logging.NewNopLogger())
	factory := redis.NewLockFactory(client, logging.NewNopLogger(), redis.WithRetryCount(1), redis.WithRetryDelay(5*time.Millisecond))
	svc := s.newService(appFranchise.WithLocker(appFranchise.NewRedisLocker(factory)))

	v := s.register("abc")
	holder := factory.NewMutex("franchise:" + itoa(v.ID))
	s.Require().NoError(holder.Lock(s.ctx))

	_, err := svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeConcurrentModification))

	s.Require().NoError(holder.Unlock(s.ctx))
	res, err := svc.RequestTransition(s.ctx, franchise.TransitionRequest{Kind: franchise.KindFranchise, ID: v.ID})
	s.Require().NoError(err)
	s.Equal(approval.StatusValidated, res.To)
	s.False(mr.Exists("tricycle:lock:mutex:franchise:" + itoa(v.ID)))
}

func TestLifecycleServiceSuite(t *testing.T) {
	suite.Run(t, new(LifecycleServiceSuite))
}

func TestNewLifecycleService_RequiresCollaborators(t *testing.T) {
	_, err := appFranchise.NewLifecycleService(nil, ratesheet.NewResolver(testutil.NewMemRateSheetStore(), cal), nil)
	assert.Error(t, err)

	store := testutil.NewMemFranchiseStore()
	domainSvc := franchise.NewService(store, store.Associations(), approval.NewMachine(cal, approval.DefaultPolicy), cal, franchise.DefaultWindow, nil)
	_, err = appFranchise.NewLifecycleService(domainSvc, nil, nil)
	assert.Error(t, err)

	svc, err := appFranchise.NewLifecycleService(domainSvc, ratesheet.NewResolver(testutil.NewMemRateSheetStore(), cal), nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
