package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Records are
// copied in and out so callers cannot mutate stored state by accident.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	events   map[uuid.UUID][]*payment.PaymentEvent
	byRef    map[string]uuid.UUID

	CreateFunc    func(ctx context.Context, p *payment.Payment) error
	UpdateFunc    func(ctx context.Context, p *payment.Payment) error
	ListFunc      func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
	AddEventFunc  func(ctx context.Context, event *payment.PaymentEvent) error
	GetEventsFunc func(ctx context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		events:   make(map[uuid.UUID][]*payment.PaymentEvent),
		byRef:    make(map[string]uuid.UUID),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[p.Reference]; ok {
		return fmt.Errorf("reference %s: %w", p.Reference, domainErrors.ErrDuplicateReference)
	}
	m.payments[p.ID] = clone(p)
	m.byRef[p.Reference] = p.ID
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clone(p), nil
}

func (m *MockPaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[reference]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clone(m.payments[id]), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.ID] = clone(p)
	return nil
}

// List honours the status and UpdatedBefore filters and the limit; results
// are ordered by UpdatedAt ascending.
func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*payment.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, p.Status) {
			continue
		}
		if filter.UpdatedBefore != nil && !p.UpdatedAt.Before(*filter.UpdatedBefore) {
			continue
		}
		result = append(result, clone(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockPaymentRepository) AddEvent(ctx context.Context, event *payment.PaymentEvent) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.PaymentID] = append(m.events[event.PaymentID], event)
	return nil
}

func (m *MockPaymentRepository) GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error) {
	if m.GetEventsFunc != nil {
		return m.GetEventsFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[paymentID], nil
}

// Put stores p as is, bypassing duplicate checks.
func (m *MockPaymentRepository) Put(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clone(p)
	m.byRef[p.Reference] = p.ID
}

// EventTypes returns the event types recorded for one payment, in order.
func (m *MockPaymentRepository) EventTypes(paymentID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events[paymentID]))
	for _, e := range m.events[paymentID] {
		out = append(out, e.EventType)
	}
	return out
}

func hasStatus(list []payment.Status, s payment.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clone(p *payment.Payment) *payment.Payment {
	c := *p
	c.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Locker Mock ---

// MockLocker is an in-process reference lock that fails fast when held.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Lock(_ context.Context, reference string) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[reference] {
		return nil, fmt.Errorf("reference %s: %w", reference, domainErrors.ErrLockAcquisitionFailed)
	}
	m.held[reference] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, reference)
		return nil
	}, nil
}

// --- Gateway Mock ---

// Call is one request seen by MockGateway.
type Call struct {
	Method  string
	Path    string
	ID      string
	Payload any
}

// Reply is one scripted gateway answer.
type Reply struct {
	Response *gateway.Response
	Err      error
}

// MockGateway answers Post and Get from per-method scripts. When a script
// runs out its last reply repeats.
type MockGateway struct {
	mu    sync.Mutex
	posts []Reply
	gets  []Reply
	calls []Call
	Test  bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) OnPost(replies ...Reply) *MockGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, replies...)
	return g
}

func (g *MockGateway) OnGet(replies ...Reply) *MockGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets = append(g.gets, replies...)
	return g
}

func (g *MockGateway) Post(_ context.Context, path string, payload any) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Method: "POST", Path: path, Payload: payload})
	return next(&g.posts)
}

func (g *MockGateway) Get(_ context.Context, path, id string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Method: "GET", Path: path, ID: id})
	return next(&g.gets)
}

func (g *MockGateway) TestMode() bool { return g.Test }

// Calls returns every request seen so far.
func (g *MockGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Count returns the number of requests with the given method.
func (g *MockGateway) Count(method string) int {
	n := 0
	for _, c := range g.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func next(script *[]Reply) (*gateway.Response, error) {
	if len(*script) == 0 {
		return nil, &gateway.TransportError{Method: "?", Err: fmt.Errorf("no scripted reply"), Sent: false}
	}
	r := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return r.Response, r.Err
}
