package core

import (
	"context"
	"strconv"
	"time"

	"teatrace/pkg/domain"
)

// Service exposes the ledger's mutating and read call surface: the participant
// registry, the product state machine, the custody history, and the query
// facade. Every mutating call takes the authenticated caller identity; the
// transport layer owns authentication, the service trusts the identity it is
// handed and re-checks the stored role on every call.
type Service struct {
	store    PersistentStore
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	exporter *ProvenanceExporter
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder wires an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer wires an operation tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithProvenanceExporter enables provenance document export.
func WithProvenanceExporter(exporter *ProvenanceExporter) ServiceOption {
	return func(s *Service) {
		s.exporter = exporter
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RegisterParticipantInput carries the fields of a registration call.
type RegisterParticipantInput struct {
	Identity string      `json:"identity"`
	Role     domain.Role `json:"role"`
	Name     string      `json:"name"`
	Location string      `json:"location"`
}

// CreateProductInput carries the fields of a product creation call.
type CreateProductInput struct {
	BatchID  string `json:"batch_id"`
	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Grade    string `json:"grade"`
	Quantity int64  `json:"quantity"`
	Notes    string `json:"notes"`
}

// TraceReport assembles a product with its full custody trail and the stages
// still ahead of it, the shape consumers render as a journey.
type TraceReport struct {
	Product Product        `json:"product"`
	History []HistoryEntry `json:"history"`
	Pending []Stage        `json:"pending"`
}

// RegisterParticipant creates or overwrites a participant record. Only an
// active Authority may call it. Re-registering is how a participant is
// reassigned, removed (RoleNone), or reactivated; a RoleNone registration is
// stored inactive, every other role becomes active immediately.
func (s *Service) RegisterParticipant(ctx context.Context, caller string, input RegisterParticipantInput) (Participant, Result, error) {
	var registered Participant
	res, err := s.instrument(ctx, "register_participant", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireRole(tx.Snapshot(), caller, RoleAuthority); err != nil {
				return err
			}
			if !input.Role.Valid() {
				return domain.ValidationError{Field: "role", Message: "unknown role value " + strconv.Itoa(int(input.Role))}
			}
			var err error
			registered, err = tx.PutParticipant(Participant{
				Identity: input.Identity,
				Role:     input.Role,
				Name:     input.Name,
				Location: input.Location,
				Active:   input.Role != RoleNone,
			})
			return err
		})
	})
	return registered, res, err
}

// BootstrapAuthority registers the first Authority. It succeeds only while no
// active Authority exists; afterwards all registration goes through
// RegisterParticipant.
func (s *Service) BootstrapAuthority(ctx context.Context, identity, name, location string) (Participant, Result, error) {
	var registered Participant
	res, err := s.instrument(ctx, "bootstrap_authority", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, p := range tx.Snapshot().ListParticipants() {
				if p.Role == RoleAuthority && p.Active {
					return domain.UnauthorizedError{Identity: identity, Required: RoleAuthority}
				}
			}
			var err error
			registered, err = tx.PutParticipant(Participant{
				Identity: identity,
				Role:     RoleAuthority,
				Name:     name,
				Location: location,
				Active:   true,
			})
			return err
		})
	})
	return registered, res, err
}

// CreateProduct records a new tea batch entering custody. The caller must be
// an active Farmer. On success the product starts at Cultivation with the
// caller as owner and history entry zero appended, all in one atomic commit.
func (s *Service) CreateProduct(ctx context.Context, caller string, input CreateProductInput) (Product, Result, error) {
	var created Product
	res, err := s.instrument(ctx, "create_product", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireRole(tx.Snapshot(), caller, RoleFarmer); err != nil {
				return err
			}
			if input.Quantity <= 0 {
				return domain.InvalidQuantityError{Quantity: input.Quantity}
			}
			var err error
			created, err = tx.CreateProduct(Product{
				BatchID:      input.BatchID,
				Name:         input.Name,
				Origin:       input.Origin,
				Grade:        input.Grade,
				Quantity:     input.Quantity,
				CurrentStage: StageCultivation,
				CurrentOwner: caller,
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendHistory(HistoryEntry{
				ProductID: created.ID,
				Stage:     StageCultivation,
				Handler:   caller,
				Notes:     input.Notes,
			})
			return err
		})
	})
	return created, res, err
}

// UpdateStage advances a product exactly one stage and hands custody to the
// caller. Checks run in a fixed order: existence, then the single-step
// transition, then the caller's role for the product's current stage. The
// stage move, the owner handoff, and the history append commit as one unit;
// there is no separate ownership-transfer call.
func (s *Service) UpdateStage(ctx context.Context, caller string, productID uint64, target Stage, notes string) (Product, Result, error) {
	var updated Product
	res, err := s.instrument(ctx, "update_stage", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snapshot := tx.Snapshot()
			product, ok := snapshot.FindProduct(productID)
			if !ok {
				return domain.NotFoundError{Entity: EntityProduct, Key: strconv.FormatUint(productID, 10)}
			}
			next, hasNext := product.CurrentStage.Next()
			if !hasNext || target != next {
				return domain.InvalidTransitionError{From: product.CurrentStage, To: target}
			}
			required, _ := domain.RoleForTransition(product.CurrentStage)
			if err := requireRole(snapshot, caller, required); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateProduct(productID, func(p *Product) error {
				p.CurrentStage = target
				p.CurrentOwner = caller
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendHistory(HistoryEntry{
				ProductID: productID,
				Stage:     target,
				Handler:   caller,
				Notes:     notes,
			})
			return err
		})
	})
	return updated, res, err
}

// requireRole authorizes a caller against the registry: the stored record must
// be active and hold exactly the required role. Unregistered identities read
// as RoleNone and fail like any other mismatch.
func requireRole(snapshot TransactionView, caller string, required Role) error {
	p, _ := snapshot.FindParticipant(caller)
	if !p.Active || p.Role != required {
		return domain.UnauthorizedError{Identity: caller, Required: required}
	}
	return nil
}

// GetParticipant returns the stored record, or a zero-value record with
// RoleNone and inactive for an unknown identity. Never an error: every query
// site treats unregistered as role zero.
func (s *Service) GetParticipant(identity string) Participant {
	p, ok := s.store.GetParticipant(identity)
	if !ok {
		return Participant{Identity: identity, Role: RoleNone}
	}
	return p
}

// ListParticipants returns all registered participants ordered by identity.
func (s *Service) ListParticipants() []Participant {
	return s.store.ListParticipants()
}

// GetProductByID looks a product up by its sequential id.
func (s *Service) GetProductByID(id uint64) (Product, error) {
	p, ok := s.store.GetProduct(id)
	if !ok {
		return Product{}, domain.NotFoundError{Entity: EntityProduct, Key: strconv.FormatUint(id, 10)}
	}
	return p, nil
}

// GetProductByBatch looks a product up by its business batch code.
func (s *Service) GetProductByBatch(batchID string) (Product, error) {
	p, ok := s.store.GetProductByBatch(batchID)
	if !ok {
		return Product{}, domain.NotFoundError{Entity: EntityProduct, Key: batchID}
	}
	return p, nil
}

// ListProducts returns all products ordered by id.
func (s *Service) ListProducts() []Product {
	return s.store.ListProducts()
}

// ListProductsByOwner returns the ids of every product the identity has held,
// past and present, in custody order. Only valid ids appear; the zero sentinel
// is never emitted.
func (s *Service) ListProductsByOwner(identity string) []uint64 {
	return s.store.ProductsByOwner(identity)
}

// GetHistory returns the ordered custody trail for a product, oldest first.
func (s *Service) GetHistory(productID uint64) ([]HistoryEntry, error) {
	if _, ok := s.store.GetProduct(productID); !ok {
		return nil, domain.NotFoundError{Entity: EntityProduct, Key: strconv.FormatUint(productID, 10)}
	}
	return s.store.History(productID), nil
}

// GetCounts aggregates ledger totals: all products, those still moving, and
// those sold.
func (s *Service) GetCounts() Counts {
	return s.store.Counts()
}

// Trace assembles the full journey for a product: the record, its trail, and
// the stages still pending. Record and trail are read from one committed
// snapshot, so a transition landing mid-call can never yield a report whose
// stage and history disagree.
func (s *Service) Trace(ctx context.Context, productID uint64) (TraceReport, error) {
	var report TraceReport
	err := s.store.View(ctx, func(v TransactionView) error {
		product, ok := v.FindProduct(productID)
		if !ok {
			return domain.NotFoundError{Entity: EntityProduct, Key: strconv.FormatUint(productID, 10)}
		}
		report.Product = product
		report.History = v.HistoryFor(productID)
		return nil
	})
	if err != nil {
		return TraceReport{}, err
	}
	for stage := report.Product.CurrentStage + 1; stage <= StageSold; stage++ {
		report.Pending = append(report.Pending, stage)
	}
	return report, nil
}
