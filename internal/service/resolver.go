package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// ResolveInput carries a ticket's candidate SLA sources.
type ResolveInput struct {
	ExplicitSLAID *int64
	CompanyID     *string
	AssetID       *int64
	CategoryID    *string
}

// Resolution is the resolver's outcome: the applicable SLA definition id
// and its provenance. SLAID is nil with Source "error" when no SLA
// definition exists at all; callers treat that as "no SLA applies".
type Resolution struct {
	SLAID  *int64
	Source domain.SLASource
}

// Resolver picks the single applicable SLA definition for a ticket using
// a fixed precedence order. Each tier is independently validated: an
// inactive or missing definition is treated as absent and resolution
// continues to the next tier.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver constructs the resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve walks the precedence order: explicit ticket override, requester
// company, linked asset, category mapping (reserved), tenant default.
func (r *Resolver) Resolve(ctx context.Context, store *repository.Store, in ResolveInput) (Resolution, error) {
	if in.ExplicitSLAID != nil {
		ok, err := r.activeDefinition(ctx, store, *in.ExplicitSLAID)
		if err != nil {
			return Resolution{Source: domain.SLASourceError}, err
		}
		if ok {
			return Resolution{SLAID: in.ExplicitSLAID, Source: domain.SLASourceTicket}, nil
		}
	}

	if in.CompanyID != nil {
		slaID, err := store.SLAs.CompanySLAID(ctx, *in.CompanyID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return Resolution{Source: domain.SLASourceError}, err
		}
		if slaID != nil {
			ok, err := r.activeDefinition(ctx, store, *slaID)
			if err != nil {
				return Resolution{Source: domain.SLASourceError}, err
			}
			if ok {
				return Resolution{SLAID: slaID, Source: domain.SLASourceCustomer}, nil
			}
		}
	}

	if in.AssetID != nil {
		slaID, err := store.SLAs.AssetSLAID(ctx, *in.AssetID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return Resolution{Source: domain.SLASourceError}, err
		}
		if slaID != nil {
			ok, err := r.activeDefinition(ctx, store, *slaID)
			if err != nil {
				return Resolution{Source: domain.SLASourceError}, err
			}
			if ok {
				return Resolution{SLAID: slaID, Source: domain.SLASourceCMDB}, nil
			}
		}
	}

	// Category-based mapping is reserved for future use and currently
	// always falls through.

	def, err := store.SLAs.LowestActiveDefinition(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolution{Source: domain.SLASourceError}, nil
		}
		return Resolution{Source: domain.SLASourceError}, err
	}
	return Resolution{SLAID: &def.ID, Source: domain.SLASourceDefault}, nil
}

// AssignTicketSLA resolves and persists the SLA assignment for a ticket,
// recording a resolution activity entry. A "no SLA applies" outcome never
// fails the ticket operation.
func (r *Resolver) AssignTicketSLA(ctx context.Context, store *repository.Store, ticket *domain.Ticket) (Resolution, error) {
	res, err := r.Resolve(ctx, store, ResolveInput{
		ExplicitSLAID: ticket.SLADefinitionID,
		CompanyID:     ticket.CompanyID,
		AssetID:       ticket.AssetID,
	})
	if err != nil {
		return res, err
	}
	if res.SLAID == nil {
		r.logger.Debug("no sla applies", zap.Int64("ticket_id", ticket.ID))
		return res, nil
	}

	now := time.Now()
	if err := store.Tickets.SetSLAAssignment(ctx, ticket.ID, res.SLAID, res.Source, now); err != nil {
		return res, err
	}
	ticket.SLADefinitionID = res.SLAID
	ticket.SLASource = res.Source
	ticket.SLAAppliedAt = &now

	activity := &domain.Activity{
		ID:       uuid.NewString(),
		TenantID: ticket.TenantID,
		TicketID: &ticket.ID,
		Kind:     "sla_resolved",
		Message:  "SLA assigned",
		Detail: map[string]any{
			"sla_definition_id": *res.SLAID,
			"source":            string(res.Source),
		},
	}
	if err := store.Activities.Create(ctx, activity); err != nil {
		r.logger.Warn("record sla resolution activity", zap.Error(err))
	}
	return res, nil
}

func (r *Resolver) activeDefinition(ctx context.Context, store *repository.Store, id int64) (bool, error) {
	def, err := store.SLAs.GetDefinition(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return def.IsActive, nil
}
