package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/testutil"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func TestResolvePrecedence(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(zap.NewNop())

	t.Run("explicit active definition wins", func(t *testing.T) {
		mem := testutil.NewMemStore()
		mem.Definitions[7] = &domain.SLADefinition{ID: 7, IsActive: true}
		mem.Definitions[1] = &domain.SLADefinition{ID: 1, IsActive: true}

		res, err := resolver.Resolve(ctx, mem.Store(), ResolveInput{ExplicitSLAID: int64Ptr(7)})
		require.NoError(t, err)
		require.NotNil(t, res.SLAID)
		assert.Equal(t, int64(7), *res.SLAID)
		assert.Equal(t, domain.SLASourceTicket, res.Source)
	})

	t.Run("inactive explicit falls to company", func(t *testing.T) {
		mem := testutil.NewMemStore()
		mem.Definitions[7] = &domain.SLADefinition{ID: 7, IsActive: false}
		mem.Definitions[3] = &domain.SLADefinition{ID: 3, IsActive: true}
		mem.CompanySLAs["acme"] = int64Ptr(3)

		res, err := resolver.Resolve(ctx, mem.Store(), ResolveInput{
			ExplicitSLAID: int64Ptr(7),
			CompanyID:     strPtr("acme"),
		})
		require.NoError(t, err)
		require.NotNil(t, res.SLAID)
		assert.Equal(t, int64(3), *res.SLAID)
		assert.Equal(t, domain.SLASourceCustomer, res.Source)
	})

	t.Run("company without mapping falls to asset", func(t *testing.T) {
		mem := testutil.NewMemStore()
		mem.Definitions[5] = &domain.SLADefinition{ID: 5, IsActive: true}
		mem.CompanySLAs["acme"] = nil
		mem.AssetSLAs[42] = int64Ptr(5)

		res, err := resolver.Resolve(ctx, mem.Store(), ResolveInput{
			CompanyID: strPtr("acme"),
			AssetID:   int64Ptr(42),
		})
		require.NoError(t, err)
		require.NotNil(t, res.SLAID)
		assert.Equal(t, int64(5), *res.SLAID)
		assert.Equal(t, domain.SLASourceCMDB, res.Source)
	})

	t.Run("default picks lowest active id", func(t *testing.T) {
		mem := testutil.NewMemStore()
		mem.Definitions[2] = &domain.SLADefinition{ID: 2, IsActive: false}
		mem.Definitions[4] = &domain.SLADefinition{ID: 4, IsActive: true}
		mem.Definitions[9] = &domain.SLADefinition{ID: 9, IsActive: true}

		res, err := resolver.Resolve(ctx, mem.Store(), ResolveInput{})
		require.NoError(t, err)
		require.NotNil(t, res.SLAID)
		assert.Equal(t, int64(4), *res.SLAID)
		assert.Equal(t, domain.SLASourceDefault, res.Source)
	})

	t.Run("no definitions means no sla, not an error", func(t *testing.T) {
		mem := testutil.NewMemStore()

		res, err := resolver.Resolve(ctx, mem.Store(), ResolveInput{})
		require.NoError(t, err)
		assert.Nil(t, res.SLAID)
		assert.Equal(t, domain.SLASourceError, res.Source)
	})
}

func TestAssignTicketSLA(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(zap.NewNop())

	mem := testutil.NewMemStore()
	mem.Definitions[1] = &domain.SLADefinition{ID: 1, IsActive: true}
	ticket := mem.AddTicket(&domain.Ticket{TenantID: "t1", Status: domain.TicketStatusOpen})

	res, err := resolver.AssignTicketSLA(ctx, mem.Store(), ticket)
	require.NoError(t, err)
	require.NotNil(t, res.SLAID)
	assert.Equal(t, domain.SLASourceDefault, res.Source)

	stored := mem.Tickets[ticket.ID]
	require.NotNil(t, stored.SLADefinitionID)
	assert.Equal(t, int64(1), *stored.SLADefinitionID)
	assert.Equal(t, domain.SLASourceDefault, stored.SLASource)
	assert.NotNil(t, stored.SLAAppliedAt)

	require.Len(t, mem.Activities, 1)
	assert.Equal(t, "sla_resolved", mem.Activities[0].Kind)
}
