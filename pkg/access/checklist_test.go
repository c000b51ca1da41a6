package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
)

func TestChecklistProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cl, err := f.engine.Checklist(ctx, ticket("john.smith"))
	require.NoError(t, err)
	assert.True(t, cl.QualifiedFaculty)
	assert.False(t, cl.SignedAgreement)
	assert.False(t, cl.CanSponsor)
	assert.False(t, cl.CanQuery)
	assert.Nil(t, cl.TrainingExpires)

	f.sign(t, "john.smith")
	cl, err = f.engine.Checklist(ctx, ticket("john.smith"))
	require.NoError(t, err)
	assert.True(t, cl.CanSponsor)
	assert.False(t, cl.CanQuery)

	f.train("john.smith")
	cl, err = f.engine.Checklist(ctx, ticket("john.smith"))
	require.NoError(t, err)
	assert.True(t, cl.TrainingCurrent)
	require.NotNil(t, cl.TrainingExpires)
	assert.True(t, cl.CanQuery)
}

func TestChecklistSponsoredStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approveAll(t, "carol.student")

	cl, err := f.engine.Checklist(ctx, ticket("carol.student"))
	require.NoError(t, err)
	assert.False(t, cl.QualifiedFaculty)
	assert.True(t, cl.Sponsored)
	assert.False(t, cl.CanSponsor)
}

func TestChecklistUnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Checklist(context.Background(), ticket("ghost"))
	assert.ErrorIs(t, err, enterprise.ErrNotFound)
}
