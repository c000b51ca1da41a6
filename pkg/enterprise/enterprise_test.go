package enterprise

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPolicy map[string]bool

func (p staticPolicy) Excluded(code string) bool { return p[code] }

func testAgents() []Agent {
	return []Agent{
		{UserID: "john.smith", GivenName: "John", Surname: "Smith", Title: "Chair of Neurology", Email: "john.smith@example.edu", Faculty: true, JobCode: "10000"},
		{UserID: "bill.student", GivenName: "Bill", Surname: "Student", Title: "Grad Student", Email: "bill.student@example.edu", Faculty: false},
		{UserID: "todd.ryan", GivenName: "Todd", Surname: "Ryan", Title: "Visiting Professor", Email: "todd.ryan@example.edu", Faculty: true, JobCode: "24600"},
	}
}

func TestAffiliate(t *testing.T) {
	dir := NewMockDirectory(testAgents()...)
	ent := New(dir, staticPolicy{"24600": true})

	agent, err := ent.Affiliate(context.Background(), "john.smith")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", agent.FullName())
	assert.True(t, agent.Faculty)
}

func TestAffiliateNotFound(t *testing.T) {
	ent := New(NewMockDirectory(), staticPolicy{})

	_, err := ent.Affiliate(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsQualifiedFaculty(t *testing.T) {
	ent := New(NewMockDirectory(testAgents()...), staticPolicy{"24600": true})

	tests := []struct {
		name      string
		userID    string
		qualified bool
	}{
		{"faculty with ordinary job code", "john.smith", true},
		{"non-faculty", "bill.student", false},
		{"faculty with excluded job code", "todd.ryan", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, err := ent.Affiliate(context.Background(), tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.qualified, ent.IsQualifiedFaculty(agent))
		})
	}
}

func TestRecognize(t *testing.T) {
	dir := NewMockDirectory(testAgents()...)
	ent := New(dir, staticPolicy{})

	agent, err := ent.Affiliate(context.Background(), "john.smith")
	require.NoError(t, err)

	resolved, err := ent.Recognize(context.Background(), agent)
	require.NoError(t, err)
	assert.True(t, resolved.Same(agent))
}

func TestRecognizeForeignAgent(t *testing.T) {
	ent := New(NewMockDirectory(testAgents()...), staticPolicy{})

	_, err := ent.Recognize(context.Background(), Agent{UserID: "outsider"})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestMockDirectorySearch(t *testing.T) {
	dir := NewMockDirectory(testAgents()...)

	agents, err := dir.Search(context.Background(), SearchFilter{Surname: "smi"})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "john.smith", agents[0].UserID)

	agents, err = dir.Search(context.Background(), SearchFilter{GivenName: "t", Max: 10})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "todd.ryan", agents[0].UserID)
}
