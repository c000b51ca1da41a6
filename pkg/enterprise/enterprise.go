// Package enterprise wraps directory lookups into typed Agent values and
// classifies agents as qualified faculty or not.
package enterprise

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotOwner reports that an agent was not issued by this enterprise.
// Treated as a security violation by callers, never a routine denial.
var ErrNotOwner = errors.New("agent not recognized by this enterprise")

// ExclusionPolicy answers whether a job code disqualifies a faculty
// member. Satisfied by config.QualificationPolicy.
type ExclusionPolicy interface {
	Excluded(jobCode string) bool
}

// Enterprise resolves principal names into Agents and applies the
// qualified-faculty predicate. It holds no per-agent state; every
// resolution goes back to the directory.
type Enterprise struct {
	directory Directory
	policy    ExclusionPolicy
}

// New creates an Enterprise over the given directory and policy
func New(directory Directory, policy ExclusionPolicy) *Enterprise {
	return &Enterprise{directory: directory, policy: policy}
}

// Affiliate resolves a principal name to an Agent. Returns ErrNotFound
// (possibly wrapped) when the directory has no record.
func (e *Enterprise) Affiliate(ctx context.Context, name string) (Agent, error) {
	agent, err := e.directory.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Agent{}, err
	}
	return agent, nil
}

// IsQualifiedFaculty applies the qualification predicate: faculty flag set
// and job code not on the configured exclusion list.
func (e *Enterprise) IsQualifiedFaculty(agent Agent) bool {
	return agent.Faculty && !e.policy.Excluded(agent.JobCode)
}

// Recognize confirms that an agent belongs to this enterprise by
// re-resolving its user id. Agents from another enterprise fail with
// ErrNotOwner; capability checks never rely on runtime type casts.
func (e *Enterprise) Recognize(ctx context.Context, agent Agent) (Agent, error) {
	resolved, err := e.directory.Lookup(ctx, agent.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Agent{}, fmt.Errorf("%w: %s", ErrNotOwner, agent.UserID)
		}
		return Agent{}, err
	}
	if !resolved.Same(agent) {
		return Agent{}, fmt.Errorf("%w: %s", ErrNotOwner, agent.UserID)
	}
	return resolved, nil
}
