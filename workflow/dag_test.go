package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/core"
)

func TestValidateAcceptsDiamond(t *testing.T) {
	specs := []core.TaskSpec{
		{ID: "a", AgentID: "agent"},
		{ID: "b", AgentID: "agent", DependsOn: []string{"a"}},
		{ID: "c", AgentID: "agent", DependsOn: []string{"a"}},
		{ID: "d", AgentID: "agent", DependsOn: []string{"b", "c"}},
	}
	assert.NoError(t, validate(specs))
}

func TestValidateRejectsCycle(t *testing.T) {
	specs := []core.TaskSpec{
		{ID: "a", AgentID: "agent", DependsOn: []string{"b"}},
		{ID: "b", AgentID: "agent", DependsOn: []string{"c"}},
		{ID: "c", AgentID: "agent", DependsOn: []string{"a"}},
	}
	err := validate(specs)
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeCyclicDependency))
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestValidateRejectsSelfDependency(t *testing.T) {
	err := validate([]core.TaskSpec{{ID: "a", AgentID: "agent", DependsOn: []string{"a"}}})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeCyclicDependency))
	assert.Contains(t, err.Error(), "a -> a")
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	specs := []core.TaskSpec{
		{ID: "a", AgentID: "agent"},
		{ID: "a", AgentID: "agent"},
	}
	err := validate(specs)
	assert.True(t, core.IsCode(err, core.CodeAlreadyExists))
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	specs := []core.TaskSpec{
		{ID: "a", AgentID: "agent", DependsOn: []string{"ghost"}},
	}
	err := validate(specs)
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestValidateRejectsEmptyGraph(t *testing.T) {
	assert.Error(t, validate(nil))
}

func TestDependentsInvertsEdges(t *testing.T) {
	specs := []core.TaskSpec{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a", "b"}},
	}
	down := dependents(specs)
	assert.Equal(t, []string{"b", "c"}, down["a"])
	assert.Equal(t, []string{"c"}, down["b"])
	assert.Empty(t, down["c"])
}
