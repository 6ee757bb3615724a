package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/rescue/internal/core/domain"
)

func stub(name string, priority int, cats ...domain.ErrorCategory) Strategy {
	return NewStrategy(Descriptor{Name: name, Priority: priority, Categories: cats},
		func(context.Context, domain.ErrorRecord, domain.ErrorContext) (Outcome, error) {
			return Outcome{Success: true}, nil
		})
}

func names(strategies []Strategy) []string {
	out := make([]string, len(strategies))
	for i, s := range strategies {
		out[i] = s.Descriptor().Name
	}
	return out
}

func TestRegistry_ApplicableOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stub("low", 10, domain.CategoryAI)))
	require.NoError(t, r.Register(stub("high", 90, domain.CategoryAI, domain.CategoryTimeout)))
	require.NoError(t, r.Register(stub("mid-a", 50, domain.CategoryAI)))
	require.NoError(t, r.Register(stub("mid-b", 50, domain.CategoryAI)))
	require.NoError(t, r.Register(stub("net", 80, domain.CategoryNetwork)))

	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, names(r.Applicable(domain.CategoryAI)))
	assert.Equal(t, []string{"high"}, names(r.Applicable(domain.CategoryTimeout)))
	assert.Empty(t, r.Applicable(domain.CategoryResource))
}

func TestRegistry_ReplaceByName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stub("a", 10, domain.CategoryAI)))
	require.NoError(t, r.Register(stub("b", 20, domain.CategoryAI)))
	require.NoError(t, r.Register(stub("a", 30, domain.CategoryNetwork)))

	descs := r.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].Name, "replacement keeps the original slot")
	assert.Equal(t, 30, descs[0].Priority)
	assert.Equal(t, []string{"b"}, names(r.Applicable(domain.CategoryAI)))
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	assert.Error(t, NewRegistry().Register(stub("", 1)))
}

func TestNewStrategy_DefaultKind(t *testing.T) {
	assert.Equal(t, KindCustom, stub("x", 1).Descriptor().Kind)
}
