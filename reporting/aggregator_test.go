package reporting

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Suite(title string) {
	m.Called(title)
}

func (m *mockReporter) Results(results types.Results) {
	m.Called(results)
}

func (m *mockReporter) Error(suite string, err error) {
	m.Called(suite, err)
}

func (m *mockReporter) Summary(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// orderReporter records events into a shared log.
type orderReporter struct {
	name   string
	events *[]string
	panics bool
}

func (o *orderReporter) record(event string) {
	*o.events = append(*o.events, fmt.Sprintf("%s:%s", o.name, event))
	if o.panics {
		panic("sink broke")
	}
}

func (o *orderReporter) Suite(title string) { o.record("suite " + title) }
func (o *orderReporter) Results(types.Results) { o.record("results") }
func (o *orderReporter) Error(suite string, _ error) { o.record("error " + suite) }
func (o *orderReporter) Summary(context.Context) error {
	o.record("summary")
	return nil
}

func TestAggregatorForwardsToEverySink(t *testing.T) {
	ctx := context.Background()
	results := types.Results{}
	boom := errors.New("boom")

	first := &mockReporter{}
	second := &mockReporter{}
	for _, m := range []*mockReporter{first, second} {
		m.On("Suite", "suite title").Once()
		m.On("Results", results).Once()
		m.On("Error", "suite title", boom).Once()
		m.On("Summary", ctx).Return(nil).Once()
	}

	agg := NewAggregator(first, second)
	agg.Suite("suite title")
	agg.Results(results)
	agg.Error("suite title", boom)
	require.NoError(t, agg.Summary(ctx))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestAggregatorOrder(t *testing.T) {
	var events []string
	agg := NewAggregator(
		&orderReporter{name: "a", events: &events},
		&orderReporter{name: "b", events: &events},
	)
	agg.Suite("s")
	agg.Results(nil)
	require.NoError(t, agg.Summary(context.Background()))

	assert.Equal(t, []string{
		"a:suite s", "b:suite s",
		"a:results", "b:results",
		"a:summary", "b:summary",
	}, events)
}

func TestAggregatorIsolatesSinks(t *testing.T) {
	var events []string
	agg := NewAggregator(
		&orderReporter{name: "broken", events: &events, panics: true},
		&orderReporter{name: "ok", events: &events},
	).WithLogger(log.New())

	agg.Suite("s")
	agg.Error("s", errors.New("x"))
	err := agg.Summary(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broke")
	assert.Equal(t, []string{
		"broken:suite s", "ok:suite s",
		"broken:error s", "ok:error s",
		"broken:summary", "ok:summary",
	}, events)
}

func TestAggregatorJoinsSummaryErrors(t *testing.T) {
	ctx := context.Background()
	first := &mockReporter{}
	first.On("Summary", ctx).Return(errors.New("first failed"))
	second := &mockReporter{}
	second.On("Summary", ctx).Return(errors.New("second failed"))

	err := NewAggregator(first, nil, second).Summary(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "second failed")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestAggregatorDropsNilSinks(t *testing.T) {
	agg := NewAggregator(nil, NewStdTerm(nil, nil), nil)
	assert.Len(t, agg.Sinks(), 1)
}

func TestMarkReported(t *testing.T) {
	assert.Nil(t, MarkReported(nil))
	assert.False(t, IsReported(nil))

	base := errors.New("measurement failed")
	assert.False(t, IsReported(base))

	marked := MarkReported(base)
	assert.True(t, IsReported(marked))
	assert.ErrorIs(t, marked, base)
	assert.Equal(t, base.Error(), marked.Error())
	assert.Same(t, marked, MarkReported(marked))

	wrapped := fmt.Errorf("suite x: %w", marked)
	assert.True(t, IsReported(wrapped))
}
