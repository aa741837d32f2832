package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/metrics"
)

func TestOnTimeRate(t *testing.T) {
	outcomes := []metrics.Outcome{
		{EndDate: "2024-03-31", FinishedAt: "2024-03-30T10:00:00Z"},
		{EndDate: "2024-03-31", FinishedAt: "2024-03-31T23:59:00Z"},
		{EndDate: "2024-03-31", FinishedAt: "2024-04-02T08:00:00Z"},
	}
	assert.Equal(t, 66.7, metrics.OnTimeRate(outcomes))
	assert.Equal(t, 0.0, metrics.OnTimeRate(nil))
	assert.Equal(t, 0.0, metrics.OnTimeRate([]metrics.Outcome{{EndDate: "2024-03-31"}}))
}

func TestIndependenceRate(t *testing.T) {
	res := metrics.IndependenceRate([]metrics.Outcome{
		{SelectedCount: 0, TaskCount: 2, SelfResolved: 2},
		{SelectedCount: 1, TaskCount: 2, SelfResolved: 1},
		{SelectedCount: 0, TaskCount: 1},
		{SelectedCount: 2, TaskCount: 2},
	})
	assert.Equal(t, metrics.Independence{ProjectsNoCollab: 2, TotalProjects: 4, Percent: 50}, res)

	empty := metrics.IndependenceRate(nil)
	assert.Zero(t, empty.Percent)
	assert.Zero(t, empty.TotalProjects)
}

func TestMergeActivityAndTopN(t *testing.T) {
	self := []metrics.Activity{{Name: "Alpha", Total: 2}, {Name: "Beta", Total: 1}}
	collab := []metrics.Activity{{Name: "Gamma", Total: 3}, {Name: "Beta", Total: 2}, {Name: "Delta", Total: 2}}

	merged := metrics.MergeActivity(self, collab)
	require.Len(t, merged, 4)
	assert.Equal(t, metrics.Activity{Name: "Beta", Total: 3}, merged[1])

	top := metrics.TopN(merged, 3)
	require.Len(t, top, 3)
	// Beta and Gamma tie at 3; Beta appeared first.
	assert.Equal(t, []string{"Beta", "Gamma", "Alpha"}, names(top))

	assert.Len(t, metrics.TopN(merged, 10), 4)
	assert.Empty(t, metrics.TopN(nil, 3))
}

func names(list []metrics.Activity) []string {
	res := make([]string, 0, len(list))
	for _, a := range list {
		res = append(res, a.Name)
	}
	return res
}
