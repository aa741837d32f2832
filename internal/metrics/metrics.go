// Package metrics computes the read-only dashboard rollups.
package metrics

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"collabhub/internal/repo"
)

// Outcome is what the rollups need to know about one finished project.
type Outcome struct {
	EndDate       string
	FinishedAt    string
	SelectedCount int
	TaskCount     int
	SelfResolved  int
}

// OnTime reports whether the project finished on or before its end date.
// Projects missing either date are never on time.
func (o Outcome) OnTime() bool {
	if len(o.FinishedAt) < 10 || len(o.EndDate) < 10 {
		return false
	}
	return o.FinishedAt[:10] <= o.EndDate[:10]
}

// Independent reports whether the project got through without a selected collaborator.
func (o Outcome) Independent() bool {
	return o.SelectedCount == 0
}

// OnTimeRate is the percentage of outcomes finished on time, rounded to one decimal.
func OnTimeRate(outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	n := 0
	for _, o := range outcomes {
		if o.OnTime() {
			n++
		}
	}
	return percent(n, len(outcomes))
}

type Independence struct {
	ProjectsNoCollab int     `json:"projects_no_collab"`
	TotalProjects    int     `json:"total_projects"`
	Percent          float64 `json:"percent"`
}

func IndependenceRate(outcomes []Outcome) Independence {
	res := Independence{TotalProjects: len(outcomes)}
	for _, o := range outcomes {
		if o.Independent() {
			res.ProjectsNoCollab++
		}
	}
	if res.TotalProjects > 0 {
		res.Percent = percent(res.ProjectsNoCollab, res.TotalProjects)
	}
	return res
}

type Activity struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// MergeActivity sums totals by organization name across lists. The result
// keeps the order in which each name first appears.
func MergeActivity(lists ...[]Activity) []Activity {
	idx := map[string]int{}
	var res []Activity
	for _, list := range lists {
		for _, a := range list {
			key := strings.TrimSpace(a.Name)
			if i, ok := idx[key]; ok {
				res[i].Total += a.Total
				continue
			}
			idx[key] = len(res)
			res = append(res, Activity{Name: key, Total: a.Total})
		}
	}
	return res
}

// TopN returns the n largest totals, descending, ties in input order.
func TopN(entries []Activity, n int) []Activity {
	sorted := make([]Activity, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Total > sorted[j].Total })
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func percent(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*1000) / 10
}

type Dashboard struct {
	SuccessfulOnTimeAvg float64      `json:"successful_on_time_avg"`
	NoCollaboration     Independence `json:"no_collaboration"`
	TopOngs             []Activity   `json:"top_ongs"`
}

// Aggregator loads rollup inputs from the store.
type Aggregator struct {
	Repo   repo.Repo
	TopN   int
	Logger *zap.Logger
}

func (a Aggregator) Dashboard(ctx context.Context) (Dashboard, error) {
	rows, err := a.Repo.FinishedOutcomes(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	outcomes := make([]Outcome, 0, len(rows))
	for _, r := range rows {
		outcomes = append(outcomes, Outcome{
			EndDate:       r.EndDate,
			FinishedAt:    r.FinishedAt,
			SelectedCount: r.SelectedCommit,
			TaskCount:     r.TaskCount,
			SelfResolved:  r.SelfResolved,
		})
	}
	self, err := a.Repo.SelfResolvedByOrg(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	selected, err := a.Repo.SelectedByOrg(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	n := a.TopN
	if n <= 0 {
		n = 3
	}
	d := Dashboard{
		SuccessfulOnTimeAvg: OnTimeRate(outcomes),
		NoCollaboration:     IndependenceRate(outcomes),
		TopOngs:             TopN(MergeActivity(toActivity(self), toActivity(selected)), n),
	}
	if a.Logger != nil {
		a.Logger.Debug("dashboard computed",
			zap.Int("finished_projects", len(outcomes)),
			zap.Float64("on_time", d.SuccessfulOnTimeAvg))
	}
	return d, nil
}

func toActivity(counts []repo.OrgCount) []Activity {
	res := make([]Activity, 0, len(counts))
	for _, c := range counts {
		res = append(res, Activity{Name: c.Name, Total: c.Count})
	}
	return res
}
