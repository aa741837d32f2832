package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/config"
	"collabhub/internal/db"
	"collabhub/internal/domain"
	"collabhub/internal/engine"
	"collabhub/internal/events"
	"collabhub/internal/migrate"
	"collabhub/internal/repo"
)

const testPassword = "Secret1!"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)
	eng := engine.New(conn, config.Default(), nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) org(t *testing.T, name string, cloud bool) domain.Organization {
	t.Helper()
	o, err := env.Engine.CreateOrg(env.Ctx, name, cloud, nil)
	require.NoError(t, err)
	return o
}

func (env testEnv) user(t *testing.T, name string, orgIDs ...int64) domain.User {
	t.Helper()
	u, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterInput{
		Username: name,
		Email:    name + "@example.org",
		Password: testPassword,
		OrgIDs:   orgIDs,
	})
	require.NoError(t, err)
	return u
}

func projectInput(tasks ...engine.TaskInput) engine.ProjectInput {
	if len(tasks) == 0 {
		tasks = []engine.TaskInput{taskInput("Deliver food boxes", false)}
	}
	return engine.ProjectInput{
		Name:        "Winter relief",
		Description: "Food and blankets for the winter season",
		StartDate:   "2024-01-10",
		EndDate:     "2024-03-31",
		Tasks:       tasks,
	}
}

func taskInput(title string, self bool) engine.TaskInput {
	return engine.TaskInput{
		Title:            title,
		Necessity:        "logistics",
		Quantity:         "20 boxes",
		StartDate:        "2024-01-15",
		EndDate:          "2024-02-15",
		ResolvesByItself: self,
	}
}

// scenario is the common fixture: A owns a project with one open task,
// B, C and D are would-be collaborators.
type scenario struct {
	env              testEnv
	orgA, orgB, orgC domain.Organization
	orgD             domain.Organization
	alice, bob       domain.User
	carol, dave      domain.User
	project          domain.Project
	task             domain.Task
}

func newScenario(t *testing.T) scenario {
	t.Helper()
	env := newTestEnv(t)
	s := scenario{env: env}
	s.orgA = env.org(t, "Org A", true)
	s.orgB = env.org(t, "Org B", true)
	s.orgC = env.org(t, "Org C", true)
	s.orgD = env.org(t, "Org D", true)
	s.alice = env.user(t, "alice", s.orgA.ID)
	s.bob = env.user(t, "bob", s.orgB.ID)
	s.carol = env.user(t, "carol", s.orgC.ID)
	s.dave = env.user(t, "dave", s.orgD.ID)
	p, err := env.Engine.CreateProject(env.Ctx, projectInput(), s.alice)
	require.NoError(t, err)
	require.Len(t, p.Tasks, 1)
	s.project = p
	s.task = p.Tasks[0]
	return s
}

func (s scenario) commit(org domain.Organization, actor domain.User) (domain.Commitment, error) {
	return s.env.Engine.Commit(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: s.task.ID, OngID: org.ID}, actor)
}

func (s scenario) selectOrg(org domain.Organization, actor domain.User) (domain.Commitment, error) {
	return s.env.Engine.Select(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: s.task.ID, OngID: org.ID}, actor)
}

func TestCommitSelectScenario(t *testing.T) {
	s := newScenario(t)

	cb, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	assert.Equal(t, domain.CommitmentInterested, cb.Status)
	cc, err := s.commit(s.orgC, s.carol)
	require.NoError(t, err)

	list, err := s.env.Engine.ListCommitmentsByTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, domain.CommitmentInterested, c.Status)
	}

	selected, err := s.selectOrg(s.orgB, s.alice)
	require.NoError(t, err)
	assert.Equal(t, cb.ID, selected.ID)
	assert.Equal(t, domain.CommitmentSelected, selected.Status)
	require.NotNil(t, selected.SelectedAt)

	list, err = s.env.Engine.ListCommitmentsByTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)
	statuses := map[int64]string{}
	for _, c := range list {
		statuses[c.ID] = c.Status
	}
	assert.Equal(t, domain.CommitmentSelected, statuses[cb.ID])
	assert.Equal(t, domain.CommitmentRejected, statuses[cc.ID])

	task, err := s.env.Engine.Repo.GetTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResolved, task.Status)

	_, err = s.commit(s.orgD, s.dave)
	var conflict engine.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSecondSelectLeavesStateUnchanged(t *testing.T) {
	s := newScenario(t)
	_, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	_, err = s.commit(s.orgC, s.carol)
	require.NoError(t, err)
	_, err = s.selectOrg(s.orgB, s.alice)
	require.NoError(t, err)
	before, err := s.env.Engine.ListCommitmentsByTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)

	_, err = s.selectOrg(s.orgC, s.alice)
	var resolved engine.AlreadyResolvedError
	require.ErrorAs(t, err, &resolved)
	assert.Equal(t, s.task.ID, resolved.TaskID)

	after, err := s.env.Engine.ListCommitmentsByTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConcurrentSelectsSerialize(t *testing.T) {
	s := newScenario(t)
	_, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	_, err = s.commit(s.orgC, s.carol)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, org := range []domain.Organization{s.orgB, s.orgC} {
		wg.Add(1)
		go func(i int, org domain.Organization) {
			defer wg.Done()
			_, errs[i] = s.selectOrg(org, s.alice)
		}(i, org)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		var resolved engine.AlreadyResolvedError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &resolved):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	list, err := s.env.Engine.ListCommitmentsByTask(s.env.Ctx, s.task.ID)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, c := range list {
		counts[c.Status]++
	}
	assert.Equal(t, map[string]int{domain.CommitmentSelected: 1, domain.CommitmentRejected: 1}, counts)
}

func TestSelectRules(t *testing.T) {
	s := newScenario(t)
	_, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)

	_, err = s.selectOrg(s.orgB, s.carol)
	var denied engine.NotAuthorizedError
	assert.ErrorAs(t, err, &denied)

	_, err = s.selectOrg(s.orgC, s.alice)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = s.env.Engine.Select(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: 9999, OngID: s.orgB.ID}, s.alice)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCommitRules(t *testing.T) {
	s := newScenario(t)

	_, err := s.commit(s.orgB, s.carol)
	var denied engine.NotAuthorizedError
	assert.ErrorAs(t, err, &denied, "carol is not in org B")

	_, err = s.commit(s.orgA, s.alice)
	var conflict engine.ConflictError
	assert.ErrorAs(t, err, &conflict, "owner cannot commit")

	_, err = s.env.Engine.Commit(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID + 1, TaskID: s.task.ID, OngID: s.orgB.ID}, s.bob)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	_, err = s.commit(s.orgB, s.bob)
	var dup engine.DuplicateError
	assert.ErrorAs(t, err, &dup)
}

func TestSelfResolvingTaskRejectsCommitments(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	b := env.org(t, "Org B", true)
	alice := env.user(t, "alice", a.ID)
	bob := env.user(t, "bob", b.ID)
	p, err := env.Engine.CreateProject(env.Ctx, projectInput(taskInput("Cook the meals", true), taskInput("Drive the truck", false)), alice)
	require.NoError(t, err)

	_, err = env.Engine.Commit(env.Ctx, engine.CommitmentInput{ProjectID: p.ID, TaskID: p.Tasks[0].ID, OngID: b.ID}, bob)
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict)
	list, err := env.Engine.ListCommitmentsByTask(env.Ctx, p.Tasks[0].ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	candidates, err := env.Engine.CollaborationCandidates(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Len(t, candidates[0].Tasks, 1)
	assert.Equal(t, p.Tasks[1].ID, candidates[0].Tasks[0].ID)

	own, err := env.Engine.CollaborationCandidates(env.Ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, own)
}

func TestLocalOnlyOwnerForcesSelfResolve(t *testing.T) {
	env := newTestEnv(t)
	local := env.org(t, "Local only", false)
	u := env.user(t, "lucy", local.ID)
	p, err := env.Engine.CreateProject(env.Ctx, projectInput(taskInput("Paint the walls", false)), u)
	require.NoError(t, err)
	for _, task := range p.Tasks {
		assert.True(t, task.ResolvesByItself)
	}

	env.Engine.Config.Policies.ForceSelfResolveForLocalOnly = false
	in := projectInput(taskInput("Paint the walls", false))
	in.Name = "Summer relief"
	p, err = env.Engine.CreateProject(env.Ctx, in, u)
	require.NoError(t, err)
	assert.False(t, p.Tasks[0].ResolvesByItself)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	alice := env.user(t, "alice", a.ID)
	loner := env.user(t, "loner")

	cases := map[string]struct {
		mutate func(*engine.ProjectInput)
		field  string
	}{
		"project end before start": {func(p *engine.ProjectInput) { p.EndDate = "2024-01-01" }, "end_date"},
		"task end before start":    {func(p *engine.ProjectInput) { p.Tasks[0].EndDate = "2024-01-01" }, "tasks[0].end_date"},
		"short name":               {func(p *engine.ProjectInput) { p.Name = " ab " }, "name"},
		"short description":        {func(p *engine.ProjectInput) { p.Description = "too short" }, "description"},
		"short task title":         {func(p *engine.ProjectInput) { p.Tasks[0].Title = "Cook" }, "tasks[0].title"},
		"bad date":                 {func(p *engine.ProjectInput) { p.StartDate = "10/01/2024" }, "start_date"},
		"no tasks":                 {func(p *engine.ProjectInput) { p.Tasks = nil }, "tasks"},
		"accented short name":      {func(p *engine.ProjectInput) { p.Name = "Ñá" }, "name"},
		"accented short title":     {func(p *engine.ProjectInput) { p.Tasks[0].Title = "Ñoño" }, "tasks[0].title"},
		"accented short desc":      {func(p *engine.ProjectInput) { p.Description = "ñññññññññññññ" }, "description"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := projectInput()
			tc.mutate(&in)
			_, err := env.Engine.CreateProject(env.Ctx, in, alice)
			var verr engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}

	_, err := env.Engine.CreateProject(env.Ctx, projectInput(), loner)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "owner_id")

	projects, err := env.Engine.Repo.ListProjects(env.Ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	in := projectInput(taskInput("Ñandú", false))
	in.Name = "Año"
	p, err := env.Engine.CreateProject(env.Ctx, in, alice)
	require.NoError(t, err, "minimums count characters, not bytes")
	assert.Equal(t, "Año", p.Name)
}

func TestDuplicateProjectName(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	alice := env.user(t, "alice", a.ID)
	_, err := env.Engine.CreateProject(env.Ctx, projectInput(), alice)
	require.NoError(t, err)
	_, err = env.Engine.CreateProject(env.Ctx, projectInput(), alice)
	var dup engine.DuplicateError
	require.ErrorAs(t, err, &dup)

	exists, err := env.Engine.Repo.ProjectNameExists(env.Ctx, a.ID, "Winter relief")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProjectStatusTransitions(t *testing.T) {
	s := newScenario(t)
	eng := s.env.Engine

	_, err := eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.bob)
	var denied engine.NotAuthorizedError
	require.ErrorAs(t, err, &denied)

	_, err = eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectFinished, s.alice)
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict, "cannot skip execution")

	p, err := eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectExecution, p.Status)
	assert.Nil(t, p.FinishedAt)

	_, err = eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectActive, s.alice)
	require.ErrorAs(t, err, &conflict, "no going back")

	p, err = eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectFinished, s.alice)
	require.NoError(t, err)
	require.NotNil(t, p.FinishedAt)
	assert.Equal(t, "2024-01-01T00:00:00Z", *p.FinishedAt)

	_, err = s.commit(s.orgB, s.bob)
	require.ErrorAs(t, err, &conflict, "finished projects take no commitments")
}

func TestDeleteProject(t *testing.T) {
	s := newScenario(t)
	_, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	err = s.env.Engine.DeleteProject(s.env.Ctx, s.project.ID, s.alice)
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict)

	in := projectInput()
	in.Name = "Spring cleanup"
	p, err := s.env.Engine.CreateProject(s.env.Ctx, in, s.alice)
	require.NoError(t, err)
	err = s.env.Engine.DeleteProject(s.env.Ctx, p.ID, s.bob)
	var denied engine.NotAuthorizedError
	require.ErrorAs(t, err, &denied)
	require.NoError(t, s.env.Engine.DeleteProject(s.env.Ctx, p.ID, s.alice))
	_, err = s.env.Engine.Repo.GetProject(s.env.Ctx, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteProjectKeepsObservations(t *testing.T) {
	s := newScenario(t)
	eng := s.env.Engine
	in := projectInput()
	in.Name = "Spring cleanup"
	p, err := eng.CreateProject(s.env.Ctx, in, s.alice)
	require.NoError(t, err)
	_, err = eng.AdvanceProjectStatus(s.env.Ctx, p.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)
	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "Volunteers need gloves", ProjectID: p.ID}, s.bob)
	require.NoError(t, err)

	var conflict engine.ConflictError
	require.ErrorAs(t, eng.DeleteProject(s.env.Ctx, p.ID, s.alice), &conflict)

	_, err = eng.AdvanceProjectStatus(s.env.Ctx, p.ID, domain.ProjectFinished, s.alice)
	require.NoError(t, err)
	require.ErrorAs(t, eng.DeleteProject(s.env.Ctx, p.ID, s.alice), &conflict)

	authored, err := eng.ObservationsByAuthor(s.env.Ctx, s.bob)
	require.NoError(t, err)
	assert.Len(t, authored, 1)
	_, err = eng.Repo.GetProject(s.env.Ctx, p.ID)
	assert.NoError(t, err)
}

func TestObservationForeignKeyRestrictsProjectDelete(t *testing.T) {
	s := newScenario(t)
	eng := s.env.Engine
	_, err := eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)
	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "Volunteers need gloves", ProjectID: s.project.ID}, s.bob)
	require.NoError(t, err)

	_, err = eng.DB.Exec(`DELETE FROM projects WHERE id=?`, s.project.ID)
	assert.Error(t, err)
}

func TestObservations(t *testing.T) {
	s := newScenario(t)
	eng := s.env.Engine

	_, err := eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "The trucks arrived late", ProjectID: s.project.ID}, s.bob)
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict, "project still active")

	_, err = eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)

	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "   too short   ", ProjectID: s.project.ID}, s.bob)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "content")

	for _, content := range []string{"ñññññ", " ñandú ñu ", "ééééééééé"} {
		_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: content, ProjectID: s.project.ID}, s.bob)
		require.ErrorAs(t, err, &verr, content)
	}
	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "We are reviewing our own work", ProjectID: s.project.ID}, s.alice)
	var denied engine.NotAuthorizedError
	require.ErrorAs(t, err, &denied)

	o, err := eng.SendObservation(s.env.Ctx, engine.ObservationInput{
		Content:     "  The trucks arrived late  ",
		ProjectName: s.project.Name,
		OngID:       s.orgA.ID,
	}, s.bob)
	require.NoError(t, err)
	assert.Equal(t, "The trucks arrived late", o.Content)
	assert.Equal(t, domain.ObservationPending, o.Status)
	assert.Equal(t, s.orgA.ID, o.OngID)
	assert.Equal(t, "bob", o.Username)
	assert.Equal(t, s.project.Name, o.ProjectName)

	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "Missing project entirely", ProjectName: "Nope", OngID: s.orgA.ID}, s.bob)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = eng.AcceptObservation(s.env.Ctx, o.ID, s.bob)
	require.ErrorAs(t, err, &denied)

	accepted, err := eng.AcceptObservation(s.env.Ctx, o.ID, s.alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ObservationAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	_, err = eng.AcceptObservation(s.env.Ctx, o.ID, s.alice)
	require.ErrorAs(t, err, &conflict)

	owned, err := eng.ObservationsForOwner(s.env.Ctx, s.alice)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	authored, err := eng.ObservationsByAuthor(s.env.Ctx, s.bob)
	require.NoError(t, err)
	require.Len(t, authored, 1)
	none, err := eng.ObservationsForOwner(s.env.Ctx, s.carol)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	u := env.user(t, "alice", a.ID)
	require.Len(t, u.Orgs, 1)
	assert.True(t, u.MemberOf(a.ID))

	got, err := env.Engine.Authenticate(env.Ctx, "alice", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.Engine.Authenticate(env.Ctx, "alice", "wrong")
	var denied engine.NotAuthorizedError
	assert.ErrorAs(t, err, &denied)

	_, err = env.Engine.RegisterUser(env.Ctx, engine.RegisterInput{Username: "alice", Email: "other@example.org", Password: testPassword})
	var dup engine.DuplicateError
	assert.ErrorAs(t, err, &dup)

	_, err = env.Engine.RegisterUser(env.Ctx, engine.RegisterInput{Username: "bad name", Email: "nope", Password: "password"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Error(), "validation failed: ")

	_, err = env.Engine.CreateOrg(env.Ctx, "Org X", true, &u)
	assert.ErrorAs(t, err, &denied, "only managers create organizations")
}

func TestEventsAppendedOnStateChanges(t *testing.T) {
	s := newScenario(t)
	_, err := s.commit(s.orgB, s.bob)
	require.NoError(t, err)
	_, err = s.selectOrg(s.orgB, s.alice)
	require.NoError(t, err)

	evs, err := s.env.Engine.Events.List(s.env.Ctx, events.Filters{ProjectID: s.project.ID})
	require.NoError(t, err)
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{events.ProjectCreated, events.CommitmentCreated, events.CommitmentSelected}, types)
	assert.Equal(t, "alice", evs[2].ActorID)
	assert.Equal(t, "2024-01-01T00:00:00Z", evs[0].TS)
}

func TestMembership(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	b := env.org(t, "Org B", false)
	u := env.user(t, "alice", a.ID)

	require.NoError(t, env.Engine.AddMember(env.Ctx, u.ID, b.ID, nil))
	err := env.Engine.AddMember(env.Ctx, u.ID, b.ID, nil)
	var dup engine.DuplicateError
	assert.ErrorAs(t, err, &dup)

	require.NoError(t, env.Engine.RemoveMember(env.Ctx, u.ID, a.ID, nil))
	got, err := env.Engine.Repo.GetUser(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.MemberOf(a.ID))
	assert.True(t, got.MemberOf(b.ID))

	err = env.Engine.RemoveMember(env.Ctx, u.ID, a.ID, nil)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	found, err := env.Engine.Repo.GetOrgByName(env.Ctx, "Org B")
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)

	evs, err := env.Engine.Events.List(env.Ctx, events.Filters{})
	require.NoError(t, err)
	assert.Equal(t, events.MemberRemoved, evs[len(evs)-1].Type)
}

func TestDirectoryRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	b := env.org(t, "Org B", true)
	alice := env.user(t, "alice", a.ID)
	bob := env.user(t, "bob", b.ID)
	maria, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterInput{
		Username: "maria", Email: "maria@example.org", Password: testPassword, IsManager: true,
	})
	require.NoError(t, err)

	var denied engine.NotAuthorizedError
	require.ErrorAs(t, env.Engine.AddMember(env.Ctx, bob.ID, a.ID, &alice), &denied)
	_, err = env.Engine.ListUsers(env.Ctx, &alice)
	require.ErrorAs(t, err, &denied)
	require.ErrorAs(t, env.Engine.DeleteUser(env.Ctx, bob.ID, &alice), &denied)

	require.NoError(t, env.Engine.AddMember(env.Ctx, bob.ID, a.ID, &maria))
	users, err := env.Engine.ListUsers(env.Ctx, &maria)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "bob", users[1].Username)
	assert.Len(t, users[1].Orgs, 2)

	emails, err := env.Engine.MemberEmails(env.Ctx, a.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.org", "bob@example.org"}, emails)
	emails, err = env.Engine.MemberEmails(env.Ctx, b.ID, maria)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.org"}, emails)
	_, err = env.Engine.MemberEmails(env.Ctx, b.ID, alice)
	require.ErrorAs(t, err, &denied)
	_, err = env.Engine.MemberEmails(env.Ctx, 999, maria)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, env.Engine.RemoveMember(env.Ctx, bob.ID, a.ID, &maria))
	require.NoError(t, env.Engine.DeleteUser(env.Ctx, bob.ID, &maria))
	_, err = env.Engine.Repo.GetUser(env.Ctx, bob.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.DeleteUser(env.Ctx, bob.ID, &maria), repo.ErrNotFound)
}

func TestDeleteUserKeepsObservationAuthors(t *testing.T) {
	s := newScenario(t)
	eng := s.env.Engine
	_, err := eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)
	_, err = eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "Volunteers need gloves", ProjectID: s.project.ID}, s.bob)
	require.NoError(t, err)

	var conflict engine.ConflictError
	require.ErrorAs(t, eng.DeleteUser(s.env.Ctx, s.bob.ID, nil), &conflict)
	_, err = eng.Repo.GetUser(s.env.Ctx, s.bob.ID)
	assert.NoError(t, err)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []engine.ProcessEvent
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev engine.ProcessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestProcessNotifiedAfterCommit(t *testing.T) {
	s := newScenario(t)
	rec := &recordingNotifier{}
	eng := s.env.Engine
	eng.Process = rec

	_, err := eng.Commit(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: s.task.ID, OngID: s.orgB.ID}, s.bob)
	require.NoError(t, err)
	_, err = eng.Select(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: s.task.ID, OngID: s.orgB.ID}, s.alice)
	require.NoError(t, err)
	_, err = eng.Select(s.env.Ctx, engine.CommitmentInput{ProjectID: s.project.ID, TaskID: s.task.ID, OngID: s.orgB.ID}, s.alice)
	require.Error(t, err)
	_, err = eng.AdvanceProjectStatus(s.env.Ctx, s.project.ID, domain.ProjectExecution, s.alice)
	require.NoError(t, err)
	o, err := eng.SendObservation(s.env.Ctx, engine.ObservationInput{Content: "Volunteers need gloves", ProjectID: s.project.ID}, s.bob)
	require.NoError(t, err)
	_, err = eng.AcceptObservation(s.env.Ctx, o.ID, s.alice)
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.CommitmentSelected, events.ProjectAdvanced, events.ObservationSent, events.ObservationAccepted,
	}, rec.types())
	assert.Equal(t, "2024-01-01T00:00:00Z", rec.events[0].TS)
	assert.Equal(t, s.project.ID, rec.events[2].ProjectID)
	assert.Equal(t, "Volunteers need gloves", rec.events[2].Payload["content"])
}

func TestProcessFailureKeepsChange(t *testing.T) {
	env := newTestEnv(t)
	a := env.org(t, "Org A", true)
	alice := env.user(t, "alice", a.ID)
	rec := &recordingNotifier{err: errors.New("bpm unavailable")}
	eng := env.Engine
	eng.Process = rec

	p, err := eng.CreateProject(env.Ctx, projectInput(), alice)
	require.NoError(t, err)
	assert.Equal(t, []string{events.ProjectCreated}, rec.types())
	_, err = eng.Repo.GetProject(env.Ctx, p.ID)
	assert.NoError(t, err)
}
