package roster

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

const sample = `
organizations:
  - id: acme
    name: Acme
    base_branch: main
    repository_path: /src/app
roles:
  - id: dev
    name: Developer
    tier: mid
    specialization: implementation
    capabilities: [go, sql]
  - id: qa
    name: Tester
    tier: junior
    specialization: testing
teams:
  - id: backend
    name: Backend
    parent: eng
    manager: alice
  - id: eng
    name: Engineering
    organization: acme
workers:
  - id: alice
    name: alice
    role: dev
    team: backend
  - id: bob
    name: bob
    role: qa
    team: backend
tasks:
  - id: auth
    title: Authentication
    team: eng
    priority: high
  - id: docs
    title: Write docs
    worker: bob
    depends_on: [auth]
`

func decodeSample(t *testing.T) *Roster {
	t.Helper()
	r, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	return r
}

func TestDecode(t *testing.T) {
	r := decodeSample(t)
	require.NoError(t, r.Validate())
	assert.Len(t, r.Organizations, 1)
	assert.Len(t, r.Roles, 2)
	assert.Len(t, r.Teams, 2)
	assert.Len(t, r.Workers, 2)
	assert.Equal(t, []string{"go", "sql"}, r.Roles[0].Capabilities)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("workers:\n  - id: a\n    rol: dev\n"))
	assert.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	r, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, r.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Roster)
		want   string
	}{
		{"duplicate worker", func(r *Roster) { r.Workers = append(r.Workers, r.Workers[0]) }, `worker "alice": duplicate`},
		{"unknown role", func(r *Roster) { r.Workers[0].Role = "ops" }, `unknown role "ops"`},
		{"bad tier", func(r *Roster) { r.Roles[0].Tier = "wizard" }, `unknown tier "wizard"`},
		{"unknown parent", func(r *Roster) { r.Teams[0].Parent = "sales" }, `unknown parent "sales"`},
		{"team cycle", func(r *Roster) { r.Teams[1].Parent = "backend" }, "cycle"},
		{"both assignees", func(r *Roster) { r.Tasks[0].Worker = "alice" }, "assigned to both"},
		{"missing dependency", func(r *Roster) { r.Tasks[1].DependsOn = []string{"nope"} }, `unknown task "nope"`},
		{"missing title", func(r *Roster) { r.Tasks[0].Title = " " }, "missing title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := decodeSample(t)
			tt.mutate(r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()

	res, err := Import(ctx, store, decodeSample(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Created)
	assert.Zero(t, res.Updated)

	backend, err := store.GetTeam(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, "eng", backend.ParentTeamID)
	assert.Equal(t, "alice", backend.ManagerWorkerID)

	alice, err := store.GetWorker(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.LifecyclePermanent, alice.Lifecycle)
	assert.Equal(t, models.WorkerStatusIdle, alice.Status)

	auth, err := store.GetTask(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeAggregate, auth.Type)
	assert.Equal(t, models.TaskStatusReady, auth.Status)
	assert.Equal(t, models.PriorityHigh, auth.Priority)

	docs, err := store.GetTask(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeImplementation, docs.Type)
	assert.Equal(t, models.TaskStatusBlocked, docs.Status)
}

func TestImport_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()

	_, err := Import(ctx, store, decodeSample(t), nil)
	require.NoError(t, err)

	w, err := store.GetWorker(ctx, "alice")
	require.NoError(t, err)
	w.Status = models.WorkerStatusWorking
	require.NoError(t, store.UpdateWorker(ctx, w))

	r := decodeSample(t)
	r.Roles[0].Tier = "senior"
	res, err := Import(ctx, store, r, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 7, res.Updated)
	assert.Equal(t, 2, res.TasksSkipped)

	role, err := store.GetRole(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, models.TierSenior, role.Tier)

	w, err = store.GetWorker(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.WorkerStatusWorking, w.Status, "runtime status survives a re-import")

	team, err := store.GetTeam(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, "alice", team.ManagerWorkerID)
}

func TestImport_RejectsInvalid(t *testing.T) {
	r := decodeSample(t)
	r.Workers[0].Role = "ops"
	store := state.NewMemory()

	_, err := Import(context.Background(), store, r, nil)
	require.Error(t, err)

	roles, err := store.ListRoles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roles, "nothing is written when validation fails")
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	in := decodeSample(t)
	_, err := Import(ctx, store, in, nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateWorker(ctx, &models.Worker{
		ID: "tmp", Name: "alice-sub1", Lifecycle: models.LifecycleEphemeral, RoleID: "dev", TeamID: "backend",
	}))

	out, err := Export(ctx, store)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, out.Encode(&buf))
	back, err := Decode(&buf)
	require.NoError(t, err)

	in.Tasks = nil
	want := &Roster{
		Organizations: in.Organizations,
		Roles:         in.Roles,
		Teams:         []Team{in.Teams[0], in.Teams[1]},
		Workers:       in.Workers,
	}
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
