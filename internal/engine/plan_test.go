package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/provider"
	"github.com/lakeforge/lakeforge/internal/schema"
)

func newTestEngine() *Engine {
	return New(schema.DefaultRegistry(), provider.NewRegistry())
}

func bucketResource(name string) *ir.Resource {
	return &ir.Resource{
		Kind:     "aws_s3_bucket",
		Name:     name,
		Provider: "aws",
		Attributes: map[string]any{
			"bucket": "datalake-" + name,
		},
	}
}

func lifecycleResource(name string, days int64) *ir.Resource {
	return &ir.Resource{
		Kind:     "aws_s3_bucket_lifecycle",
		Name:     name,
		Provider: "aws",
		Attributes: map[string]any{
			"bucket":          "datalake-" + name,
			"expiration_days": days,
		},
	}
}

func appliedState(resources ...*ir.Resource) *ir.State {
	st := ir.NewState()
	for _, res := range resources {
		st.Resources = append(st.Resources, &ir.ResourceState{
			Kind:       res.Kind,
			Name:       res.Name,
			Provider:   res.Provider,
			Inputs:     res.Attributes,
			InputsHash: HashAttributes(res.Attributes),
			Outputs:    map[string]any{"id": res.Name},
		})
	}
	return st
}

func TestCreatePlan_AllCreates(t *testing.T) {
	eng := newTestEngine()
	cfg := &ir.Config{Resources: []*ir.Resource{
		bucketResource("bronze"),
		bucketResource("silver"),
		bucketResource("gold"),
	}}

	plan, err := eng.CreatePlan(context.Background(), cfg, ir.NewState())
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Summary.Create)
	assert.Equal(t, 0, plan.Summary.Update)
	assert.Len(t, plan.Changes, 3)
	for _, change := range plan.Changes {
		assert.Equal(t, ir.ActionCreate, change.Action)
	}
}

func TestCreatePlan_SingleAttributeUpdate(t *testing.T) {
	eng := newTestEngine()
	prior := lifecycleResource("bronze", 365)
	st := appliedState(prior)

	cfg := &ir.Config{Resources: []*ir.Resource{
		lifecycleResource("bronze", 180),
	}}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	change := plan.Changes[0]
	assert.Equal(t, ir.ActionUpdate, change.Action)
	require.Len(t, change.Diff, 1)
	require.Contains(t, change.Diff, "expiration_days")
	assert.Equal(t, int64(365), change.Diff["expiration_days"].Before)
	assert.Equal(t, int64(180), change.Diff["expiration_days"].After)
}

func TestCreatePlan_ForcesReplacement(t *testing.T) {
	eng := newTestEngine()
	st := appliedState(bucketResource("bronze"))

	changed := bucketResource("bronze")
	changed.Attributes["bucket"] = "renamed-bronze"
	cfg := &ir.Config{Resources: []*ir.Resource{changed}}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionReplace, plan.Changes[0].Action)
	assert.True(t, plan.Changes[0].Diff["bucket"].ForcesReplacement)
}

func TestCreatePlan_Idempotent(t *testing.T) {
	eng := newTestEngine()
	resources := []*ir.Resource{bucketResource("bronze"), lifecycleResource("bronze", 365)}
	st := appliedState(resources...)
	cfg := &ir.Config{Resources: resources}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	assert.False(t, plan.HasChanges())
	assert.Equal(t, 2, plan.Summary.NoOp)
	assert.Empty(t, plan.Changes)
}

func TestCreatePlan_Deterministic(t *testing.T) {
	eng := newTestEngine()
	cfg := &ir.Config{Resources: []*ir.Resource{
		bucketResource("gold"),
		bucketResource("bronze"),
		bucketResource("silver"),
	}}
	st := ir.NewState()

	first, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)
	second, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, second.Changes, len(first.Changes))
	for i := range first.Changes {
		assert.Equal(t, first.Changes[i].Address, second.Changes[i].Address)
		assert.Equal(t, first.Changes[i].Action, second.Changes[i].Action)
	}
	assert.Equal(t, first.Metadata.ConfigHash, second.Metadata.ConfigHash)
}

func TestCreatePlan_CycleFailsBeforeAnything(t *testing.T) {
	eng := newTestEngine()
	a := bucketResource("a")
	a.DependsOn = []string{"aws_s3_bucket.b"}
	b := bucketResource("b")
	b.DependsOn = []string{"aws_s3_bucket.a"}

	_, err := eng.CreatePlan(context.Background(), &ir.Config{Resources: []*ir.Resource{a, b}}, ir.NewState())

	var ce *diag.CycleError
	require.ErrorAs(t, err, &ce)
}

func TestCreatePlan_SchemaViolation(t *testing.T) {
	eng := newTestEngine()
	res := &ir.Resource{
		Kind:       "aws_s3_bucket_lifecycle",
		Name:       "broken",
		Provider:   "aws",
		Attributes: map[string]any{"bucket": "b"}, // expiration_days missing
	}

	_, err := eng.CreatePlan(context.Background(), &ir.Config{Resources: []*ir.Resource{res}}, ir.NewState())

	var sv *diag.SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "aws_s3_bucket_lifecycle.broken", sv.Address)
}

func TestCreatePlan_OrphanedStateBecomesDelete(t *testing.T) {
	eng := newTestEngine()
	st := appliedState(bucketResource("bronze"), bucketResource("old"))

	cfg := &ir.Config{Resources: []*ir.Resource{bucketResource("bronze")}}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionDelete, plan.Changes[0].Action)
	assert.Equal(t, "aws_s3_bucket.old", plan.Changes[0].Address)
	assert.Equal(t, 1, plan.Summary.Delete)
}

func TestCreatePlan_PendingBlocksNodeAndDependents(t *testing.T) {
	eng := newTestEngine()

	role := &ir.Resource{
		Kind:     "aws_iam_role",
		Name:     "snowflake_access",
		Provider: "aws",
		Attributes: map[string]any{
			"name":               "snowflake-access",
			"assume_role_policy": ir.Pending("snowflake iam_user_arn"),
		},
	}
	policy := &ir.Resource{
		Kind:     "aws_iam_policy",
		Name:     "lake_read",
		Provider: "aws",
		Attributes: map[string]any{
			"name":   "lake-read",
			"policy": "{}",
		},
		DependsOn: []string{"aws_iam_role.snowflake_access"},
	}
	bucket := bucketResource("bronze")

	plan, err := eng.CreatePlan(context.Background(), &ir.Config{
		Resources: []*ir.Resource{bucket, role, policy},
	}, ir.NewState())
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Summary.Blocked)

	byAddr := make(map[string]*ir.ResourceChange)
	for _, c := range plan.Changes {
		byAddr[c.Address] = c
	}
	assert.True(t, byAddr["aws_iam_role.snowflake_access"].Blocked)
	assert.True(t, byAddr["aws_iam_policy.lake_read"].Blocked)
	assert.Contains(t, byAddr["aws_iam_policy.lake_read"].BlockedOn, "aws_iam_role.snowflake_access")
	assert.False(t, byAddr["aws_s3_bucket.bronze"].Blocked)
}

func TestCreateDestroyPlan_ReverseOrder(t *testing.T) {
	eng := newTestEngine()
	st := ir.NewState()
	st.Resources = []*ir.ResourceState{
		{Kind: "aws_s3_bucket", Name: "base", Provider: "aws", Outputs: map[string]any{"id": "base"}},
		{Kind: "aws_s3_bucket_versioning", Name: "v", Provider: "aws",
			Dependencies: []string{"aws_s3_bucket.base"},
			Outputs:      map[string]any{"id": "base/versioning"}},
	}

	plan, err := eng.CreateDestroyPlan(context.Background(), st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.True(t, plan.Destroy)
	assert.Equal(t, "aws_s3_bucket_versioning.v", plan.Changes[0].Address)
	assert.Equal(t, "aws_s3_bucket.base", plan.Changes[1].Address)
}
