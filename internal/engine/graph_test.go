package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
)

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

func TestBuildGraph_NoDependencies(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "a", Provider: "local"},
		{Kind: "local_object", Name: "b", Provider: "local"},
		{Kind: "local_object", Name: "c", Provider: "local"},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	order := g.CreationOrder()
	assert.Len(t, order, 3)
	// Independent nodes keep declaration order.
	assert.Equal(t, []string{"local_object.a", "local_object.b", "local_object.c"}, order)
}

func TestBuildGraph_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "a", Provider: "local", DependsOn: []string{"local_object.b"}},
		{Kind: "local_object", Name: "b", Provider: "local"},
		{Kind: "local_object", Name: "c", Provider: "local", DependsOn: []string{"local_object.a"}},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	order := g.CreationOrder()
	require.Len(t, order, 3)

	posB := indexOf(order, "local_object.b")
	posA := indexOf(order, "local_object.a")
	posC := indexOf(order, "local_object.c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildGraph_ImplicitRef(t *testing.T) {
	resources := []*ir.Resource{
		{
			Kind:     "aws_s3_bucket_versioning",
			Name:     "bronze",
			Provider: "aws",
			Attributes: map[string]any{
				"bucket": ir.Ref("aws_s3_bucket.bronze", "bucket"),
			},
		},
		{Kind: "aws_s3_bucket", Name: "bronze", Provider: "aws"},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	order := g.CreationOrder()
	require.Len(t, order, 2)
	assert.Less(t, indexOf(order, "aws_s3_bucket.bronze"), indexOf(order, "aws_s3_bucket_versioning.bronze"))
}

func TestBuildGraph_RefEmbeddedInString(t *testing.T) {
	resources := []*ir.Resource{
		{
			Kind:     "snowflake_stage",
			Name:     "bronze",
			Provider: "snowflake",
			Attributes: map[string]any{
				"url": "s3://" + ir.Ref("aws_s3_bucket.bronze", "bucket") + "/data/",
			},
		},
		{Kind: "aws_s3_bucket", Name: "bronze", Provider: "aws"},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	deps := g.Dependencies("snowflake_stage.bronze")
	assert.Equal(t, []string{"aws_s3_bucket.bronze"}, deps)
}

func TestBuildGraph_CycleDetection(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "a", Provider: "local", DependsOn: []string{"local_object.b"}},
		{Kind: "local_object", Name: "b", Provider: "local", DependsOn: []string{"local_object.a"}},
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var ce *diag.CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"local_object.a", "local_object.b"}, ce.Addresses)
}

func TestBuildGraph_UnresolvedReference(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "a", Provider: "local", DependsOn: []string{"local_object.missing"}},
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var ue *diag.UnresolvedReferenceError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "local_object.missing", ue.Target)
}

func TestBuildGraph_DeterministicOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "z", Provider: "local"},
		{Kind: "local_object", Name: "m", Provider: "local"},
		{Kind: "local_object", Name: "a", Provider: "local"},
	}

	first, err := BuildGraph(resources)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		g, err := BuildGraph(resources)
		require.NoError(t, err)
		assert.Equal(t, first.CreationOrder(), g.CreationOrder())
	}
}

func TestDestructionOrder_ReversesCreation(t *testing.T) {
	resources := []*ir.Resource{
		{Kind: "local_object", Name: "base", Provider: "local"},
		{Kind: "local_object", Name: "mid", Provider: "local", DependsOn: []string{"local_object.base"}},
		{Kind: "local_object", Name: "top", Provider: "local", DependsOn: []string{"local_object.mid"}},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	assert.Equal(t, []string{"local_object.base", "local_object.mid", "local_object.top"}, g.CreationOrder())
	assert.Equal(t, []string{"local_object.top", "local_object.mid", "local_object.base"}, g.DestructionOrder())
}

func TestExtractRefs(t *testing.T) {
	attrs := map[string]any{
		"plain":  "no refs here",
		"direct": ir.Ref("aws_s3_bucket.b", "arn"),
		"nested": map[string]any{
			"list": []any{"prefix-" + ir.Ref("aws_iam_user.u", "name")},
		},
	}

	refs := ExtractRefs(attrs)
	assert.ElementsMatch(t, []string{
		"ref://aws_s3_bucket.b/arn",
		"ref://aws_iam_user.u/name",
	}, refs)
}

func TestContainsPending(t *testing.T) {
	assert.True(t, ContainsPending(ir.Pending("snowflake principal")))
	assert.True(t, ContainsPending(map[string]any{
		"nested": []any{"arn is " + ir.Pending("iam_user_arn")},
	}))
	assert.False(t, ContainsPending(map[string]any{"a": "b", "n": int64(3)}))
}
