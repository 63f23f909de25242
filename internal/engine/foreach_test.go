package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/ir"
)

func TestExpandForEach_OneInstancePerKey(t *testing.T) {
	res := &ir.Resource{
		Kind:     "aws_s3_bucket",
		Name:     "tier",
		Provider: "aws",
		ForEach: map[string]any{
			"gold":   int64(30),
			"bronze": int64(365),
			"silver": int64(90),
		},
		Attributes: map[string]any{
			"bucket": "datalake-${each.key}",
		},
	}

	expanded := ExpandForEach([]*ir.Resource{res})

	require.Len(t, expanded, 3)
	assert.Equal(t, `tier["bronze"]`, expanded[0].Name)
	assert.Equal(t, `tier["gold"]`, expanded[1].Name)
	assert.Equal(t, `tier["silver"]`, expanded[2].Name)
	assert.Equal(t, "datalake-bronze", expanded[0].Attributes["bucket"])
	for _, inst := range expanded {
		assert.Nil(t, inst.ForEach)
	}
}

func TestExpandForEach_WholeValuePlaceholderKeepsType(t *testing.T) {
	res := &ir.Resource{
		Kind:     "aws_s3_bucket_lifecycle",
		Name:     "retention",
		Provider: "aws",
		ForEach: map[string]any{
			"bronze": int64(365),
		},
		Attributes: map[string]any{
			"bucket":          "datalake-${each.key}",
			"expiration_days": "${each.value}",
		},
	}

	expanded := ExpandForEach([]*ir.Resource{res})

	require.Len(t, expanded, 1)
	assert.Equal(t, int64(365), expanded[0].Attributes["expiration_days"])
	assert.Equal(t, "datalake-bronze", expanded[0].Attributes["bucket"])
}

func TestExpandForEach_EmbeddedValueBecomesString(t *testing.T) {
	res := &ir.Resource{
		Kind:     "aws_s3_bucket",
		Name:     "named",
		Provider: "aws",
		ForEach:  map[string]any{"a": int64(7)},
		Attributes: map[string]any{
			"bucket": "lake-${each.key}-${each.value}",
		},
	}

	expanded := ExpandForEach([]*ir.Resource{res})

	require.Len(t, expanded, 1)
	assert.Equal(t, "lake-a-7", expanded[0].Attributes["bucket"])
}

func TestExpandForEach_SubstitutesInNestedValues(t *testing.T) {
	res := &ir.Resource{
		Kind:     "snowflake_stage",
		Name:     "tier",
		Provider: "snowflake",
		ForEach:  map[string]any{"bronze": "datalake-bronze"},
		Attributes: map[string]any{
			"name":     "STAGE_${each.key}",
			"database": "LAKE",
			"schema":   "RAW",
			"url":      "s3://${each.value}/",
			"tags":     map[string]any{"tier": "${each.key}"},
			"paths":    []any{"${each.value}"},
		},
	}

	expanded := ExpandForEach([]*ir.Resource{res})

	require.Len(t, expanded, 1)
	attrs := expanded[0].Attributes
	assert.Equal(t, "s3://datalake-bronze/", attrs["url"])
	assert.Equal(t, map[string]any{"tier": "bronze"}, attrs["tags"])
	assert.Equal(t, []any{"datalake-bronze"}, attrs["paths"])
}

func TestExpandForEach_PassesThroughPlainResources(t *testing.T) {
	plain := &ir.Resource{Kind: "aws_s3_bucket", Name: "single", Provider: "aws",
		Attributes: map[string]any{"bucket": "one"}}

	expanded := ExpandForEach([]*ir.Resource{plain})

	require.Len(t, expanded, 1)
	assert.Same(t, plain, expanded[0])
}

func TestExpandForEach_DoesNotShareAttributeMaps(t *testing.T) {
	res := &ir.Resource{
		Kind:     "aws_s3_bucket",
		Name:     "tier",
		Provider: "aws",
		ForEach:  map[string]any{"a": "1", "b": "2"},
		Attributes: map[string]any{
			"bucket": "datalake-${each.key}",
			"tags":   map[string]any{"managed": "true"},
		},
	}

	expanded := ExpandForEach([]*ir.Resource{res})
	require.Len(t, expanded, 2)

	expanded[0].Attributes["tags"].(map[string]any)["managed"] = "mutated"
	assert.Equal(t, "true", expanded[1].Attributes["tags"].(map[string]any)["managed"])
}
