package local

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

func createObject(t *testing.T, p *Provider, name string, desired map[string]any) *provider.Response {
	t.Helper()
	resp, err := p.Create(context.Background(), &provider.CreateRequest{
		Kind:    "local_object",
		Name:    name,
		Desired: desired,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateReadDelete(t *testing.T) {
	p := New()
	resp := createObject(t, p, "a", map[string]any{"content": map[string]any{"tier": "bronze"}})

	id := resp.Attributes["id"].(string)
	assert.Equal(t, "local-local_object-a", id)
	assert.NotEmpty(t, resp.Attributes["token"])
	assert.False(t, resp.InProgress)
	assert.True(t, p.Exists(id))

	read, err := p.Read(context.Background(), &provider.ReadRequest{Kind: "local_object", ID: id})
	require.NoError(t, err)
	assert.Equal(t, resp.Attributes, read.Attributes)

	require.NoError(t, p.Delete(context.Background(), &provider.DeleteRequest{Kind: "local_object", ID: id}))
	assert.False(t, p.Exists(id))

	_, err = p.Read(context.Background(), &provider.ReadRequest{Kind: "local_object", ID: id})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	p := New()
	err := p.Delete(context.Background(), &provider.DeleteRequest{Kind: "local_object", ID: "never-existed"})
	assert.NoError(t, err)
}

func TestUpdateReplacesContentAndToken(t *testing.T) {
	p := New()
	resp := createObject(t, p, "a", map[string]any{"content": map[string]any{"tier": "bronze"}})
	id := resp.Attributes["id"].(string)
	firstToken := resp.Attributes["token"]

	updated, err := p.Update(context.Background(), &provider.UpdateRequest{
		Kind:    "local_object",
		Name:    "a",
		ID:      id,
		Desired: map[string]any{"content": map[string]any{"tier": "silver"}},
		Changed: []string{"content"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"tier": "silver"}, updated.Attributes["content"])
	assert.NotEqual(t, firstToken, updated.Attributes["token"])
}

func TestUpdateUnknownObject(t *testing.T) {
	p := New()
	_, err := p.Update(context.Background(), &provider.UpdateRequest{
		Kind: "local_object", Name: "x", ID: "missing",
		Desired: map[string]any{},
	})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestTokenIsDeterministic(t *testing.T) {
	desired := map[string]any{"content": map[string]any{"a": "1", "b": "2"}}

	first := createObject(t, New(), "same", desired)
	second := createObject(t, New(), "same", desired)

	assert.Equal(t, first.Attributes["token"], second.Attributes["token"])
}

func TestFailNextConsumedOnce(t *testing.T) {
	p := New()
	boom := errors.New("injected failure")
	p.FailNext["create:local_object.a"] = boom

	_, err := p.Create(context.Background(), &provider.CreateRequest{
		Kind: "local_object", Name: "a", Desired: map[string]any{},
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.Exists("local-local_object-a"))

	createObject(t, p, "a", map[string]any{})
	assert.True(t, p.Exists("local-local_object-a"))
}

func TestAsyncReadsSettleAfterPolling(t *testing.T) {
	p := New()
	p.AsyncReads = 3

	resp := createObject(t, p, "slow", map[string]any{})
	require.True(t, resp.InProgress)
	id := resp.Attributes["id"].(string)

	// First reads report in-progress, then the object settles for good.
	polls := 0
	for {
		read, err := p.Read(context.Background(), &provider.ReadRequest{Kind: "local_object", ID: id})
		require.NoError(t, err)
		polls++
		if !read.InProgress {
			break
		}
		require.Less(t, polls, 10)
	}
	assert.Equal(t, 3, polls)

	read, err := p.Read(context.Background(), &provider.ReadRequest{Kind: "local_object", ID: id})
	require.NoError(t, err)
	assert.False(t, read.InProgress)
}
