package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/critsim/internal/config"
	"github.com/pefman/critsim/internal/models"
	"github.com/pefman/critsim/internal/server"
	"github.com/pefman/critsim/internal/session"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := server.New(config.DefaultServer(), session.NewStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL + "/")
}

func TestClient_Simulate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Health(ctx))

	seed := int64(1)
	res, err := c.Simulate(ctx, SimulateRequest{
		Patterns:     []models.AttackPattern{{NormalMin: 0, NormalMax: 1, CritMin: 2000, CritMax: 2000, CritRate: 100, Hits: 1}},
		TargetDamage: 1999,
		Trials:       1000,
		Seed:         &seed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Probability)
	assert.Equal(t, 1000, res.Trials)

	tr, err := c.Trace(ctx, SimulateRequest{
		Patterns:     []models.AttackPattern{{NormalMin: 0, NormalMax: 1, CritMin: 2000, CritMax: 2000, CritRate: 100, Hits: 1}},
		TargetDamage: 1999,
		Seed:         &seed,
	})
	require.NoError(t, err)
	assert.True(t, tr.Success)
	assert.Equal(t, 2000.0, tr.Total)
}

func TestClient_Errors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Simulate(ctx, SimulateRequest{Trials: 10})
	require.ErrorIs(t, err, models.ErrEmptyDataset)

	_, err = c.Simulate(ctx, SimulateRequest{
		Patterns: []models.AttackPattern{{NormalMin: 3, NormalMax: 1, Hits: 1}},
		Trials:   10,
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "normal damage min must be <= max")
	assert.False(t, errors.Is(err, models.ErrEmptyDataset))

	_, err = c.GetSession(ctx, "nope")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_SessionFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	_, err = c.SimulateSession(ctx, sess.ID, SimulateRequest{Trials: 5})
	require.ErrorIs(t, err, models.ErrEmptyDataset)

	flat := models.AttackPattern{NormalMin: 1000, NormalMax: 1000, CritMin: 1000, CritMax: 1000, Hits: 5}
	idx, err := c.AddPattern(ctx, sess.ID, flat)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	idx, err = c.AddPattern(ctx, sess.ID, flat)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	require.NoError(t, c.RemovePattern(ctx, sess.ID, 1))
	list, err := c.ListPatterns(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.AttackPattern{flat}, list)

	seed := int64(3)
	tr, err := c.Trace(ctx, SimulateRequest{SessionID: sess.ID, TargetDamage: 4999, Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, tr.Total)
	assert.True(t, tr.Success)

	res, err := c.SimulateSession(ctx, sess.ID, SimulateRequest{TargetDamage: 5000, Trials: 50})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Probability)

	got, err := c.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastResult)

	require.NoError(t, c.DeleteSession(ctx, sess.ID))
	assert.Error(t, c.DeleteSession(ctx, sess.ID))
}
