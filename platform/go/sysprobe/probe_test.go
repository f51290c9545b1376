package sysprobe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedProbe struct {
	snap Snapshot
	err  error
}

func (f fixedProbe) Collect(context.Context) (Snapshot, error) { return f.snap, f.err }

func TestCollect(t *testing.T) {
	snap, err := New().Collect(context.Background())
	require.NoError(t, err)
	require.False(t, snap.CollectedAt.IsZero())
	require.NotEmpty(t, snap.DiskPath)
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandler(t *testing.T) {
	h := Handler(fixedProbe{snap: Snapshot{Hostname: "api-1", CPUCount: 4}}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/system/resources", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "api-1", got.Hostname)
	require.Equal(t, 4, got.CPUCount)
}

func TestHandlerError(t *testing.T) {
	h := Handler(fixedProbe{err: errors.New("boom")}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/system/resources", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
