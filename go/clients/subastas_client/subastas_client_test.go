package subastas_client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subastafrutas/console/go/clients"
	"github.com/subastafrutas/console/go/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SubastasClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSubastasClient(srv.URL+"/", "tok-123")
}

func TestGetAuction(t *testing.T) {
	t.Run("server time from body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/admin/subastas/12/", r.URL.Path)
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			_, _ = w.Write([]byte(`{"id":12,"estado":"ACTIVA","precio_base":"100.00","precio_actual":"350.50",
				"fecha_hora_inicio":"2025-03-01T14:00:00Z","fecha_hora_fin":"2025-03-01T15:00:00Z",
				"hora_servidor":"2025-03-01T14:59:30Z","extensiones_realizadas":1}`))
		})

		auction, err := c.GetAuction(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, int64(12), auction.ID)
		assert.Equal(t, models.Price(350.5), auction.CurrentPrice)
		assert.Equal(t, 1, auction.Extensions)
		assert.WithinDuration(t, time.Date(2025, 3, 1, 14, 59, 30, 0, time.UTC), auction.ServerTime.Time, 0)
	})

	t.Run("server time from date header", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Date", "Sat, 01 Mar 2025 14:58:00 GMT")
			_, _ = w.Write([]byte(`{"id":12,"estado":"ACTIVA","fecha_hora_fin":"2025-03-01T15:00:00Z"}`))
		})

		auction, err := c.GetAuction(context.Background(), 12)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC), auction.EndTime.Time, 0)
		assert.WithinDuration(t, time.Date(2025, 3, 1, 14, 58, 0, 0, time.UTC), auction.ServerTime.Time, 0)
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"No encontrado."}`, http.StatusNotFound)
		})

		_, err := c.GetAuction(context.Background(), 99)
		require.Error(t, err)
		assert.ErrorIs(t, err, clients.ErrStatus)
		var apiErr *clients.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("context cancelled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.GetAuction(ctx, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAdvanceAuctionStates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/subastas/actualizar_estados/", r.URL.Path)
		_, _ = w.Write([]byte(`{"mensaje":"Se actualizaron 2 subastas.","timestamp":"2025-03-01T15:00:00.123456+00:00"}`))
	})

	result, err := c.AdvanceAuctionStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Se actualizaron 2 subastas.", result.Message)
	assert.NoError(t, c.Reconcile(context.Background()))
}

func TestAuctionSummaryAndHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/subastas/resumen/":
			_, _ = w.Write([]byte(`{"programadas":2,"activas":1,"finalizadas":5,"canceladas":1,"total":9}`))
		case "/api/admin/subastas/4/historial_ofertas/":
			_, _ = w.Write([]byte(`{"subasta_id":4,"total_ofertas":2,
				"oferta_ganadora":{"id":8,"monto":"210.00","es_ganadora":true,"cliente":{"id":1,"nombre":"A"}},
				"historial":[{"id":8,"monto":"210.00"},{"id":7,"monto":"200.00"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	summary, err := c.AuctionSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scheduled: 2, Active: 1, Finished: 5, Cancelled: 1, Total: 9}, *summary)

	history, err := c.BidHistory(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, history.WinningBid)
	assert.Equal(t, models.Price(210), history.WinningBid.Amount)
	assert.Len(t, history.Bids, 2)
}

func TestDownloadReport(t *testing.T) {
	payload := []byte("PK\x03\x04binary")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/reportes/subastas/excel/", r.URL.Path)
		assert.Equal(t, "2025-03-01", r.URL.Query().Get("fecha_inicio"))
		assert.Equal(t, "2025-03-31", r.URL.Query().Get("fecha_fin"))
		w.Header().Set("Content-Disposition", `attachment; filename="reporte_subastas.xlsx"`)
		_, _ = w.Write(payload)
	})

	var buf bytes.Buffer
	name, err := c.DownloadReport(context.Background(), ReportAuctions, ReportParams{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "reporte_subastas.xlsx", name)
	assert.Equal(t, payload, buf.Bytes())
}

func TestReportParams_Query(t *testing.T) {
	assert.Empty(t, ReportParams{}.query())
	assert.Equal(t, "?fecha_inicio=2025-01-06",
		ReportParams{From: time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)}.query())
}
