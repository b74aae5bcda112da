package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

func TestGetAttachesBearerAndParams(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil).WithCredentials(StaticToken("tok-1"), nil)
	body, err := client.Get(context.Background(), "/blood-donation-requests", url.Values{"status": {"pending"}})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "status=pending", gotQuery)
}

func TestRejectedTokenIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden access"}`))
	}))
	defer srv.Close()

	var hooked int
	client := NewClient(srv.URL, time.Second, nil).WithCredentials(StaticToken("stale"), func(_ context.Context, status int) {
		hooked = status
	})

	_, err := client.Get(context.Background(), "/regesterDoner", nil)
	require.Error(t, err)
	assert.True(t, shared.IsAuthExpired(err))
	assert.Equal(t, http.StatusForbidden, hooked)

	_, err = client.Send(context.Background(), http.MethodPatch, "/users/1/role", map[string]string{"role": "admin"})
	assert.True(t, shared.IsAuthExpired(err))
}

func TestAnonymousForbiddenIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Get(context.Background(), "/donation-requests", nil)
	var fetchErr *shared.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, shared.IsAuthExpired(err))
	assert.Equal(t, http.StatusUnauthorized, fetchErr.Status)
}

func TestReadFailureCarriesUpstreamMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database offline"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Get(context.Background(), "/donation-requests", nil)
	var fetchErr *shared.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "database offline", fetchErr.Message)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Get(context.Background(), "/blood-donation-requests-details/x", nil)
	assert.True(t, IsNotFound(err))
}

func TestSendEncodesBodyAndIdempotencyKey(t *testing.T) {
	var (
		gotBody   map[string]string
		gotMethod string
		gotKey    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("Idempotency-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"result":{"modifiedCount":1}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	raw, err := client.Send(context.Background(), http.MethodPatch, Path("update-status", "abc 1"), map[string]string{"status": "inprogress"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.NotEmpty(t, gotKey)
	assert.Equal(t, "inprogress", gotBody["status"])
	assert.Equal(t, 1, DecodeWriteResult(raw).ModifiedCount)
}

func TestSendFailureIsMutationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"EMAIL_EXISTS"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Send(context.Background(), http.MethodPost, "/regesterDoner", map[string]string{})
	var mutErr *shared.MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "EMAIL_EXISTS", mutErr.Message)
	assert.Equal(t, "EMAIL_EXISTS", shared.UserSafeMessage(err))
}

func TestDecodeWriteResult(t *testing.T) {
	assert.Equal(t, 1, DecodeWriteResult([]byte(`{"modifiedCount":1}`)).ModifiedCount)
	assert.Equal(t, 0, DecodeWriteResult([]byte(`{"result":{"modifiedCount":0}}`)).ModifiedCount)
	assert.Equal(t, 0, DecodeWriteResult([]byte(`oops`)).ModifiedCount)
}

func TestParseStatusUnifiesSpellings(t *testing.T) {
	cases := map[string]Status{
		"cancelled":   StatusCanceled,
		"canceled":    StatusCanceled,
		"in-progress": StatusInProgress,
		"in progress": StatusInProgress,
		"inprogress":  StatusInProgress,
		" Pending ":   StatusPending,
		"done":        StatusDone,
	}
	for raw, want := range cases {
		got, ok := ParseStatus(raw)
		require.Truef(t, ok, "parse %q", raw)
		assert.Equal(t, want, got)
	}
	_, ok := ParseStatus("exploded")
	assert.False(t, ok)

	var s struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"cancelled"}`), &s))
	assert.Equal(t, StatusCanceled, s.Status)
}

func TestTimeIsTolerant(t *testing.T) {
	var rec struct {
		A Time `json:"a"`
		B Time `json:"b"`
		C Time `json:"c"`
		D Time `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a":"2025-03-01T10:00:00.000Z","b":1740823200000,"c":"yesterday","d":null}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, 2025, rec.A.Year())
	assert.Equal(t, int64(1740823200000), rec.B.UnixMilli())
	assert.True(t, rec.C.IsZero())
	assert.True(t, rec.D.IsZero())
}
