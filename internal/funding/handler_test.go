package funding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
	_ "github.com/bloodbridge/bloodbridge/testing"
)

type checkoutCall struct {
	Path string
	Body map[string]any
}

type fixture struct {
	router      http.Handler
	sess        *shared.Session
	checkoutURL string
	paid        string
	rejected    bool

	mu    sync.Mutex
	posts []checkoutCall
	gets  []string
}

func newFixture(t *testing.T, signedIn bool) *fixture {
	t.Helper()
	f := &fixture{checkoutURL: "https://checkout.example/pay/cs_1", paid: "paid"}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/create-checkout-session":
			c := checkoutCall{Path: r.URL.Path}
			_ = json.NewDecoder(r.Body).Decode(&c.Body)
			f.posts = append(f.posts, c)
			_ = json.NewEncoder(w).Encode(map[string]string{"url": f.checkoutURL})
		case r.URL.Path == "/fundings" && f.rejected:
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/fundings":
			f.gets = append(f.gets, r.URL.RawQuery)
			_, _ = w.Write([]byte(`{"result":[
				{"_id":"f1","name":"Karim","email":"karim@example.com","amount":500,"date":"2026-03-01T10:00:00Z"},
				{"_id":"f2","name":"Nadia","email":"nadia@example.com","amount":250.5,"createdAt":"2026-03-02T10:00:00Z"}
			],"total":2,"totalPages":1}`))
		case r.URL.Path == "/checkout-session/cs_1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":             "cs_1",
				"payment_intent": "pi_42",
				"payment_status": f.paid,
				"amount_total":   50000,
				"currency":       "bdt",
				"customer_email": "karim@example.com",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := shared.NewSessionManager(rdb, "bb_session", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	if signedIn {
		require.NoError(t, identity.Save(sess, identity.Principal{Email: "karim@example.com", Name: "Karim"}, identity.Credential{IDToken: "tok"}))
	}
	f.sess = sess

	manager := identity.NewManager(nil, nil)
	client := api.NewClient(upstream.URL, time.Second, nil)
	engine, err := view.NewEngine()
	require.NoError(t, err)
	pages := &view.Pages{Engine: engine, CSRF: shared.NewCSRFManager("secret"), Identity: manager}
	registry := listctl.NewRegistry(time.Minute, nil)
	t.Cleanup(func() { registry.UnmountSession(sess.ID) })

	h := NewHandler(nil, NewService(client, manager, nil, nil), listctl.NewMemoryStore(), time.Minute, registry, pages, 2*time.Second)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Use(manager.Middleware)
	r.Route(Path, func(r chi.Router) {
		h.MountRoutes(r, manager.RequireSignedIn)
	})
	f.router = r
	return f
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) give(amount string) *httptest.ResponseRecorder {
	form := url.Values{"amount": {amount}}
	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) checkouts() []checkoutCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]checkoutCall(nil), f.posts...)
}

func TestFundingRequiresSignIn(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(Path)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Ffunding", rec.Header().Get("Location"))
}

func TestFundingSignsOutOnRejectedCredential(t *testing.T) {
	f := newFixture(t, true)
	f.mu.Lock()
	f.rejected = true
	f.mu.Unlock()
	rec := f.get(Path + "?page=2")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Ffunding%3Fpage%3D2", rec.Header().Get("Location"))
	_, _, ok := identity.Load(f.sess)
	assert.False(t, ok)
}

func TestFundingListsHistoryWithPageTotal(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(Path)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Nadia")
	assert.Contains(t, body, "02 Mar 2026")
	assert.Contains(t, body, "৳750.50")
	assert.Contains(t, body, "৳500.00")
}

func TestGiveRejectsSmallAmount(t *testing.T) {
	f := newFixture(t, true)
	rec := f.give("0")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Minimum amount is ৳1.00.")
	assert.Empty(t, f.checkouts())

	rec = f.give("abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter an amount in taka.")
	assert.Empty(t, f.checkouts())
}

func TestGiveRedirectsToCheckout(t *testing.T) {
	f := newFixture(t, true)
	rec := f.give("500")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, f.checkoutURL, rec.Header().Get("Location"))

	calls := f.checkouts()
	require.Len(t, calls, 1)
	assert.Equal(t, "Karim", calls[0].Body["name"])
	assert.Equal(t, "karim@example.com", calls[0].Body["email"])
	assert.EqualValues(t, 500, calls[0].Body["amount"])
}

func TestGiveRefusesUnusableCheckoutURL(t *testing.T) {
	f := newFixture(t, true)
	f.checkoutURL = "javascript:alert(1)"
	rec := f.give("100")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "The payment page could not be opened.")
}

func TestSuccessShowsPaidCheckout(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(Path + "/success?session_id=cs_1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Thank you!")
	assert.Contains(t, body, "৳500.00")
	assert.Contains(t, body, "BDT")
	assert.Contains(t, body, "pi_42")
}

func TestSuccessReportsUnpaidCheckout(t *testing.T) {
	f := newFixture(t, true)
	f.paid = "unpaid"
	rec := f.get(Path + "/success?session_id=cs_1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Payment not completed")
}

func TestSuccessWithoutSessionID(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(Path + "/success")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No session_id found in URL.")
}

func TestFundFallsBackToCreatedAt(t *testing.T) {
	var fund Fund
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"f","amount":10,"createdAt":"2026-01-05T00:00:00Z"}`), &fund))
	assert.Equal(t, 2026, fund.Date.Year())
	assert.Equal(t, time.January, fund.Date.Month())
}

func TestCheckoutAmount(t *testing.T) {
	c := Checkout{AmountTotal: 12345, Currency: "usd", PaymentStatus: "paid", ID: "cs"}
	assert.InDelta(t, 123.45, c.Amount(), 0.0001)
	assert.Equal(t, "USD", c.CurrencyCode())
	assert.True(t, c.Paid())
	assert.Equal(t, "cs", c.TransactionID())
}
