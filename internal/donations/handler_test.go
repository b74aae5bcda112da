package donations

import (
	"context"
	"encoding/json"
	"io"
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
	"github.com/xuri/excelize/v2"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
	_ "github.com/bloodbridge/bloodbridge/testing"
)

const sampleRequest = `{"_id":"r1","requesterName":"Karim","requesterEmail":"requester@example.com","recipientName":"Ayesha","recipientDistrict":"Dhaka","recipientUpazila":"Savar","hospitalName":"DMCH","fullAddress":"Road 1","bloodGroup":"O+","donationDate":"2025-05-01","donationTime":"10:00","requestMessage":"Urgent","status":"%s"}`

type call struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
}

type fakeAPI struct {
	role   string
	status string
	mu     sync.Mutex
	calls  []call
	reject map[string]bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &c.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	status := f.status
	rejected := f.reject[r.URL.Path]
	f.mu.Unlock()
	if rejected {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized access"}`))
		return
	}

	item := strings.Replace(sampleRequest, "%s", status, 1)
	switch {
	case strings.HasPrefix(r.URL.Path, "/regesterDoner/role/"):
		_, _ = w.Write([]byte(`{"role":"` + f.role + `"}`))
	case r.URL.Path == "/donation-requests":
		_, _ = w.Write([]byte(`[` + item + `]`))
	case r.URL.Path == "/my-blood-donation-requests", r.URL.Path == "/blood-donation-requests":
		_, _ = w.Write([]byte(`{"result":[` + item + `],"total":1,"page":1,"limit":10,"totalPages":1}`))
	case r.URL.Path == "/blood-donation-requests-details/r1":
		_, _ = w.Write([]byte(item))
	case r.URL.Path == "/update-status/r1":
		_, _ = w.Write([]byte(`{"acknowledged":true,"modifiedCount":1}`))
	case r.Method == http.MethodDelete:
		_, _ = w.Write([]byte(`{"deletedCount":1}`))
	case r.Method == http.MethodPost || r.Method == http.MethodPatch:
		_, _ = w.Write([]byte(`{"acknowledged":true,"insertedId":"r2"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) setStatus(status string) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeAPI) rejectPath(path string) {
	f.mu.Lock()
	if f.reject == nil {
		f.reject = map[string]bool{}
	}
	f.reject[path] = true
	f.mu.Unlock()
}

func (f *fakeAPI) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeAPI) writes() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) find(method, path string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			return c, true
		}
	}
	return call{}, false
}

type harness struct {
	router   http.Handler
	api      *fakeAPI
	sess     *shared.Session
	sessions *shared.SessionManager
	registry *listctl.Registry
}

func newHarness(t *testing.T, role string) *harness {
	t.Helper()
	fake := &fakeAPI{role: role, status: "pending"}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := shared.NewSessionManager(rdb, "bb_session", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, identity.Save(sess, identity.Principal{Email: "donor@example.com", Name: "Karim"}, identity.Credential{IDToken: "tok"}))

	manager := identity.NewManager(nil, nil)
	client := api.NewClient(upstream.URL, time.Second, nil)
	engine, err := view.NewEngine()
	require.NoError(t, err)
	pages := &view.Pages{Engine: engine, CSRF: shared.NewCSRFManager("secret"), Identity: manager}
	registry := listctl.NewRegistry(time.Minute, nil)
	t.Cleanup(func() { registry.UnmountSession(sess.ID) })

	h := NewHandler(nil,
		NewService(client, manager, nil, nil),
		NewLists(listctl.NewMemoryStore(), time.Minute, registry, nil),
		pages,
		location.NewLoader("", nil, 0, nil),
		2*time.Second)
	guard := rbac.Middleware{Service: rbac.NewService(client, manager, nil, 0, nil), Identity: manager}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if shared.SessionFromContext(req.Context()) != nil {
				next.ServeHTTP(w, req)
				return
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Use(manager.Middleware)
	r.Route(PathPublic, func(r chi.Router) { h.MountPublic(r, manager.RequireSignedIn) })
	r.Route("/dashboard", func(r chi.Router) { h.MountDashboard(r, guard) })
	return &harness{router: r, api: fake, sess: sess, sessions: sessions, registry: registry}
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (h *harness) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestPublicListShowsPendingRequests(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.get(t, "/donation-requests/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ayesha")

	c, ok := h.api.find(http.MethodGet, "/donation-requests")
	require.True(t, ok)
	assert.Equal(t, "pending", c.Query.Get("status"))
}

func TestAnonymousVisitorsDoNotMountViews(t *testing.T) {
	h := newHarness(t, "donor")
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/donation-requests/?page=1", nil)
		visitor, err := h.sessions.Load(req.Context(), req)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), visitor)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Ayesha")
	}
	assert.Zero(t, h.registry.Len())
	assert.Equal(t, 1, h.api.count(http.MethodGet, "/donation-requests"))
}

func TestRejectedCredentialOnListSignsOut(t *testing.T) {
	for path, role := range map[string]string{PathMine: "donor", PathAll: "admin"} {
		t.Run(path, func(t *testing.T) {
			h := newHarness(t, role)
			h.api.rejectPath("/my-blood-donation-requests")
			h.api.rejectPath("/blood-donation-requests")
			rec := h.get(t, path)
			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/auth/login?next="+url.QueryEscape(path), rec.Header().Get("Location"))
			_, _, ok := identity.Load(h.sess)
			assert.False(t, ok)
			flash := h.sess.PopFlash()
			require.NotNil(t, flash)
			assert.Equal(t, shared.FlashError, flash.Kind)
		})
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/dashboard/my-donation-requests/r1/delete", url.Values{"return": {"/dashboard/my-donation-requests?page=1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Delete this request?")
	assert.Contains(t, body, `name="confirm" value="yes"`)
	assert.Empty(t, h.api.writes())
}

func TestCancelledDeleteIssuesNoRequest(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/dashboard/my-donation-requests/r1/delete", url.Values{"confirm": {"no"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, h.api.writes())
}

func TestConfirmedDeleteCallsAPI(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/dashboard/my-donation-requests/r1/delete", url.Values{"confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), PathMine))

	_, ok := h.api.find(http.MethodDelete, "/my-blood-donation-requests/r1")
	assert.True(t, ok)
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashSuccess, flash.Kind)
}

func TestCloseRejectsNonOwnerStatuses(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/dashboard/my-donation-requests/r1/status", url.Values{"status": {"approved"}, "confirm": {"yes"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, h.api.writes())
}

func TestCloseSendsCanonicalStatus(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/dashboard/my-donation-requests/r1/status", url.Values{"status": {"cancelled"}, "confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	c, ok := h.api.find(http.MethodPatch, "/my-blood-donation-requests-to-processing/r1")
	require.True(t, ok)
	assert.Equal(t, "canceled", c.Body["status"])
}

func TestCreateValidatesBeforeCallingAPI(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, PathCreate, url.Values{"recipientName": {"Ayesha"}, "district": {"1"}, "district_prev": {"1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required.")
	assert.Empty(t, h.api.writes())
}

func TestCreateSendsDistrictName(t *testing.T) {
	h := newHarness(t, "donor")
	form := url.Values{
		"recipientName":  {"Ayesha"},
		"bloodGroup":     {"O+"},
		"district":       {"1"},
		"district_prev":  {"1"},
		"upazila":        {"Savar"},
		"hospitalName":   {"DMCH"},
		"fullAddress":    {"Road 1"},
		"donationDate":   {"2025-05-01"},
		"donationTime":   {"10:30"},
		"requestMessage": {"<b>Urgent</b> need"},
	}
	rec := h.post(t, PathCreate, form)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	c, ok := h.api.find(http.MethodPost, "/CreatedBloadDonation")
	require.True(t, ok)
	assert.Equal(t, "Dhaka", c.Body["recipientDistrict"])
	assert.Equal(t, "pending", c.Body["status"])
	assert.Equal(t, "donor@example.com", c.Body["requesterEmail"])
	assert.Equal(t, "Urgent need", c.Body["requestMessage"])
}

func TestCreateDropsUpazilaWhenDistrictChanged(t *testing.T) {
	h := newHarness(t, "donor")
	form := url.Values{
		"recipientName":  {"Ayesha"},
		"bloodGroup":     {"O+"},
		"district":       {"2"},
		"district_prev":  {"1"},
		"upazila":        {"Savar"},
		"hospitalName":   {"DMCH"},
		"fullAddress":    {"Road 1"},
		"donationDate":   {"2025-05-01"},
		"donationTime":   {"10:30"},
		"requestMessage": {"Urgent"},
	}
	rec := h.post(t, PathCreate, form)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, h.api.writes())
}

func TestDonateRequiresConfirmationThenPledges(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.post(t, "/donation-requests/r1/donate", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Donate to this request?")
	assert.Empty(t, h.api.writes())

	rec = h.post(t, "/donation-requests/r1/donate", url.Values{"confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	c, ok := h.api.find(http.MethodPatch, "/update-status/r1")
	require.True(t, ok)
	assert.Equal(t, "inprogress", c.Body["status"])
	assert.Equal(t, "donor@example.com", c.Body["donorEmail"])
	assert.Equal(t, "Karim", c.Body["donorName"])
}

func TestDonateRefusesTakenRequest(t *testing.T) {
	h := newHarness(t, "donor")
	h.api.setStatus("in-progress")
	rec := h.post(t, "/donation-requests/r1/donate", url.Values{"confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, h.api.writes())
}

func TestDonateRefusesOwnRequest(t *testing.T) {
	h := newHarness(t, "donor")
	require.NoError(t, identity.Save(h.sess, identity.Principal{Email: "requester@example.com", Name: "Karim"}, identity.Credential{IDToken: "tok"}))
	rec := h.post(t, "/donation-requests/r1/donate", url.Values{"confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, h.api.writes())
}

func TestStaffListIsForbiddenToDonors(t *testing.T) {
	h := newHarness(t, "donor")
	rec := h.get(t, PathAll)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, rbac.HomePath, rec.Header().Get("Location"))
}

func TestStaffListAndExport(t *testing.T) {
	h := newHarness(t, "volunteer")
	rec := h.get(t, PathAll+"?status=pending&bloodGroup=O%2B")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ayesha")
	c, ok := h.api.find(http.MethodGet, "/blood-donation-requests")
	require.True(t, ok)
	assert.Equal(t, "O+", c.Query.Get("bloodGroup"))

	rec = h.get(t, PathAll+"/export.xlsx?status=pending&bloodGroup=O%2B")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	v, err := f.GetCellValue(exportSheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, "Ayesha", v)
}

func TestStaffStatusChange(t *testing.T) {
	h := newHarness(t, "admin")
	rec := h.post(t, PathAll+"/r1/status", url.Values{"status": {"done"}, "confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	c, ok := h.api.find(http.MethodPatch, "/blood-donation-requests/r1/status")
	require.True(t, ok)
	assert.Equal(t, "done", c.Body["status"])
}
