package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/authorization"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/identity"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCronSecret = "cron-s3cret"

type fakeVerifier struct {
	tokens map[string]string
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	uid, ok := f.tokens[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Identity{UID: uid}, nil
}

type fakeTenantService struct {
	tenantdomain.Service
	memberships map[string]tenantdomain.Membership
}

func (f *fakeTenantService) ResolveTenantID(ctx context.Context, userID, preferred string) (string, error) {
	if preferred != "" {
		return preferred, nil
	}
	if m, ok := f.memberships[userID]; ok {
		return m.TenantID, nil
	}
	return "", tenantdomain.ErrTenantNotResolved
}

func (f *fakeTenantService) Membership(ctx context.Context, userID, tenantID string) (*tenantdomain.Membership, error) {
	m, ok := f.memberships[userID]
	if !ok || m.TenantID != tenantID {
		return nil, tenantdomain.ErrMembershipNotFound
	}
	return &m, nil
}

// fakeAuthz grants operators everything and everyone else read access.
type fakeAuthz struct {
	tenants *fakeTenantService
}

func (f *fakeAuthz) Authorize(ctx context.Context, actor, tenantID, object, action string) error {
	m, err := f.tenants.Membership(ctx, strings.TrimPrefix(actor, "user:"), tenantID)
	if err != nil || !m.IsActive() {
		return authorization.ErrForbidden
	}
	if m.Role.IsOperator() {
		return nil
	}
	if object != authorization.ObjectAuditLog && (strings.HasSuffix(action, ".view") || strings.HasSuffix(action, ".download")) {
		return nil
	}
	return authorization.ErrForbidden
}

type fakeGenerator struct {
	tenantID   string
	trigger    string
	result     *recurring.RunResult
	sweep      *recurring.SweepResult
	err        error
	sweepCalls int
}

func (f *fakeGenerator) RunForTenant(ctx context.Context, tenantID string) (*recurring.RunResult, error) {
	f.tenantID = tenantID
	f.trigger = recurring.TriggerFrom(ctx)
	return f.result, f.err
}

func (f *fakeGenerator) RunAllTenants(ctx context.Context) (*recurring.SweepResult, error) {
	f.sweepCalls++
	f.trigger = recurring.TriggerFrom(ctx)
	return f.sweep, f.err
}

func (f *fakeGenerator) RunTenantSweep(ctx context.Context, tenantID string) (*recurring.SweepResult, error) {
	f.tenantID = tenantID
	f.trigger = recurring.TriggerFrom(ctx)
	return f.sweep, f.err
}

type fakeNotifier struct {
	tenantID string
	override string
	result   notification.TestResult
	err      error
}

func (f *fakeNotifier) SendTestNotification(ctx context.Context, tenantID, override string) (notification.TestResult, error) {
	f.tenantID = tenantID
	f.override = override
	return f.result, f.err
}

type fakeLimiter struct {
	deny bool
}

func (f *fakeLimiter) Allow(ctx context.Context, tenantID, endpoint string) (*ratelimit.Result, error) {
	if f.deny {
		return &ratelimit.Result{Allowed: false, Limit: 1, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return &ratelimit.Result{Allowed: true, Limit: 1, Remaining: 1}, nil
}

type fakeInvoiceService struct {
	invoicedomain.Service
	invoices map[string]invoicedomain.Invoice
}

// RenderPDF mirrors the real lookup order: existence, client scope, then client.
func (f *fakeInvoiceService) RenderPDF(ctx context.Context, id string) (*invoicedomain.PDF, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped && clientID != inv.ClientID {
		return nil, invoicedomain.ErrAccessDenied
	}
	if inv.ClientID == "" {
		return nil, invoicedomain.ErrMissingClient
	}
	return &invoicedomain.PDF{Filename: inv.InvoiceNumber + ".pdf", Content: []byte("%PDF-1.4")}, nil
}

type fakeClientService struct {
	clientdomain.Service
	created int
}

func (f *fakeClientService) Create(ctx context.Context, req clientdomain.CreateClientRequest) (*clientdomain.Client, error) {
	f.created++
	tenantID, _ := tenantctx.TenantID(ctx)
	return &clientdomain.Client{TenantID: tenantID, ID: "c-new", Name: req.Name}, nil
}

func (f *fakeClientService) Get(ctx context.Context, id string) (*clientdomain.Client, error) {
	return nil, clientdomain.ErrNotFound
}

type fakeAudit struct {
	auditdomain.Service
	entries []auditdomain.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, entry auditdomain.Entry) error {
	tenantID, _ := tenantctx.TenantID(ctx)
	f.entries = append(f.entries, auditdomain.AuditLog{
		TenantID:   tenantID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   entry.Metadata,
	})
	return nil
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{AuditLogs: f.entries}, nil
}

type testServer struct {
	engine    *gin.Engine
	generator *fakeGenerator
	notifier  *fakeNotifier
	limiter   *fakeLimiter
	clients   *fakeClientService
	audit     *fakeAudit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tenants := &fakeTenantService{memberships: map[string]tenantdomain.Membership{
		"u-owner":    {UserID: "u-owner", TenantID: "t1", Role: tenantdomain.RoleOwner, Status: tenantdomain.MembershipActive},
		"u-member":   {UserID: "u-member", TenantID: "t1", Role: tenantdomain.RoleMember, Status: tenantdomain.MembershipActive},
		"u-disabled": {UserID: "u-disabled", TenantID: "t1", Role: tenantdomain.RoleAdmin, Status: tenantdomain.MembershipDisabled},
		"u-client":   {UserID: "u-client", TenantID: "t1", Role: tenantdomain.RoleClient, Status: tenantdomain.MembershipActive, ClientID: "c1"},
	}}

	ts := &testServer{
		engine: gin.New(),
		generator: &fakeGenerator{
			result: &recurring.RunResult{DueCount: 2, GeneratedCount: 1, SkippedCount: 1, Errors: []recurring.SubscriptionError{}},
			sweep:  &recurring.SweepResult{RanAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Results: []recurring.TenantSummary{}},
		},
		notifier: &fakeNotifier{},
		limiter:  &fakeLimiter{},
		clients:  &fakeClientService{},
		audit:    &fakeAudit{},
	}
	ts.engine.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine: ts.engine,
		cfg:    config.Config{CronSecret: testCronSecret},
		log:    zap.NewNop(),
		clock:  clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		verifier: &fakeVerifier{tokens: map[string]string{
			"tok-owner":    "u-owner",
			"tok-member":   "u-member",
			"tok-disabled": "u-disabled",
			"tok-client":   "u-client",
			"tok-orphan":   "u-orphan",
		}},
		tenantSvc: tenants,
		authzSvc:  &fakeAuthz{tenants: tenants},
		clientSvc: ts.clients,
		invoiceSvc: &fakeInvoiceService{invoices: map[string]invoicedomain.Invoice{
			"inv-1": {TenantID: "t1", ID: "inv-1", InvoiceNumber: "INV-0001", ClientID: "c1"},
			"inv-2": {TenantID: "t1", ID: "inv-2", InvoiceNumber: "INV-0002", ClientID: "c2"},
			"inv-3": {TenantID: "t1", ID: "inv-3", InvoiceNumber: "INV-0003"},
		}},
		auditSvc:  ts.audit,
		generator: ts.generator,
		notifier:  ts.notifier,
		limiter:   ts.limiter,
	}
	s.registerBillingRoutes()
	s.registerAPIRoutes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGenerateInvoicesAuthFailures(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		body   any
		status int
		msg    string
	}{
		{"missing bearer", "", nil, http.StatusUnauthorized, msgMissingBearer},
		{"invalid token", "bogus", nil, http.StatusUnauthorized, msgInvalidToken},
		{"no tenant", "tok-orphan", nil, http.StatusForbidden, msgMissingTenant},
		{"foreign tenant", "tok-owner", map[string]string{"tenantId": "t2"}, http.StatusForbidden, msgMembershipNotFound},
		{"member role", "tok-member", nil, http.StatusForbidden, msgNotAuthorized},
		{"inactive membership", "tok-disabled", nil, http.StatusForbidden, msgNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/admin/generate-invoices", tc.token, tc.body)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, decodeBody(t, rec)["error"])
			assert.Empty(t, ts.generator.tenantID)
		})
	}
}

func TestGenerateInvoicesRunsTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/generate-invoices", "tok-owner", map[string]string{"tenantId": "t1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "t1", body["tenantId"])
	assert.EqualValues(t, 2, body["dueCount"])
	assert.EqualValues(t, 1, body["generatedCount"])
	assert.EqualValues(t, 1, body["skippedCount"])
	assert.Equal(t, "t1", ts.generator.tenantID)
	assert.Equal(t, "admin", ts.generator.trigger)

	require.Len(t, ts.audit.entries, 1)
	entry := ts.audit.entries[0]
	assert.Equal(t, auditdomain.ActionBillingRunTriggered, entry.Action)
	assert.Equal(t, "t1", entry.TenantID)
	assert.Equal(t, 1, entry.Metadata["generatedCount"])
}

func TestGenerateInvoicesFallsBackToMembershipTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/generate-invoices", "tok-owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", ts.generator.tenantID)
}

func TestGenerateInvoicesRunFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.generator.err = errors.New("scan due subscriptions: boom")

	rec := ts.do(t, http.MethodPost, "/api/admin/generate-invoices", "tok-owner", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "scan due subscriptions: boom", decodeBody(t, rec)["error"])
}

func TestGenerateInvoicesRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.limiter.deny = true

	rec := ts.do(t, http.MethodPost, "/api/admin/generate-invoices", "tok-owner", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, msgRateLimited, decodeBody(t, rec)["error"])
	assert.Empty(t, ts.generator.tenantID)
}

func TestCronRejectsBadSecret(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/cron/generate-invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgUnauthorized, decodeBody(t, rec)["error"])

	rec = ts.do(t, http.MethodGet, "/api/cron/generate-invoices", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cron/generate-invoices", "", nil, headerCronSecret, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ts.generator.sweepCalls)
}

func TestCronRejectsWhenSecretUnset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s := &Server{engine: r, log: zap.NewNop()}
	r.GET("/cron", s.CronRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/cron", nil)
	req.Header.Set(headerCronSecret, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCronSweepsAllTenants(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/cron/generate-invoices", "", nil, headerCronSecret, testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.generator.sweepCalls)
	assert.Equal(t, "cron", ts.generator.trigger)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "ranAt")
	assert.Contains(t, body, "totals")
}

func TestCronSingleTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/cron/generate-invoices?tenantId=t9", testCronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t9", ts.generator.tenantID)
	assert.Zero(t, ts.generator.sweepCalls)
}

func TestCronSingleTenantFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.generator.err = errors.New("tenant store unavailable")

	rec := ts.do(t, http.MethodGet, "/api/cron/generate-invoices?tenantId=t9", testCronSecret, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "tenant store unavailable", body["error"])
	assert.Equal(t, "2025-03-01T00:00:00Z", body["ranAt"])
}

func TestSendTestEmail(t *testing.T) {
	ts := newTestServer(t)
	to := "ops@acme.test"
	ts.notifier.result = notification.TestResult{Attempted: true, Sent: true, To: &to}

	rec := ts.do(t, http.MethodPost, "/api/admin/test-email", "tok-owner", map[string]string{"to": " ops@acme.test "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", ts.notifier.tenantID)
	assert.Equal(t, "ops@acme.test", ts.notifier.override)

	email := decodeBody(t, rec)["email"].(map[string]any)
	assert.Equal(t, true, email["sent"])
	assert.Equal(t, to, email["to"])
	assert.Nil(t, email["error"])
}

func TestSendTestEmailCooldown(t *testing.T) {
	ts := newTestServer(t)
	ts.notifier.err = notification.ErrCooldownActive

	rec := ts.do(t, http.MethodPost, "/api/admin/test-email", "tok-owner", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t,
		`{"error":"Please wait 5 minutes","email":{"attempted":false,"sent":false,"to":null,"error":null}}`,
		rec.Body.String(),
	)
}

func TestSendTestEmailRequiresOperator(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/test-email", "tok-member", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgNotAuthorized, decodeBody(t, rec)["error"])
	assert.Empty(t, ts.notifier.tenantID)
}

func TestDownloadInvoicePDF(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		id     string
		status int
		msg    string
	}{
		{"operator", "tok-owner", "inv-2", http.StatusOK, ""},
		{"own client", "tok-client", "inv-1", http.StatusOK, ""},
		{"other client", "tok-client", "inv-2", http.StatusForbidden, msgAccessDenied},
		{"missing", "tok-owner", "nope", http.StatusNotFound, msgInvoiceNotFound},
		{"no client", "tok-owner", "inv-3", http.StatusBadRequest, msgInvoiceHasNoClient},
		{"inactive", "tok-disabled", "inv-1", http.StatusForbidden, msgNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodGet, "/api/invoices/"+tc.id+"/pdf", tc.token, nil)

			require.Equal(t, tc.status, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeBody(t, rec)["error"])
				return
			}
			assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="INV-000`)
			assert.Equal(t, "%PDF-1.4", rec.Body.String())
		})
	}
}

func TestOperatorRoutesUseErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/clients", "tok-member", map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"forbidden","message":"forbidden"}}`, rec.Body.String())
	assert.Zero(t, ts.clients.created)

	rec = ts.do(t, http.MethodGet, "/api/clients/c404", "tok-owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"not_found","message":"not found"}}`, rec.Body.String())
}

func TestCreateClient(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/clients", "tok-owner", map[string]string{"name": "  Acme  "})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "t1", data["tenantId"])
	assert.Equal(t, "Acme", data["name"])
	assert.Equal(t, 1, ts.clients.created)
}

func TestListAuditLogsIsOperatorOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.audit.entries = []auditdomain.AuditLog{{TenantID: "t1", ID: "a1", Action: auditdomain.ActionInvoiceStatusChanged}}

	rec := ts.do(t, http.MethodGet, "/api/audit-logs", "tok-member", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/audit-logs", "tok-owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, auditdomain.ActionInvoiceStatusChanged, data[0].(map[string]any)["action"])
}
