package notification

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/observability/tracing"
	"github.com/smallbiznis/portal/internal/providers/email"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	kindClientInvoices = "client_invoices"
	kindTestSummary    = "test_summary"

	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	Config         config.Config
	Billing        *config.BillingConfigHolder
	Clock          clock.Clock
	Email          email.Provider
	Clients        clientdomain.Repository
	Tenants        tenantdomain.Service
	Metrics        *obsmetrics.Metrics        `optional:"true"`
	BillingMetrics *obsmetrics.BillingMetrics `optional:"true"`
}

type Dispatcher struct {
	log            *zap.Logger
	baseURL        string
	replyTo        string
	billing        *config.BillingConfigHolder
	clock          clock.Clock
	email          email.Provider
	clients        clientdomain.Repository
	tenants        tenantdomain.Service
	metrics        *obsmetrics.Metrics
	billingMetrics *obsmetrics.BillingMetrics
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:            p.Log.Named("notification.dispatcher"),
		baseURL:        strings.TrimRight(p.Config.PortalBaseURL, "/"),
		replyTo:        p.Config.SMTP.Username,
		billing:        p.Billing,
		clock:          p.Clock,
		email:          p.Email,
		clients:        p.Clients,
		tenants:        p.Tenants,
		metrics:        p.Metrics,
		billingMetrics: p.BillingMetrics,
	}
}

// DispatchAll notifies every client in batches, in client id order. A
// failed client never stops the others.
func (d *Dispatcher) DispatchAll(ctx context.Context, tenantID string, batches map[string][]BatchItem) EmailSummary {
	summary := EmailSummary{
		Attempted: len(batches) > 0,
		Details:   []ClientDetail{},
	}
	if len(batches) == 0 {
		return summary
	}

	tenantName := d.tenants.DisplayName(ctx, tenantID)
	clientIDs := lo.Keys(batches)
	sort.Strings(clientIDs)

	for _, clientID := range clientIDs {
		detail := d.NotifyClient(ctx, tenantID, tenantName, clientID, batches[clientID])
		if detail.Sent {
			summary.SentCount++
		} else {
			summary.FailedCount++
		}
		summary.Details = append(summary.Details, detail)
	}
	return summary
}

// NotifyClient sends one message listing every invoice in batch.
func (d *Dispatcher) NotifyClient(ctx context.Context, tenantID, tenantName, clientID string, batch []BatchItem) ClientDetail {
	ctx, span := tracing.Tracer("notification").Start(ctx, "notification.client")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("client.id", clientID),
		attribute.Int("invoice.count", len(batch)),
	)...)

	log := d.log.With(zap.String("tenant_id", tenantID), zap.String("client_id", clientID))
	detail := ClientDetail{ClientID: clientID}

	client, err := d.clients.FindClient(ctx, tenantID, clientID)
	if err != nil {
		detail.Error = err.Error()
		d.recordFailure(ctx, span, kindClientInvoices, err)
		log.Warn("notification.client.lookup_failed", zap.Error(err))
		return detail
	}
	if client == nil {
		detail.Error = msgClientNotFound
		d.recordSkip(ctx, kindClientInvoices)
		return detail
	}
	to := strings.TrimSpace(client.Email)
	if to == "" {
		detail.Error = msgEmailMissing
		d.recordSkip(ctx, kindClientInvoices)
		return detail
	}
	detail.To = to

	clientName := strings.TrimSpace(client.Name)
	if clientName == "" {
		clientName = clientID
	}
	msg, err := d.clientMessage(to, clientName, tenantName, batch)
	if err == nil {
		err = d.deliver(ctx, msg)
	}
	if err != nil {
		sendErr := email.AsSendError(err)
		detail.Error = sendErr.Error()
		detail.Code = sendErr.Code
		detail.Response = sendErr.Response
		d.recordFailure(ctx, span, kindClientInvoices, err)
		log.Warn("notification.client.failed",
			zap.String("code", sendErr.Code),
			zap.String("command", sendErr.Command),
			zap.Error(err),
		)
		return detail
	}

	detail.Sent = true
	d.metrics.RecordNotification(ctx, kindClientInvoices, outcomeSent)
	d.billingMetrics.IncNotification(outcomeSent)
	log.Info("notification.client.sent", zap.Int("invoice_count", len(batch)))
	return detail
}

// SendTestNotification emails a sample run summary. Without an override
// recipient the tenant owner receives it, at most once per cooldown.
func (d *Dispatcher) SendTestNotification(ctx context.Context, tenantID, override string) (TestResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return TestResult{}, ErrInvalidTenant
	}
	override = strings.TrimSpace(override)
	now := d.clock.Now()

	if override == "" {
		last, err := d.tenants.LastTestEmailAt(ctx, tenantID)
		if err != nil {
			return TestResult{}, err
		}
		cooldown := d.billing.Get().TestEmailCooldown
		if last != nil && last.After(now.Add(-cooldown)) {
			d.metrics.RecordNotification(ctx, kindTestSummary, outcomeSkipped)
			return TestResult{}, ErrCooldownActive
		}
	}

	to := override
	if to == "" {
		owner, err := d.tenants.OwnerEmail(ctx, tenantID)
		if err != nil {
			return TestResult{}, err
		}
		to = owner
	}
	if to == "" {
		return TestResult{Error: &TestError{Message: msgNoOwnerEmail}}, nil
	}

	result := TestResult{Attempted: true, To: &to}
	msg, err := d.summaryMessage(to, d.tenants.DisplayName(ctx, tenantID), 1, 0, 0)
	if err == nil {
		err = d.deliver(ctx, msg)
	}
	if err != nil {
		result.Error = testError(err)
		d.metrics.RecordNotification(ctx, kindTestSummary, outcomeFailed)
		d.log.Warn("notification.test.failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return result, nil
	}
	result.Sent = true
	d.metrics.RecordNotification(ctx, kindTestSummary, outcomeSent)

	if err := d.tenants.MarkTestEmailSent(ctx, tenantID, now); err != nil {
		d.log.Warn("notification.test.mark_failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	d.log.Info("notification.test.sent", zap.String("tenant_id", tenantID), zap.Bool("override", override != ""))
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg email.Message) error {
	if err := d.email.Verify(ctx); err != nil {
		return err
	}
	return d.email.Send(ctx, msg)
}

func (d *Dispatcher) clientMessage(to, clientName, tenantName string, batch []BatchItem) (email.Message, error) {
	data := clientInvoicesData{
		ClientName: clientName,
		TenantName: tenantName,
		FromName:   d.billing.Get().NotificationFromName,
		LoginURL:   d.baseURL + "/login",
		Items: lo.Map(batch, func(item BatchItem, _ int) invoiceLine {
			return invoiceLine{
				Label:    item.Label,
				Currency: item.Currency,
				Amount:   item.Amount.String(),
				DueDate:  item.DueDate,
				PDFURL:   d.pdfURL(item.InvoiceID),
			}
		}),
	}
	text, html, err := render(clientInvoicesTemplate, data)
	if err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      []string{to},
		Subject: "New invoice(s) available – " + tenantName,
		Text:    text,
		HTML:    html,
		ReplyTo: d.replyTo,
	}, nil
}

func (d *Dispatcher) summaryMessage(to, tenantName string, generated, skipped, errorsCount int) (email.Message, error) {
	text, html, err := render(runSummaryTemplate, runSummaryData{
		TenantName: tenantName,
		LoginURL:   d.baseURL + "/login",
		Generated:  generated,
		Skipped:    skipped,
		Errors:     errorsCount,
	})
	if err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      []string{to},
		Subject: "Invoices Generated – " + tenantName,
		Text:    strings.TrimRight(text, "\n"),
		HTML:    html,
	}, nil
}

func (d *Dispatcher) pdfURL(invoiceID string) string {
	return d.baseURL + "/api/invoices/" + invoiceID + "/pdf"
}

func (d *Dispatcher) recordFailure(ctx context.Context, span trace.Span, kind string, err error) {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "notification failed")
	d.metrics.RecordNotification(ctx, kind, outcomeFailed)
	d.billingMetrics.IncNotification(outcomeFailed)
}

func (d *Dispatcher) recordSkip(ctx context.Context, kind string) {
	d.metrics.RecordNotification(ctx, kind, outcomeSkipped)
	d.billingMetrics.IncNotification(outcomeSkipped)
}

func testError(err error) *TestError {
	sendErr := email.AsSendError(err)
	out := &TestError{Message: sendErr.Error()}
	if sendErr.Code != "" {
		out.Code = &sendErr.Code
	}
	if sendErr.Response != "" {
		out.Response = &sendErr.Response
	}
	if sendErr.ResponseCode != 0 {
		out.ResponseCode = &sendErr.ResponseCode
	}
	if sendErr.Command != "" {
		out.Command = &sendErr.Command
	}
	return out
}
