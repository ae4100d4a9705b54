package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/portal/internal/invoice/format"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/providers/pdf"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/smallbiznis/portal/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxNumberAttempts = 8

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Repo     invoicedomain.Repository
	Clients  clientdomain.Repository
	Tenants  tenantdomain.Service
	Renderer pdf.Renderer
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	repo     invoicedomain.Repository
	clients  clientdomain.Repository
	tenants  tenantdomain.Service
	renderer pdf.Renderer
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		billing:  p.Billing,
		repo:     p.Repo,
		clients:  p.Clients,
		tenants:  p.Tenants,
		renderer: p.Renderer,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}

	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Title = strings.TrimSpace(req.Title)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}

	client, err := s.clients.FindClient(ctx, tenantID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, invoicedomain.ErrInvalidClient
	}

	billingCfg := s.billing.Get()
	now := s.clock.Now()
	issue := now
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	due := issue.AddDate(0, 0, billingCfg.DueWindowDays)
	if req.DueDate != nil {
		due = *req.DueDate
	}
	currency := req.Currency
	if currency == "" {
		currency = billingCfg.DefaultCurrency
	}

	invoice := &invoicedomain.Invoice{
		TenantID:   tenantID,
		ID:         s.genID.Generate().String(),
		ClientID:   client.ID,
		ClientName: client.Name,
		Title:      req.Title,
		Amount:     req.Amount,
		Currency:   currency,
		Status:     invoicedomain.InvoiceStatusUnpaid,
		IssueDate:  issue,
		DueDate:    due,
		Notes:      strings.TrimSpace(req.Notes),
		LineItems:  datatypes.NewJSONSlice(req.LineItems),
		Source:     invoicedomain.SourceManual,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	number, err := s.insertNumbered(ctx, invoice)
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice.created",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", number),
	)
	return invoice, nil
}

// insertNumbered assigns the next count-based number and inserts. A taken
// number means a concurrent create won it, so the sequence moves on.
func (s *Service) insertNumbered(ctx context.Context, invoice *invoicedomain.Invoice) (string, error) {
	count, err := s.repo.CountInvoices(ctx, invoice.TenantID)
	if err != nil {
		return "", err
	}
	for attempt := int64(0); attempt < maxNumberAttempts; attempt++ {
		number, err := invoiceformat.FormatInvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, invoice.IssueDate, count+1+attempt)
		if err != nil {
			return "", err
		}
		invoice.InvoiceNumber = number
		err = s.repo.InsertInvoice(ctx, invoice)
		if !errors.Is(err, invoicedomain.ErrAlreadyExists) {
			return number, err
		}
		s.log.Warn("invoice.number_taken",
			zap.String("tenant_id", invoice.TenantID),
			zap.String("invoice_number", number),
		)
	}
	return "", invoicedomain.ErrAlreadyExists
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidTenant
	}

	filter := invoicedomain.ListInvoiceFilter{ClientID: strings.TrimSpace(req.ClientID)}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = invoicedomain.InvoiceStatus(status)
		if !filter.Status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
	}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped {
		if clientID == "" {
			return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{}}, nil
		}
		filter.ClientID = clientID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListInvoices(ctx, tenantID, filter, page)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	invoices, info := pagination.BuildPage(items, page.Limit(), func(inv *invoicedomain.Invoice) pagination.Cursor {
		return pagination.CursorFor(inv.ID, inv.CreatedAt)
	})
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}
	return s.find(ctx, tenantID, id)
}

func (s *Service) SetStatus(ctx context.Context, id string, status invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if !status.Valid() {
		return nil, invoicedomain.ErrInvalidStatus
	}

	updated, err := s.repo.UpdateInvoiceStatus(ctx, tenantID, id, status)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	s.log.Info("invoice.status_changed",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", id),
		zap.String("status", string(status)),
	)
	return updated, nil
}

func (s *Service) RenderPDF(ctx context.Context, id string) (*invoicedomain.PDF, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}

	invoice, err := s.find(ctx, tenantID, id)
	if err != nil {
		s.metrics.RecordPDFRender(ctx, tenantID, "rejected")
		return nil, err
	}
	if invoice.ClientID == "" {
		s.metrics.RecordPDFRender(ctx, tenantID, "rejected")
		return nil, invoicedomain.ErrMissingClient
	}

	doc, err := s.document(ctx, tenantID, invoice)
	if err != nil {
		s.metrics.RecordPDFRender(ctx, tenantID, "failed")
		return nil, err
	}

	content, err := s.renderer.RenderInvoice(ctx, doc)
	if err != nil {
		s.metrics.RecordPDFRender(ctx, tenantID, "failed")
		return nil, err
	}
	s.metrics.RecordPDFRender(ctx, tenantID, "rendered")

	return &invoicedomain.PDF{
		Filename: doc.InvoiceNumber + ".pdf",
		Content:  content,
	}, nil
}

func (s *Service) document(ctx context.Context, tenantID string, invoice *invoicedomain.Invoice) (pdf.InvoiceDocument, error) {
	client, err := s.clients.FindClient(ctx, tenantID, invoice.ClientID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	clientName, clientEmail := invoice.ClientName, ""
	if client != nil {
		if client.Name != "" {
			clientName = client.Name
		}
		clientEmail = client.Email
	}

	items := make([]pdf.LineItem, 0, len(invoice.LineItems))
	for _, item := range invoice.LineItems {
		items = append(items, pdf.LineItem{
			Description: item.Description,
			Amount:      item.Amount,
			Currency:    item.Currency,
		})
	}

	due := invoice.DueDate
	var dueDate *time.Time
	if !due.IsZero() {
		dueDate = &due
	}

	return pdf.InvoiceDocument{
		TenantName:    s.tenants.DisplayName(ctx, tenantID),
		InvoiceNumber: invoice.DisplayNumber(),
		Status:        string(invoice.Status),
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		DueDate:       dueDate,
		Notes:         invoice.Notes,
		LineItems:     items,
		ClientName:    clientName,
		ClientEmail:   clientEmail,
	}, nil
}

// find loads an invoice and applies the caller's client scope.
func (s *Service) find(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.repo.FindInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped && invoice.ClientID != clientID {
		return nil, invoicedomain.ErrAccessDenied
	}
	return invoice, nil
}
