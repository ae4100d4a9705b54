package fsstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portal/internal/billingcycle"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
)

// Documents store money as float64 because Firestore has no decimal type.

type tenantDoc struct {
	Name      string    `firestore:"name"`
	Slug      string    `firestore:"slug"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toTenantDoc(t *tenantdomain.Tenant) tenantDoc {
	return tenantDoc{Name: t.Name, Slug: t.Slug, Status: t.Status, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

func (d tenantDoc) model(id string) *tenantdomain.Tenant {
	return &tenantdomain.Tenant{ID: id, Name: d.Name, Slug: d.Slug, Status: d.Status, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type userDoc struct {
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	TenantID    string    `firestore:"tenantId"`
	Role        string    `firestore:"role"`
	ClientID    string    `firestore:"clientId,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toUserDoc(u *tenantdomain.User) userDoc {
	return userDoc{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		TenantID:    u.TenantID,
		Role:        string(u.Role),
		ClientID:    u.ClientID,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (d userDoc) model(id string) *tenantdomain.User {
	return &tenantdomain.User{
		ID:          id,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		TenantID:    d.TenantID,
		Role:        tenantdomain.Role(d.Role),
		ClientID:    d.ClientID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type membershipDoc struct {
	UserID    string    `firestore:"userId"`
	TenantID  string    `firestore:"tenantId"`
	Role      string    `firestore:"role"`
	Status    string    `firestore:"status"`
	ClientID  string    `firestore:"clientId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toMembershipDoc(m *tenantdomain.Membership) membershipDoc {
	return membershipDoc{
		UserID:    m.UserID,
		TenantID:  m.TenantID,
		Role:      string(m.Role),
		Status:    string(m.Status),
		ClientID:  m.ClientID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (d membershipDoc) model(id string) *tenantdomain.Membership {
	return &tenantdomain.Membership{
		ID:        id,
		UserID:    d.UserID,
		TenantID:  d.TenantID,
		Role:      tenantdomain.Role(d.Role),
		Status:    tenantdomain.MembershipStatus(d.Status),
		ClientID:  d.ClientID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type emailTestDoc struct {
	LastSentAt *time.Time `firestore:"lastSentAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

type clientDoc struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toClientDoc(c *clientdomain.Client) clientDoc {
	return clientDoc{Name: c.Name, Email: c.Email, Status: string(c.Status), CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func (d clientDoc) model(tenantID, id string) *clientdomain.Client {
	return &clientdomain.Client{
		TenantID:  tenantID,
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		Status:    clientdomain.Status(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type projectDoc struct {
	ClientID   string     `firestore:"clientId"`
	ClientName string     `firestore:"clientName"`
	Name       string     `firestore:"name"`
	Status     string     `firestore:"status"`
	StartDate  *time.Time `firestore:"startDate"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

func toProjectDoc(p *projectdomain.Project) projectDoc {
	return projectDoc{
		ClientID:   p.ClientID,
		ClientName: p.ClientName,
		Name:       p.Name,
		Status:     string(p.Status),
		StartDate:  p.StartDate,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (d projectDoc) model(tenantID, id string) *projectdomain.Project {
	return &projectdomain.Project{
		TenantID:   tenantID,
		ID:         id,
		ClientID:   d.ClientID,
		ClientName: d.ClientName,
		Name:       d.Name,
		Status:     projectdomain.Status(d.Status),
		StartDate:  d.StartDate,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type subscriptionDoc struct {
	ClientID        string    `firestore:"clientId"`
	ClientName      string    `firestore:"clientName"`
	Name            string    `firestore:"name"`
	Price           *float64  `firestore:"price"`
	Currency        string    `firestore:"currency"`
	Interval        string    `firestore:"interval"`
	Status          string    `firestore:"status"`
	StartDate       time.Time `firestore:"startDate"`
	NextBillingDate time.Time `firestore:"nextBillingDate"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func toSubscriptionDoc(s *subscriptiondomain.Subscription) subscriptionDoc {
	doc := subscriptionDoc{
		ClientID:        s.ClientID,
		ClientName:      s.ClientName,
		Name:            s.Name,
		Currency:        s.Currency,
		Interval:        string(s.Interval),
		Status:          string(s.Status),
		StartDate:       s.StartDate,
		NextBillingDate: s.NextBillingDate,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.Price != nil {
		price := s.Price.InexactFloat64()
		doc.Price = &price
	}
	return doc
}

func (d subscriptionDoc) model(tenantID, id string) *subscriptiondomain.Subscription {
	sub := &subscriptiondomain.Subscription{
		TenantID:        tenantID,
		ID:              id,
		ClientID:        d.ClientID,
		ClientName:      d.ClientName,
		Name:            d.Name,
		Currency:        d.Currency,
		Interval:        billingcycle.Interval(d.Interval),
		Status:          subscriptiondomain.SubscriptionStatus(d.Status),
		StartDate:       d.StartDate,
		NextBillingDate: d.NextBillingDate,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.Price != nil {
		price := decimal.NewFromFloat(*d.Price)
		sub.Price = &price
	}
	return sub
}

type lineItemDoc struct {
	Description string  `firestore:"description"`
	Amount      float64 `firestore:"amount"`
	Currency    string  `firestore:"currency,omitempty"`
}

type invoiceDoc struct {
	ClientID       string        `firestore:"clientId"`
	ClientName     string        `firestore:"clientName"`
	InvoiceNumber  string        `firestore:"invoiceNumber"`
	Title          string        `firestore:"title"`
	Amount         float64       `firestore:"amount"`
	Currency       string        `firestore:"currency"`
	Status         string        `firestore:"status"`
	IssueDate      time.Time     `firestore:"issueDate"`
	DueDate        time.Time     `firestore:"dueDate"`
	Notes          string        `firestore:"notes,omitempty"`
	LineItems      []lineItemDoc `firestore:"lineItems,omitempty"`
	Source         string        `firestore:"source"`
	SubscriptionID string        `firestore:"subscriptionId,omitempty"`
	BillingKey     string        `firestore:"billingKey,omitempty"`
	BillingPeriod  string        `firestore:"billingPeriod,omitempty"`
	CreatedAt      time.Time     `firestore:"createdAt"`
	UpdatedAt      time.Time     `firestore:"updatedAt"`
}

func toInvoiceDoc(i *invoicedomain.Invoice) invoiceDoc {
	doc := invoiceDoc{
		ClientID:       i.ClientID,
		ClientName:     i.ClientName,
		InvoiceNumber:  i.InvoiceNumber,
		Title:          i.Title,
		Amount:         i.Amount.InexactFloat64(),
		Currency:       i.Currency,
		Status:         string(i.Status),
		IssueDate:      i.IssueDate,
		DueDate:        i.DueDate,
		Notes:          i.Notes,
		Source:         string(i.Source),
		SubscriptionID: i.SubscriptionID,
		BillingKey:     i.BillingKey,
		BillingPeriod:  i.BillingPeriod,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
	for _, item := range i.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemDoc{
			Description: item.Description,
			Amount:      item.Amount.InexactFloat64(),
			Currency:    item.Currency,
		})
	}
	return doc
}

func (d invoiceDoc) model(tenantID, id string) *invoicedomain.Invoice {
	inv := &invoicedomain.Invoice{
		TenantID:       tenantID,
		ID:             id,
		ClientID:       d.ClientID,
		ClientName:     d.ClientName,
		InvoiceNumber:  d.InvoiceNumber,
		Title:          d.Title,
		Amount:         decimal.NewFromFloat(d.Amount),
		Currency:       d.Currency,
		Status:         invoicedomain.InvoiceStatus(d.Status),
		IssueDate:      d.IssueDate,
		DueDate:        d.DueDate,
		Notes:          d.Notes,
		Source:         invoicedomain.Source(d.Source),
		SubscriptionID: d.SubscriptionID,
		BillingKey:     d.BillingKey,
		BillingPeriod:  d.BillingPeriod,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, item := range d.LineItems {
		inv.LineItems = append(inv.LineItems, invoicedomain.LineItem{
			Description: item.Description,
			Amount:      decimal.NewFromFloat(item.Amount),
			Currency:    item.Currency,
		})
	}
	return inv
}
