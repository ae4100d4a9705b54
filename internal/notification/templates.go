package notification

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
)

const (
	clientInvoicesTemplate = "client_invoices"
	runSummaryTemplate     = "run_summary"
)

type invoiceLine struct {
	Label    string
	Currency string
	Amount   string
	DueDate  string
	PDFURL   string
}

type clientInvoicesData struct {
	ClientName string
	TenantName string
	FromName   string
	LoginURL   string
	Items      []invoiceLine
}

type runSummaryData struct {
	TenantName string
	LoginURL   string
	Generated  int
	Skipped    int
	Errors     int
}

// render executes the text and HTML variants of the named template.
func render(name string, data any) (string, string, error) {
	var text bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return "", "", err
	}
	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return "", "", err
	}
	return text.String(), strings.TrimSpace(html.String()), nil
}
