// Package format renders invoice numbers from a token template.
package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultInvoiceNumberTemplate numbers manual invoices per tenant and month.
const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ4}"

var ErrEmptyTemplate = errors.New("invoice number template is empty")

// FormatInvoiceNumber expands {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}, where
// n zero-pads the sequence. A sequence wider than n is not truncated.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", ErrEmptyTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return "", fmt.Errorf("unbalanced '}' in invoice number template %q", template)
			}
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated token in invoice number template %q", template)
		}
		b.WriteString(rest[:open])

		token := rest[open+1 : open+end]
		value, err := expand(token, issuedAt, seq)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		rest = rest[open+end+1:]
	}
}

func expand(token string, issuedAt time.Time, seq int64) (string, error) {
	switch token {
	case "YYYY":
		return issuedAt.Format("2006"), nil
	case "YY":
		return issuedAt.Format("06"), nil
	case "MM":
		return issuedAt.Format("01"), nil
	case "DD":
		return issuedAt.Format("02"), nil
	case "SEQ":
		return strconv.FormatInt(seq, 10), nil
	}
	if width, ok := strings.CutPrefix(token, "SEQ"); ok {
		if n, err := strconv.Atoi(width); err == nil && n > 0 && n <= 12 {
			return fmt.Sprintf("%0*d", n, seq), nil
		}
	}
	return "", fmt.Errorf("unknown invoice number token {%s}", token)
}
