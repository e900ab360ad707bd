package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/textproto"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/storage"
)

var billTemplate = template.Must(template.New("bill").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<h2>Electricity Bill: {{.BillingPeriod}}</h2>
<p>Tariff: {{.TariffType}}. Billing days: {{.BillingDays}}. Total consumption: {{money .TotalConsumption}} kWh
(average {{money .AverageDailyConsumption}} kWh/day).</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Charge</th><th>kWh</th><th>Rate</th><th>Amount</th></tr>
{{- range .Segments}}
<tr><td>{{.Label}}</td><td>{{money .Consumption}}</td><td>{{.Rate}}</td><td>{{money .Cost}}</td></tr>
{{- range .Tiers}}
<tr><td>&nbsp;&nbsp;{{.Label}}</td><td>{{money .Consumption}}</td><td>{{.Rate}}</td><td>{{money .Cost}}</td></tr>
{{- end}}
{{- end}}
{{- if not .FixedCharge.IsZero}}
<tr><td>Fixed Charge</td><td></td><td></td><td>{{money .FixedCharge}}</td></tr>
{{- end}}
<tr><th colspan="3">Total</th><th>{{money .TotalCost}}</th></tr>
</table>
`))

// RenderBill renders the HTML body of a bill email.
func RenderBill(summary billing.BillSummary) (string, error) {
	var buf bytes.Buffer
	if err := billTemplate.Execute(&buf, summary); err != nil {
		return "", fmt.Errorf("render bill email: %w", err)
	}
	return buf.String(), nil
}

// SendBill emails summary to the given address. pdf, when non-empty, is
// attached as the rendered bill document.
func (s *Service) SendBill(ctx context.Context, to string, summary billing.BillSummary, pdf []byte) error {
	body, err := RenderBill(summary)
	if err != nil {
		return err
	}
	msg := Message{
		To:      to,
		Subject: "Electricity bill for " + summary.BillingPeriod,
		HTML:    body,
	}
	if len(pdf) > 0 {
		msg.Attachment = &Attachment{
			Filename:    "bill.pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}
	}
	return s.Send(ctx, msg)
}

// buildMIME assembles the raw SMTP message. Messages with an attachment
// are sent as multipart/mixed.
func buildMIME(cfg *storage.EmailConfig, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", cfg.FromName), cfg.FromAddress)
	}
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Attachment == nil {
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(msg.HTML)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=\"UTF-8\""}})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}

	a := msg.Attachment
	part, err = mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {a.ContentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(a.Content)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return nil, err
		}
		encoded = encoded[76:]
	}
	if _, err := part.Write([]byte(encoded)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
