package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/util"
)

// Client sends the per-cycle summary through the Resend HTTP API.
type Client struct {
	apiURL      string
	apiKey      string
	from        string
	to          []string
	location    *time.Location
	client      *http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time
}

type Options struct {
	APIURL   string
	APIKey   string
	From     string
	To       []string
	Location *time.Location
}

func New(opts Options) *Client {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	var to []string
	for _, addr := range opts.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &Client{
		apiURL:   opts.APIURL,
		apiKey:   opts.APIKey,
		from:     opts.From,
		to:       to,
		location: loc,
		client:   &http.Client{Timeout: 15 * time.Second},
		// Resend allows 2 requests per second per team.
		rateLimiter: rate.NewLimiter(rate.Limit(2), 1),
		now:         time.Now,
	}
}

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Notify emails one table listing every ad. It is a no-op for an empty batch
// or when no API key or recipient is configured. Failures are not retried.
func (c *Client) Notify(ctx context.Context, ads []models.EnrichedAd) error {
	if len(ads) == 0 {
		return nil
	}
	if c.apiKey == "" || len(c.to) == 0 {
		slog.Info("Email not configured, skipping notification", "ads", len(ads))
		return nil
	}

	body, err := renderBody(c.now().In(c.location), ads)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	payload, err := json.Marshal(emailPayload{
		From:    c.from,
		To:      c.to,
		Subject: Subject(len(ads)),
		HTML:    body,
	})
	if err != nil {
		return err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend status: %s, body: %s", resp.Status, string(respBody))
	}
	slog.Info("Email sent", "ads", len(ads), "to", len(c.to))
	return nil
}

// Subject is the email subject for a batch of n ads.
func Subject(n int) string {
	return fmt.Sprintf("Monitor OLX: %d novos carros!", n)
}

var bodyTemplate = template.Must(template.New("email").Parse(`<h1>Novos Carros Encontrados - {{.Timestamp}}</h1>
<table border="1" style="border-collapse: collapse; width: 100%; font-family: Arial, sans-serif;">
<tr style="background-color: #6e0ad6; color: white;"><th>Cidade</th><th>Título</th><th>Preço OLX</th><th>Preço FIPE</th><th>Diferença</th><th>Link</th></tr>
{{- range .Rows}}
<tr><td style="padding: 8px;">{{.City}}</td><td style="padding: 8px;">{{.Title}}</td><td style="padding: 8px;">{{.Price}}</td><td style="padding: 8px;">{{.Reference}}</td><td style="padding: 8px; color: {{.DiffColor}}; font-weight: bold;">{{.Diff}}</td><td style="padding: 8px;"><a href="{{.URL}}">Ver</a></td></tr>
{{- end}}
</table>`))

type bodyRow struct {
	City, Title, Price, Reference string
	Diff, DiffColor               string
	URL                           string
}

func renderBody(now time.Time, ads []models.EnrichedAd) (string, error) {
	rows := make([]bodyRow, 0, len(ads))
	for _, ad := range ads {
		diff, color := priceDifference(ad.PriceText, ad.ReferencePrice)
		rows = append(rows, bodyRow{
			City:      ad.MatchedCity,
			Title:     ad.Title,
			Price:     ad.PriceText,
			Reference: ad.ReferencePrice,
			Diff:      diff,
			DiffColor: color,
			URL:       ad.URL,
		})
	}

	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Timestamp string
		Rows      []bodyRow
	}{now.Format("02/01/2006 15:04"), rows})
	return buf.String(), err
}

// priceDifference returns price minus the reference price and its color:
// green when the ad is below FIPE, red otherwise.
func priceDifference(price, reference string) (string, string) {
	if strings.EqualFold(strings.TrimSpace(reference), models.NotInformed) {
		return "N/A", "black"
	}
	diff := util.ParsePrice(price) - util.ParsePrice(reference)
	color := "red"
	if diff < 0 {
		color = "green"
	}
	return util.FormatBRL(float64(diff)), color
}
