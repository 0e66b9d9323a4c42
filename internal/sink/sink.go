package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// CyclePayload is the data passed to sinks.
type CyclePayload struct {
	CycleID        string `json:"cycle_id"`
	Status         string `json:"status"`
	Contract       string `json:"contract,omitempty"`
	CollectionName string `json:"collection_name,omitempty"`
	SampleCount    int    `json:"sample_count"`
	Price          string `json:"price,omitempty"`
	Method         string `json:"method,omitempty"`
	Gate           string `json:"gate,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Detail         string `json:"detail,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	Error          string `json:"error,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// Sender delivers a cycle report.
type Sender interface {
	Send(ctx context.Context, payload CyclePayload) error
}

// bodyFunc shapes the JSON document posted by an HTTP sink.
type bodyFunc func(text string, payload CyclePayload) any

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
	body    bodyFunc
}

// NewWebhookSender builds a generic HTTP sink. The body carries the rendered
// text next to the full cycle payload.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	return newHTTPSender(url, method, tmpl, headers, func(text string, p CyclePayload) any {
		return struct {
			Text  string       `json:"text"`
			Cycle CyclePayload `json:"cycle"`
		}{text, p}
	})
}

// NewSlackSender builds a Slack incoming-webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return newHTTPSender(url, http.MethodPost, tmpl, nil, func(text string, _ CyclePayload) any {
		return map[string]string{"text": text}
	})
}

// NewTeamsSender builds a Teams connector sink using a MessageCard coloured by status.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	return newHTTPSender(url, http.MethodPost, tmpl, nil, func(text string, p CyclePayload) any {
		return map[string]string{
			"@type":      "MessageCard",
			"@context":   "https://schema.org/extensions",
			"summary":    "mintwatch " + p.Status,
			"themeColor": statusColor(p.Status),
			"text":       text,
		}
	})
}

func newHTTPSender(url, method, tmpl string, headers map[string]string, body bodyFunc) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: h,
		body:    body,
	}, nil
}

func (s *httpSender) Send(ctx context.Context, payload CyclePayload) error {
	text, err := executeTemplate(s.render, payload)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(s.body(text, payload))
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

func statusColor(status string) string {
	switch status {
	case "minted":
		return "2EB886"
	case "failed":
		return "D50200"
	case "dry-run":
		return "439FE0"
	default:
		return "A0A0A0"
	}
}

const defaultTemplate = `mintwatch {{.Status}} {{if .CollectionName}}{{.CollectionName}} {{end}}{{short_addr .Contract}}` +
	`{{if .Reason}} reason={{.Reason}}{{end}}{{if .TxHash}} tx={{.TxHash}}{{end}}{{if .Error}} error={{.Error}}{{end}}`

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}

