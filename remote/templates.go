package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/httpapi"
	"github.com/contaconmigo/contaconmigo-go/templates"
)

// templateBackend implements templates.Backend over the /templates
// endpoints. Every call goes through the authenticated dispatcher.
type templateBackend struct {
	dispatcher *httpapi.Dispatcher
}

var _ templates.Backend = (*templateBackend)(nil)

// wireTemplate accepts both "id" (list) and "template_id" (get).
type wireTemplate struct {
	ID         string               `json:"id"`
	TemplateID string               `json:"template_id"`
	Name       string               `json:"name"`
	UserID     string               `json:"user_id"`
	Fields     []contaconmigo.Field `json:"fields"`
	CreatedAt  *time.Time           `json:"created_at"`
	UpdatedAt  *time.Time           `json:"updated_at"`
}

func (w wireTemplate) template() contaconmigo.Template {
	id := w.ID
	if id == "" {
		id = w.TemplateID
	}
	return contaconmigo.Template{
		ID:        id,
		Name:      w.Name,
		UserID:    w.UserID,
		Fields:    w.Fields,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type valuesBody struct {
	Values map[string]any `json:"values"`
}

func templatePath(templateID string, rest ...string) string {
	p := "/templates/" + url.PathEscape(templateID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func (b *templateBackend) ListTemplates(ctx context.Context) ([]contaconmigo.Template, error) {
	var res struct {
		Templates []wireTemplate `json:"templates"`
	}
	if err := b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodGet, Path: "/templates"}, &res); err != nil {
		return nil, err
	}
	out := make([]contaconmigo.Template, 0, len(res.Templates))
	for _, w := range res.Templates {
		out = append(out, w.template())
	}
	return out, nil
}

func (b *templateBackend) CreateTemplate(ctx context.Context, in contaconmigo.TemplateInput) (string, error) {
	var res struct {
		TemplateID string `json:"template_id"`
	}
	err := b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodPost, Path: "/templates", Body: in}, &res)
	if err != nil {
		return "", err
	}
	return res.TemplateID, nil
}

func (b *templateBackend) GetTemplate(ctx context.Context, templateID string) (*contaconmigo.Template, error) {
	var w wireTemplate
	if err := b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodGet, Path: templatePath(templateID)}, &w); err != nil {
		return nil, err
	}
	t := w.template()
	if t.ID == "" {
		t.ID = templateID
	}
	return &t, nil
}

func (b *templateBackend) UpdateTemplate(ctx context.Context, templateID string, in contaconmigo.TemplateInput) error {
	return b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodPut, Path: templatePath(templateID), Body: in}, nil)
}

func (b *templateBackend) DeleteTemplate(ctx context.Context, templateID string, force bool) error {
	req := httpapi.Request{Method: http.MethodDelete, Path: templatePath(templateID)}
	if force {
		req.Query = url.Values{"force": {"true"}}
	}
	return b.dispatcher.Dispatch(ctx, req, nil)
}

func (b *templateBackend) SubmitEntry(ctx context.Context, templateID string, values map[string]any) error {
	return b.dispatcher.Dispatch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   templatePath(templateID, "data"),
		Body:   valuesBody{Values: values},
	}, nil)
}

func (b *templateBackend) ListEntries(ctx context.Context, templateID string) ([]contaconmigo.Entry, error) {
	var raw json.RawMessage
	if err := b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodGet, Path: templatePath(templateID, "data")}, &raw); err != nil {
		return nil, err
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].TemplateID == "" {
			entries[i].TemplateID = templateID
		}
	}
	return entries, nil
}

// decodeEntries accepts {entries:[...]} or a bare array.
func decodeEntries(raw json.RawMessage) ([]contaconmigo.Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []contaconmigo.Entry{}, nil
	}
	var entries []contaconmigo.Entry
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		return entries, nil
	}
	var wrapped struct {
		Entries []contaconmigo.Entry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	if wrapped.Entries == nil {
		wrapped.Entries = []contaconmigo.Entry{}
	}
	return wrapped.Entries, nil
}

func (b *templateBackend) GetEntry(ctx context.Context, templateID, entryID string) (*contaconmigo.Entry, error) {
	var e contaconmigo.Entry
	if err := b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodGet, Path: templatePath(templateID, "data", entryID)}, &e); err != nil {
		return nil, err
	}
	if e.TemplateID == "" {
		e.TemplateID = templateID
	}
	return &e, nil
}

func (b *templateBackend) UpdateEntry(ctx context.Context, templateID, entryID string, values map[string]any) error {
	return b.dispatcher.Dispatch(ctx, httpapi.Request{
		Method: http.MethodPut,
		Path:   templatePath(templateID, "data", entryID),
		Body:   valuesBody{Values: values},
	}, nil)
}

func (b *templateBackend) DeleteEntry(ctx context.Context, templateID, entryID string) error {
	return b.dispatcher.Dispatch(ctx, httpapi.Request{Method: http.MethodDelete, Path: templatePath(templateID, "data", entryID)}, nil)
}
