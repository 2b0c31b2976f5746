package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"protection-relay/protection/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	accessTokenHeader = "X-Shopify-Access-Token"
	// corpo de erro guardado no RemoteError; o resto é descartado
	maxErrorBody = 4 << 10
)

// AdminClient escreve o preço da variante na API admin da loja.
//
// Implementa domain.VariantWriter. Não faz retry: qualquer falha volta
// imediatamente para quem chamou.
type AdminClient struct {
	httpClient  *http.Client
	baseURL     string
	apiVersion  string
	accessToken string
	tracer      trace.Tracer
}

var _ domain.VariantWriter = (*AdminClient)(nil)

type AdminOption func(*AdminClient)

// WithHTTPClient troca o http.Client (ex: testes, transport customizado).
func WithHTTPClient(c *http.Client) AdminOption {
	return func(a *AdminClient) { a.httpClient = c }
}

// WithBaseURL ignora o domínio e usa a URL informada (ex: httptest, cmd/fake-admin).
func WithBaseURL(u string) AdminOption {
	return func(a *AdminClient) { a.baseURL = strings.TrimSuffix(u, "/") }
}

// NewAdminClient monta o cliente para https://{storeDomain}/admin/api/{apiVersion}.
func NewAdminClient(storeDomain, apiVersion, accessToken string, opts ...AdminOption) *AdminClient {
	domainHost := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(storeDomain), "https://"), "/")
	a := &AdminClient{
		// sem Timeout aqui: o limite vem do ctx de cada chamada
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL:     "https://" + domainHost,
		apiVersion:  apiVersion,
		accessToken: accessToken,
		tracer:      otel.Tracer("protection-relay/admin"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type variantEnvelope struct {
	Variant variantPayload `json:"variant"`
}

type variantPayload struct {
	ID    json.Number `json:"id"`
	Price string      `json:"price"`
}

// UpdatePrice envia o preço com exatamente duas casas decimais.
func (a *AdminClient) UpdatePrice(ctx context.Context, variantID string, price decimal.Decimal) (domain.UpdatedVariant, error) {
	ctx, span := a.tracer.Start(ctx, "admin.UpdateVariantPrice", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	formatted := price.StringFixed(2)
	endpoint := fmt.Sprintf("%s/admin/api/%s/variants/%s.json", a.baseURL, a.apiVersion, variantID)
	span.SetAttributes(
		attribute.String("variant.id", variantID),
		attribute.String("variant.price", formatted),
		attribute.String("http.url", endpoint),
		attribute.String("http.method", http.MethodPut),
	)

	body, err := json.Marshal(variantEnvelope{Variant: variantPayload{
		ID:    json.Number(variantID),
		Price: formatted,
	}})
	if err != nil {
		return domain.UpdatedVariant{}, a.fail(span, errors.Wrap(err, "encode variant payload"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.UpdatedVariant{}, a.fail(span, errors.Wrap(err, "build admin request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, a.accessToken)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.UpdatedVariant{}, a.fail(span, errors.Wrap(err, "admin request"))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.UpdatedVariant{}, a.fail(span, &domain.RemoteError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(raw)),
		})
	}

	var out variantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.UpdatedVariant{}, a.fail(span, errors.Wrap(err, "decode admin response"))
	}

	id := out.Variant.ID.String()
	if id == "" {
		id = variantID
	}
	return domain.UpdatedVariant{ID: id, Price: out.Variant.Price}, nil
}

func (a *AdminClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// NumericVariantID aceita "123" ou "gid://shopify/ProductVariant/123" e
// devolve "123". A API REST só aceita o id numérico.
func NumericVariantID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if i := strings.LastIndex(id, "/"); i >= 0 && strings.HasPrefix(id, "gid://") {
		id = id[i+1:]
	}
	if id == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", false
	}
	return id, true
}
