package protection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"protection-relay/protection/domain"
	"protection-relay/protection/infra"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

// Applier é o caso de uso que o handler despacha (application.ProtectionService).
type Applier interface {
	Apply(ctx context.Context, req domain.PriceUpdateRequest) (domain.PricingResult, error)
}

// StatsReader serve GET /stats (infra.MemoryStatsStore).
type StatsReader interface {
	Snapshot() infra.StatsSnapshot
}

// HistoryReader serve GET /history (infra.MySQLStatsStore).
type HistoryReader interface {
	Recent(ctx context.Context, variantID string, limit int) ([]infra.PriceUpdate, error)
}

// SharedPriceReader devolve o último preço gravado por qualquer réplica
// (infra.RedisStatsStore).
type SharedPriceReader interface {
	LastPrice(ctx context.Context, variantID string) (string, bool, error)
}

// Handler traduz HTTP <-> caso de uso. Stats e History são opcionais;
// sem eles as rotas correspondentes não são registradas. Shared só
// acrescenta shared_last_price em GET /stats.
type Handler struct {
	Service          Applier
	Stats            StatsReader
	History          HistoryReader
	Shared           SharedPriceReader
	DefaultVariantID string
}

type updateResponse struct {
	Success   bool        `json:"success"`
	VariantID string      `json:"variant_id,omitempty"`
	NewPrice  json.Number `json:"new_price,omitempty"`
	Note      string      `json:"note,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// updateBody mantém os campos crus: número e string numérica são aceitos,
// e cada campo tem sua própria mensagem de erro.
type updateBody struct {
	Subtotal  json.RawMessage `json:"subtotal"`
	Reset     json.RawMessage `json:"reset"`
	NewPrice  json.RawMessage `json:"new_price"`
	VariantID json.RawMessage `json:"variant_id"`
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /update-protection", h.UpdateProtection)
	mux.HandleFunc("GET /health", h.Health)
	if h.Stats != nil {
		mux.HandleFunc("GET /stats", h.StatsSnapshot)
	}
	if h.History != nil {
		mux.HandleFunc("GET /history", h.PriceHistory)
	}
}

func (h *Handler) UpdateProtection(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	req, err := decodeUpdate(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Info().Err(err).Msg("rejected protection update")
		writeJSON(w, http.StatusBadRequest, updateResponse{Error: err.Error()})
		return
	}

	res, err := h.Service.Apply(r.Context(), req)
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Int("status", status).Msg("protection update failed")
		}
		writeJSON(w, status, updateResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Success:   true,
		VariantID: res.VariantID,
		NewPrice:  json.Number(res.NewPrice.StringFixed(2)),
		Note:      res.Note,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type statsResponse struct {
	infra.StatsSnapshot
	SharedLastPrice map[string]string `json:"shared_last_price,omitempty"`
}

func (h *Handler) StatsSnapshot(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{StatsSnapshot: h.Stats.Snapshot()}
	if h.Shared != nil {
		resp.SharedLastPrice = h.sharedPrices(r.Context(), resp.ByVariant)
	}
	writeJSON(w, http.StatusOK, resp)
}

// sharedPrices consulta a variante padrão e as que esta réplica já viu.
// Falha no Redis só é logada: o snapshot local continua sendo servido.
func (h *Handler) sharedPrices(ctx context.Context, local map[string]infra.VariantStats) map[string]string {
	ids := make([]string, 0, len(local)+1)
	if h.DefaultVariantID != "" {
		ids = append(ids, h.DefaultVariantID)
	}
	for id := range local {
		if id != h.DefaultVariantID {
			ids = append(ids, id)
		}
	}

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		price, ok, err := h.Shared.LastPrice(ctx, id)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("variant_id", id).Msg("shared last price lookup failed")
			continue
		}
		if ok {
			out[id] = price
		}
	}
	return out
}

type historyEntry struct {
	VariantID string      `json:"variant_id"`
	Mode      string      `json:"mode"`
	Price     json.Number `json:"price"`
	Success   bool        `json:"success"`
	Status    int         `json:"status,omitempty"`
	CreatedAt string      `json:"created_at"`
}

func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	variantID := h.DefaultVariantID
	if v := r.URL.Query().Get("variant_id"); v != "" {
		id, ok := infra.NumericVariantID(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, updateResponse{Error: "variant_id must be a numeric id"})
			return
		}
		variantID = id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.History.Recent(r.Context(), variantID, limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("price history query failed")
		writeJSON(w, http.StatusInternalServerError, updateResponse{Error: "internal error"})
		return
	}

	out := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyEntry{
			VariantID: row.VariantID,
			Mode:      row.Mode,
			Price:     json.Number(row.Price),
			Success:   row.Success,
			Status:    row.Status,
			CreatedAt: row.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant_id": variantID, "updates": out})
}

// errorResponse mapeia a taxonomia de erros para status e mensagem pública.
func errorResponse(err error) (int, string) {
	var re *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &re):
		return http.StatusInternalServerError, "failed to update variant price: " + re.Error()
	case errors.Is(err, domain.ErrVariantBusy):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, "failed to update variant price: remote admin API call timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func decodeUpdate(r io.Reader) (domain.PriceUpdateRequest, error) {
	var body updateBody
	dec := json.NewDecoder(r)
	if err := dec.Decode(&body); err != nil {
		return nil, domain.InvalidInputf("request body must be a JSON object")
	}

	variantID, err := parseVariantID(body.VariantID)
	if err != nil {
		return nil, err
	}

	reset, err := parseFlag(body.Reset)
	if err != nil {
		return nil, err
	}

	if reset {
		price, ok, err := parseAmount(body.NewPrice)
		if errors.Is(err, errAmountRange) {
			return nil, domain.InvalidInputf("new_price must be at most %s", domain.MaxAmount.StringFixed(2))
		}
		if err != nil || (ok && !price.IsPositive()) {
			return nil, domain.InvalidInputf("new_price must be a number greater than 0")
		}
		if !ok {
			return nil, domain.InvalidInputf("new_price is required when reset is true")
		}
		return domain.ResetRequest{NewPrice: price, VariantID: variantID}, nil
	}

	subtotal, ok, err := parseAmount(body.Subtotal)
	if errors.Is(err, errAmountRange) {
		return nil, domain.InvalidInputf("subtotal must be at most %s", domain.MaxAmount.StringFixed(2))
	}
	if err != nil || (ok && subtotal.IsNegative()) {
		return nil, domain.InvalidInputf("subtotal must be a number greater than or equal to 0")
	}
	if !ok {
		return nil, domain.InvalidInputf("subtotal is required")
	}
	return domain.CalculateRequest{Subtotal: subtotal, VariantID: variantID}, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

var errAmountRange = errors.New("amount out of range")

// parseAmount aceita 12.5 ou "12.5". ok=false quando ausente, null ou "".
// Valores fora de domain.AmountInRange (ex: 1e400) voltam errAmountRange.
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool, error) {
	if isNull(raw) {
		return decimal.Zero, false, nil
	}
	s := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Zero, false, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !domain.AmountInRange(d) {
		return decimal.Zero, false, errAmountRange
	}
	return d, true, nil
}

func parseFlag(raw json.RawMessage) (bool, error) {
	if isNull(raw) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return false, nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
	}
	return false, domain.InvalidInputf("reset must be a boolean")
}

func parseVariantID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", domain.InvalidInputf("variant_id must be a string or number")
		}
		s = n.String()
	}
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	id, ok := infra.NumericVariantID(s)
	if !ok {
		return "", domain.InvalidInputf("variant_id must be a numeric id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
