package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"oraclehub/internal/api/http/mw"
	"oraclehub/internal/domain"
	"oraclehub/internal/resolver"
	"oraclehub/internal/service"
	"oraclehub/pkg/httputil"
	"strconv"
	"strings"
)

var (
	errBadRequest = errors.New("bad request")
	errNoCaller   = errors.New("caller identity required")
	errNoPrice    = errors.New("price not found")
)

type priceView struct {
	Price        string `json:"price"`
	PriceDecimal string `json:"price_decimal"`
	Timestamp    uint64 `json:"timestamp"`
}

type resolvedView struct {
	Asset    string     `json:"asset"`
	Decimals uint32     `json:"decimals"`
	OracleID string     `json:"oracle_id,omitempty"`
	Skipped  []skipView `json:"skipped,omitempty"`
	priceView
}

type skipView struct {
	OracleID string `json:"oracle_id"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
}

type historyView struct {
	Asset    string      `json:"asset"`
	Decimals uint32      `json:"decimals"`
	Records  []priceView `json:"records"`
}

func newPriceView(p domain.PriceData, decimals uint32) priceView {
	return priceView{
		Price:        p.Price.String(),
		PriceDecimal: service.FormatPrice(p.Price, decimals),
		Timestamp:    p.Timestamp,
	}
}

func newHistoryView(asset domain.Asset, decimals uint32, records []domain.PriceData) historyView {
	out := historyView{Asset: asset.String(), Decimals: decimals, Records: make([]priceView, 0, len(records))}
	for _, p := range records {
		out.Records = append(out.Records, newPriceView(p, decimals))
	}
	return out
}

func newResolvedView(asset domain.Asset, decimals uint32, res resolver.Result) resolvedView {
	out := resolvedView{
		Asset:     asset.String(),
		Decimals:  decimals,
		OracleID:  res.OracleID,
		priceView: newPriceView(res.Price, decimals),
	}
	for _, sk := range res.Skipped {
		v := skipView{OracleID: sk.OracleID, Reason: sk.Reason}
		if sk.Err != nil {
			v.Error = sk.Err.Error()
		}
		out.Skipped = append(out.Skipped, v)
	}
	return out
}

func (h *Handler) ok(w http.ResponseWriter, body any) {
	if err := httputil.JSON(w, http.StatusOK, body, nil); err != nil {
		h.Log.Errorf("Failed to write response, error=%v", err)
	}
}

func (h *Handler) noContent(w http.ResponseWriter) {
	_ = httputil.JSON(w, http.StatusNoContent, nil, nil)
}

// fail maps an error to a status and a stable error code.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.Log.Errorf("Request %s %s failed, error=%v", r.Method, r.URL.Path, err)
	}
	if werr := httputil.Error(w, r, status, code, err.Error(), nil); werr != nil {
		h.Log.Errorf("Failed to write error response, error=%v", werr)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errNoCaller):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errNoPrice):
		return http.StatusNotFound, "price_not_found"
	case errors.Is(err, service.ErrStoreNotFound):
		return http.StatusNotFound, "store_not_found"
	case errors.Is(err, service.ErrUnknownAdminOp):
		return http.StatusNotFound, "unknown_admin_op"
	case errors.Is(err, service.ErrMissingNewAdmin):
		return http.StatusBadRequest, "missing_new_admin"
	}

	switch domain.KindOf(err) {
	case domain.ErrUnauthorized:
		return http.StatusForbidden, "unauthorized"
	case domain.ErrAssetNotFound:
		return http.StatusNotFound, "asset_not_found"
	case domain.ErrOracleNotFound:
		return http.StatusNotFound, "oracle_not_found"
	case domain.ErrStaleOrMissing:
		return http.StatusNotFound, "stale_or_missing"
	case domain.ErrNotInitialized:
		return http.StatusConflict, "not_initialized"
	case domain.ErrAlreadyInitialized:
		return http.StatusConflict, "already_initialized"
	case domain.ErrNoPendingAdmin:
		return http.StatusConflict, "no_pending_admin"
	case domain.ErrArithmeticOverflow:
		return http.StatusUnprocessableEntity, "arithmetic_overflow"
	case domain.ErrInvalidAssets, domain.ErrInvalidAssetID:
		return http.StatusBadRequest, "invalid_assets"
	case domain.ErrLengthMismatch:
		return http.StatusBadRequest, "length_mismatch"
	case domain.ErrInvalidTimestamp:
		return http.StatusBadRequest, "invalid_timestamp"
	case domain.ErrInvalidPrice:
		return http.StatusBadRequest, "invalid_price"
	case domain.ErrInvalidConfig:
		return http.StatusBadRequest, "invalid_config"
	}
	return http.StatusInternalServerError, "internal"
}

func caller(r *http.Request) (domain.Address, error) {
	c := mw.CallerFromContext(r.Context())
	if c == "" {
		return "", errNoCaller
	}
	return c, nil
}

func decode(r *http.Request, dst any) error {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func queryAsset(r *http.Request) (domain.Asset, error) {
	raw := r.URL.Query().Get("asset")
	if raw == "" {
		return domain.Asset{}, fmt.Errorf("%w: asset is required", errBadRequest)
	}
	a, err := domain.ParseAsset(raw)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return a, nil
}

// queryUint parses an optional unsigned query value; def is used when it is absent.
func queryUint(r *http.Request, key string, bits int, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, key)
	}
	return v, nil
}

// priceList accepts prices as JSON strings or integers.
type priceList []*big.Int

func (p *priceList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := make([]*big.Int, 0, len(raw))
	for _, item := range raw {
		v, err := domain.ParsePrice(strings.Trim(string(item), `"`))
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*p = out
	return nil
}
