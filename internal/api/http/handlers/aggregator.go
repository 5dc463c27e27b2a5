package handlers

import (
	"fmt"
	"net/http"
	"oraclehub/internal/domain"
	"oraclehub/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) AggregatorInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Oracle.AggregatorInfo(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, info)
}

// AggregatorPrice resolves asset at ?timestamp=, wall-clock now when omitted.
func (h *Handler) AggregatorPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ts, err := queryUint(r, "timestamp", 64, h.Oracle.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Oracle.Price(r.Context(), asset, ts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dec, err := h.Oracle.AggregatorDecimals(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, newResolvedView(asset, dec, res))
}

func (h *Handler) AggregatorPrices(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := queryUint(r, "records", 32, 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ts, err := queryUint(r, "timestamp", 64, h.Oracle.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.Oracle.Prices(r.Context(), asset, uint32(records), ts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dec, err := h.Oracle.AggregatorDecimals(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, newHistoryView(asset, dec, history))
}

type addOracleRequest struct {
	ID string `json:"id"`
}

func (h *Handler) AddOracle(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req addOracleRequest
	if err = decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ID == "" {
		h.fail(w, r, fmt.Errorf("%w: id is required", errBadRequest))
		return
	}

	if err = h.Oracle.AddOracle(r.Context(), who, req.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

type addAssetRequest struct {
	Asset  string `json:"asset"`
	Source string `json:"source,omitempty"`
}

func (h *Handler) AddAsset(w http.ResponseWriter, r *http.Request) {
	who, asset, req, err := h.assetRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err = h.Oracle.AddAsset(r.Context(), who, asset, req.Source); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

func (h *Handler) AddBaseAsset(w http.ResponseWriter, r *http.Request) {
	who, asset, req, err := h.assetRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Source != "" {
		h.fail(w, r, fmt.Errorf("%w: base assets have no source", errBadRequest))
		return
	}

	if err = h.Oracle.AddBaseAsset(r.Context(), who, asset); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

func (h *Handler) assetRequest(r *http.Request) (domain.Address, domain.Asset, addAssetRequest, error) {
	var req addAssetRequest

	who, err := caller(r)
	if err != nil {
		return "", domain.Asset{}, req, err
	}
	if err = decode(r, &req); err != nil {
		return "", domain.Asset{}, req, err
	}
	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		return "", domain.Asset{}, req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return who, asset, req, nil
}

func (h *Handler) AggregatorAdmin(w http.ResponseWriter, r *http.Request) {
	who, next, err := h.adminRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err = h.Oracle.AggregatorAdmin(r.Context(), service.AdminOp(chi.URLParam(r, "op")), who, next); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}
