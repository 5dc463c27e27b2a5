package handlers

import (
	"fmt"
	"net/http"
	"oraclehub/internal/domain"
	"oraclehub/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.Oracle.Stores(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, stores)
}

func (h *Handler) StoreInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Oracle.StoreInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, info)
}

func (h *Handler) StoreLastPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asset, err := queryAsset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.Oracle.LastPrice(r.Context(), id, asset)
	h.storePrice(w, r, id, asset, p, err)
}

func (h *Handler) StorePrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asset, err := queryAsset(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("timestamp") == "" {
		h.fail(w, r, fmt.Errorf("%w: timestamp is required", errBadRequest))
		return
	}
	ts, err := queryUint(r, "timestamp", 64, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.Oracle.StorePrice(r.Context(), id, asset, ts)
	h.storePrice(w, r, id, asset, p, err)
}

func (h *Handler) storePrice(w http.ResponseWriter, r *http.Request, id string, asset domain.Asset, p *domain.PriceData, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if p == nil {
		h.fail(w, r, fmt.Errorf("%w: %s in %s", errNoPrice, asset, id))
		return
	}

	dec, err := h.Oracle.StoreDecimals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, resolvedView{Asset: asset.String(), Decimals: dec, priceView: newPriceView(*p, dec)})
}

func (h *Handler) StorePrices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
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

	history, err := h.Oracle.StorePrices(r.Context(), id, asset, uint32(records))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dec, err := h.Oracle.StoreDecimals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, newHistoryView(asset, dec, history))
}

type setPriceRequest struct {
	Prices    priceList `json:"prices"`
	Timestamp uint64    `json:"timestamp"`
}

func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req setPriceRequest
	if err = decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err = h.Oracle.SetPrice(r.Context(), chi.URLParam(r, "id"), who, req.Prices, req.Timestamp); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

type setPricesRequest struct {
	Assets    []string  `json:"assets"`
	Prices    priceList `json:"prices"`
	Timestamp uint64    `json:"timestamp"`
}

func (h *Handler) SetPrices(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req setPricesRequest
	if err = decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	assets, err := domain.ParseAssets(req.Assets)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	if err = h.Oracle.SetPrices(r.Context(), chi.URLParam(r, "id"), who, assets, req.Prices, req.Timestamp); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

type adminRequest struct {
	NewAdmin string `json:"new_admin"`
}

func (h *Handler) StoreAdmin(w http.ResponseWriter, r *http.Request) {
	who, next, err := h.adminRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	op := service.AdminOp(chi.URLParam(r, "op"))
	if err = h.Oracle.StoreAdmin(r.Context(), chi.URLParam(r, "id"), op, who, next); err != nil {
		h.fail(w, r, err)
		return
	}
	h.noContent(w)
}

// adminRequest reads the caller and an optional body; accept carries no body.
func (h *Handler) adminRequest(r *http.Request) (domain.Address, domain.Address, error) {
	who, err := caller(r)
	if err != nil {
		return "", "", err
	}

	var req adminRequest
	if r.ContentLength != 0 {
		if err = decode(r, &req); err != nil {
			return "", "", err
		}
	}
	return who, domain.Address(req.NewAdmin), nil
}
