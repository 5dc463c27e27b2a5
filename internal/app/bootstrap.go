package app

import (
	"context"
	"errors"
	"fmt"
	"oraclehub/internal/aggregator"
	"oraclehub/internal/config"
	"oraclehub/internal/domain"
	"oraclehub/internal/pricestore"
	"oraclehub/internal/service"

	"gitlab.com/nevasik7/alerting/logger"
)

// Bootstrap initializes every configured store and the aggregator, then replays the
// configured registry. Components that already hold state keep it: config only fills gaps.
func Bootstrap(ctx context.Context, lg logger.Logger, svc *service.OracleService, oc *config.OracleConfig) error {
	for _, sc := range oc.Stores {
		p, err := storeParams(sc)
		if err != nil {
			return fmt.Errorf("store %s: %w", sc.ID, err)
		}

		err = svc.InitStore(ctx, sc.ID, p)
		switch {
		case errors.Is(err, domain.ErrAlreadyInitialized):
			lg.Infof("Store %s already initialized, keeping persisted state", sc.ID)
		case err != nil:
			return fmt.Errorf("init store %s: %w", sc.ID, err)
		default:
			lg.Infof("Store %s initialized, assets=%d, decimals=%d, resolution=%d", sc.ID, len(p.Assets), p.Decimals, p.Resolution)
		}
	}

	return bootstrapAggregator(ctx, lg, svc, &oc.Aggregator)
}

func bootstrapAggregator(ctx context.Context, lg logger.Logger, svc *service.OracleService, ac *config.AggregatorConfig) error {
	base, err := domain.ParseAsset(ac.BaseAsset)
	if err != nil {
		return fmt.Errorf("aggregator base asset: %w", err)
	}
	admin := domain.Address(ac.Admin)

	err = svc.InitAggregator(ctx, aggregator.Params{
		Admin:     admin,
		BaseAsset: base,
		Decimals:  ac.Decimals,
		MaxAge:    ac.MaxAge,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyInitialized):
		lg.Infof("Aggregator %s already initialized, keeping persisted state", svc.Aggregator().ID())
	case err != nil:
		return fmt.Errorf("init aggregator: %w", err)
	}

	err = syncRegistry(ctx, svc, admin, ac)
	if errors.Is(err, domain.ErrUnauthorized) {
		// admin was handed over at runtime, the new owner manages the registry
		lg.Warnf("Configured admin %s no longer owns aggregator, registry sync skipped", admin)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync aggregator registry: %w", err)
	}

	lg.Infof("Aggregator registry synced, oracles=%d, assets=%d, base_assets=%d", len(ac.Oracles), len(ac.Assets), len(ac.BaseAssets))
	return nil
}

// syncRegistry replays the configured registry. Every add is idempotent.
func syncRegistry(ctx context.Context, svc *service.OracleService, admin domain.Address, ac *config.AggregatorConfig) error {
	for _, id := range ac.Oracles {
		if err := svc.AddOracle(ctx, admin, id); err != nil {
			return err
		}
	}

	for _, a := range ac.Assets {
		asset, err := domain.ParseAsset(a.Asset)
		if err != nil {
			return err
		}
		if err = svc.AddAsset(ctx, admin, asset, a.Source); err != nil {
			return err
		}
	}

	bases, err := domain.ParseAssets(ac.BaseAssets)
	if err != nil {
		return err
	}
	for _, b := range bases {
		if err = svc.AddBaseAsset(ctx, admin, b); err != nil {
			return err
		}
	}
	return nil
}

func storeParams(sc config.StoreConfig) (pricestore.Params, error) {
	assets, err := domain.ParseAssets(sc.Assets)
	if err != nil {
		return pricestore.Params{}, err
	}
	return pricestore.Params{
		Admin:      domain.Address(sc.Admin),
		Assets:     assets,
		Decimals:   sc.Decimals,
		Resolution: sc.Resolution,
		Depth:      sc.HistoryDepth,
		OutOfOrder: pricestore.OutOfOrder(sc.OutOfOrder),
	}, nil
}
