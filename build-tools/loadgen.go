//go:build ignore

// Run: go run ./build-tools/loadgen.go -url http://localhost:8080 -store usd-feed -caller GADMIN -assets native:XLM,native:BLND -resolution 300 -interval 1s -duration 60s

package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

type setPricesRequest struct {
	Assets    []string `json:"assets"`
	Prices    []string `json:"prices"`
	Timestamp uint64   `json:"timestamp"`
}

// walk is a random-walk price kept as a float and rendered at store precision.
type walk struct {
	price float64
}

func (w *walk) next() float64 {
	// +-0.5% per step, never below a cent
	w.price *= 1 + (mrand.Float64()-0.5)/100
	w.price = math.Max(w.price, 0.01)
	return w.price
}

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "oracled base url")
		storeID    = flag.String("store", "usd-feed", "price store id")
		caller     = flag.String("caller", "GADMIN", "store admin address, sent as X-Oracle-Caller")
		token      = flag.String("token", "", "bearer token, used instead of -caller when set")
		assets     = flag.String("assets", "native:XLM,native:BLND", "comma-separated assets")
		decimals   = flag.Uint("decimals", 14, "store decimals")
		resolution = flag.Uint64("resolution", 300, "store resolution, seconds")
		interval   = flag.Duration("interval", time.Second, "pause between writes")
		duration   = flag.Duration("duration", 30*time.Second, "how long to run")
	)
	flag.Parse()

	list := splitTrim(*assets)
	if len(list) == 0 {
		fmt.Println("no assets provided")
		os.Exit(1)
	}
	if *resolution == 0 {
		fmt.Println("resolution must be positive")
		os.Exit(1)
	}

	cli := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(5*time.Second).
		SetHeader("Content-Type", "application/json")
	if *token != "" {
		cli.SetAuthToken(*token)
	} else {
		cli.SetHeader("X-Oracle-Caller", *caller)
	}

	walks := make([]*walk, len(list))
	for i := range walks {
		walks[i] = &walk{price: 0.1 + mrand.Float64()*10}
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(*decimals)), nil))

	fmt.Printf("loadgen → url=%s store=%s assets=%d interval=%s duration=%s\n", *baseURL, *storeID, len(list), interval.String(), duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)
	tick := time.NewTicker(*interval)
	defer tick.Stop()

	// timestamps advance one resolution step per write so every write lands in a new slot
	ts := uint64(time.Now().Unix()) / *resolution * *resolution
	sent, failed := 0, 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			req := setPricesRequest{Assets: list, Prices: make([]string, len(list)), Timestamp: ts}
			for i, w := range walks {
				v, _ := new(big.Float).Mul(big.NewFloat(w.next()), scale).Int(nil)
				req.Prices[i] = v.String()
			}

			resp, err := cli.R().
				SetContext(ctx).
				SetPathParam("id", *storeID).
				SetBody(req).
				Post("/api/stores/{id}/prices/batch")
			switch {
			case err != nil:
				failed++
				fmt.Printf("write error: %v\n", err)
			case resp.StatusCode() >= 300:
				failed++
				fmt.Printf("write rejected: %d %s\n", resp.StatusCode(), resp.String())
			default:
				sent++
			}
			ts += *resolution
		}
	}

	fmt.Printf("done, sent=%d failed=%d\n", sent, failed)
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
