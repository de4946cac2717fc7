package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"QuantDesk/internal/domain/models"
	pkghttp "QuantDesk/pkg/http"
	applogger "QuantDesk/pkg/logger"
)

// Backfiller pulls historical daily candles over REST to seed the bar
// store before the live stream contributes anything.
type Backfiller struct {
	apiKey  string
	baseURL string
	client  *pkghttp.Client
	l       *applogger.Logger
}

func NewBackfiller(apiKey, baseURL string, client *pkghttp.Client, l *applogger.Logger) *Backfiller {
	if l == nil {
		l = applogger.Nop()
	}
	if client == nil {
		client = pkghttp.NewClient()
	}
	return &Backfiller{apiKey: apiKey, baseURL: baseURL, client: client, l: l}
}

// candleResponse is the Finnhub /stock/candle column format.
type candleResponse struct {
	Status string    `json:"s"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// DailyBars fetches daily candles for [from, to].
func (b *Backfiller) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error) {
	var resp candleResponse
	err := b.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    b.baseURL + "/stock/candle",
		QueryParams: map[string][]string{
			"symbol":     {symbol},
			"resolution": {"D"},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
			"token":      {b.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", symbol, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("backfill %s: status %q", symbol, resp.Status)
	}

	bars := make([]*models.Bar, 0, len(resp.T))
	for i := range resp.T {
		if i >= len(resp.O) || i >= len(resp.H) || i >= len(resp.L) || i >= len(resp.C) {
			break
		}
		bar := &models.Bar{
			Symbol: symbol,
			Date:   time.Unix(resp.T[i], 0).UTC().Format("2006-01-02"),
			Open:   resp.O[i],
			High:   resp.H[i],
			Low:    resp.L[i],
			Close:  resp.C[i],
		}
		if i < len(resp.V) {
			bar.Volume = resp.V[i]
		}
		bars = append(bars, bar)
	}
	b.l.Info("backfill fetched",
		applogger.String("symbol", symbol),
		applogger.Int("bars", len(bars)),
	)
	return bars, nil
}
