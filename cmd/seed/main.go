package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/sahithikokkula/sketchd/pkg/settings"
	"github.com/sahithikokkula/sketchd/pkg/sketches"
	"github.com/sahithikokkula/sketchd/pkg/storage"
)

// seed fills the store with demo sketches built from a synthetic purchase
// stream: one top-n sketch per month, folded into a yearly one, plus a plain
// count-min sketch over customers and a min-mask sketch of payment methods.
func main() {
	s, err := settings.NewSettings()
	if err != nil {
		logger.Fatalf("failed to load settings: %v", err)
	}
	if err := s.ConfigureLogger(); err != nil {
		logger.Fatalf("failed to configure logger: %v", err)
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, s.DBPath, s.CompressionLevel)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := seed(ctx, store, s); err != nil {
		logger.Fatalf("seed: %v", err)
	}
	logger.Info("seed done")
}

type purchase struct {
	month    time.Month
	country  string
	customer int64
	payment  int
}

var (
	countries = []string{"US", "IN", "DE", "FR", "GB", "BR", "CA", "AU", "JP", "MX"}
	payments  = []string{"card", "paypal", "wire", "cash"}
)

func purchases(n int) []purchase {
	rnd := rand.New(rand.NewSource(42))
	out := make([]purchase, n)
	for i := range out {
		// heavy-tailed country popularity
		c := min(int(rnd.ExpFloat64()*2), len(countries)-1)
		out[i] = purchase{
			month:    time.Month(rnd.Intn(12) + 1),
			country:  countries[c],
			customer: int64(rnd.Intn(5000)),
			payment:  rnd.Intn(len(payments)),
		}
	}
	return out
}

func seed(ctx context.Context, store *storage.Store, s settings.Settings) error {
	const topn = 5
	stream := purchases(200000)

	monthly := make([]*sketches.Aggregator, 12)
	for i := range monthly {
		monthly[i] = sketches.NewAggregator(sketches.Text, topn,
			sketches.WithErrorBound(s.DefaultErrorBound),
			sketches.WithConfidenceInterval(s.DefaultConfidence))
	}
	customers, err := sketches.NewCountMinSketch(s.DefaultErrorBound, s.DefaultConfidence)
	if err != nil {
		return err
	}
	paymentMethods, err := sketches.NewMinMaskSketch(s.DefaultErrorBound, s.DefaultConfidence)
	if err != nil {
		return err
	}

	for i, p := range stream {
		if err := monthly[p.month-1].Add(p.country); err != nil {
			return err
		}
		customer := sketches.MustItem(sketches.Int64, p.customer)
		customers.Add(customer)
		paymentMethods.Add(customer, 1<<p.payment)
		if i%50000 == 0 {
			logger.Debugf("processed %d purchases", i)
		}
	}

	var parts []*sketches.CmsTopN
	for _, agg := range monthly {
		parts = append(parts, agg.Sketch())
	}
	yearly, err := sketches.UnionAll(parts...)
	if err != nil {
		return err
	}

	records := []*storage.Record{
		{
			Name: "purchase-countries",
			Type: sketches.CmsTopNType,
			Parameters: storage.Parameters{
				ItemType:   "text",
				TopN:       topn,
				ErrorBound: s.DefaultErrorBound,
				Confidence: s.DefaultConfidence,
			},
			Data: yearly.Serialize(),
		},
		{
			Name:       "purchase-customers",
			Type:       sketches.CountMinSketchType,
			Parameters: storage.Parameters{ItemType: "int8", ErrorBound: s.DefaultErrorBound, Confidence: s.DefaultConfidence},
			Data:       customers.Serialize(),
		},
		{
			Name:       "customer-payment-methods",
			Type:       sketches.MinMaskSketchType,
			Parameters: storage.Parameters{ItemType: "int8", ErrorBound: s.DefaultErrorBound, Confidence: s.DefaultConfidence},
			Data:       paymentMethods.Serialize(),
		},
	}
	for _, rec := range records {
		if err := store.Upsert(ctx, rec); err != nil {
			return err
		}
	}

	for _, e := range yearly.TopN() {
		fmt.Printf("%-4s %d\n", e.Item.Bytes, e.Frequency)
	}
	logger.WithField("sketch", yearly.Info().String()).Info("purchase countries")
	return nil
}
