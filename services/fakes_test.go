package services

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

type fakeProvider struct {
	mu sync.Mutex

	catalogs map[string][]interfaces.RawInstrument
	quotes   map[string]interfaces.QuoteRecord
	spots    map[string]*float64
	spotMap  map[string]string

	catalogErr error
	quoteErr   error
	spotErr    error

	catalogCalls []string
	quoteCalls   [][]string
	spotCalls    [][]string
}

func (f *fakeProvider) FetchInstruments(_ context.Context, exchange string) ([]interfaces.RawInstrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogCalls = append(f.catalogCalls, exchange)
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.catalogs[exchange], nil
}

func (f *fakeProvider) FetchQuotes(_ context.Context, symbols []string) (map[string]interfaces.QuoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls = append(f.quoteCalls, append([]string(nil), symbols...))
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}

	out := make(map[string]interfaces.QuoteRecord)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeProvider) FetchSpot(_ context.Context, symbols []string) (map[string]*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spotCalls = append(f.spotCalls, append([]string(nil), symbols...))
	if f.spotErr != nil {
		return nil, f.spotErr
	}

	out := make(map[string]*float64)
	for _, s := range symbols {
		if p, ok := f.spots[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeProvider) SpotSymbol(underlying string) string {
	if sym, ok := f.spotMap[underlying]; ok {
		return sym
	}
	return underlying
}

// fakeChainProvider also serves per-underlying option chains
type fakeChainProvider struct {
	*fakeProvider
	chains     map[string][]interfaces.RawInstrument
	chainCalls []string
}

func (f *fakeChainProvider) FetchOptionChain(_ context.Context, underlying string) ([]interfaces.RawInstrument, error) {
	f.chainCalls = append(f.chainCalls, underlying)
	return f.chains[underlying], nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func ptr[T any](v T) *T {
	return &v
}
