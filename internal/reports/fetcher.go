package reports

import (
	"context"

	"telegraph/pkg/clients/pbx"
)

// Fetcher is the engine's view of the upstream: one page of raw rows for one
// source, plus the continuation key. An empty nextKey means the upstream has
// no further pages for this query.
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind, tenant string, w Window, startKey string, limit int) (rows []map[string]any, nextKey string, err error)
}

// PBXFetcher adapts the PBX report client to the engine's Fetcher contract,
// binding each kind to its endpoint and field projection.
type PBXFetcher struct {
	Client *pbx.Client
}

func (f *PBXFetcher) Fetch(ctx context.Context, kind Kind, tenant string, w Window, startKey string, limit int) ([]map[string]any, string, error) {
	cfg := Config(kind)
	page, err := f.Client.FetchPage(ctx, pbx.Query{
		Tenant:    tenant,
		Endpoint:  cfg.Endpoint,
		Fields:    cfg.Fields,
		StartKey:  startKey,
		StartDate: w.Start,
		EndDate:   w.End,
		Limit:     limit,
	})
	if err != nil {
		return nil, "", err
	}
	return page.Rows, page.NextStartKey, nil
}
