package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mkorolev/wikiatlas/geo"
)

const (
	// DetailBatchSize is the upstream cap on page ids per detail lookup.
	DetailBatchSize = 20

	// detailConcurrency bounds how many detail batches are in flight at
	// once, per the upstream's concurrency guidance.
	detailConcurrency = 3
)

type detailResponse struct {
	Query struct {
		Pages map[string]detailPage `json:"pages"`
	} `json:"query"`
}

type detailPage struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Extract   string `json:"extract"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	Coordinates []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coordinates"`
}

// DetailsBatch fetches extract/thumbnail/coordinates for up to
// DetailBatchSize page ids in one upstream call. Results come back in the
// order of ids; pages missing upstream are skipped.
func (c *Client) DetailsBatch(ctx context.Context, ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > DetailBatchSize {
		return nil, fmt.Errorf("wiki: batch of %d exceeds %d ids", len(ids), DetailBatchSize)
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("pageids", strings.Join(strs, "|"))
	q.Set("prop", "extracts|pageimages|coordinates")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("exlimit", "max")
	q.Set("piprop", "thumbnail")
	q.Set("pithumbsize", "160")
	q.Set("colimit", "max")

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode details response: %v", ErrUpstreamUnavailable, err)
	}

	byID := make(map[int64]Article, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		byID[p.PageID] = c.articleFromPage(p)
	}

	articles := make([]Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

// DetailOne fetches details for a single page id. Used by the batch
// fallback path.
func (c *Client) DetailOne(ctx context.Context, id int64) (Article, error) {
	articles, err := c.DetailsBatch(ctx, []int64{id})
	if err != nil {
		return Article{}, err
	}
	if len(articles) == 0 {
		return Article{}, fmt.Errorf("wiki: page %d not found", id)
	}
	return articles[0], nil
}

func (c *Client) articleFromPage(p detailPage) Article {
	a := Article{
		PageID:  p.PageID,
		Title:   p.Title,
		Extract: p.Extract,
		Link:    pageLink(c.base, p.PageID),
	}
	if p.Thumbnail != nil {
		a.Thumbnail = p.Thumbnail.Source
	}
	for _, co := range p.Coordinates {
		a.Coordinates = append(a.Coordinates, geo.Point{Lat: co.Lat, Lon: co.Lon})
	}
	return a
}

// detailOutcome tags the result of fetching one page in the fallback path.
// Failures degrade to a placeholder article instead of dropping the page.
type detailOutcome struct {
	id      int64
	article Article
	err     error
}

// FetchDetails resolves full details for an arbitrary id list: ids are
// split into batches of DetailBatchSize, at most detailConcurrency batches
// run at once, and each batch's result is cached under its sorted-id key.
// A batch whose combined call fails falls back to per-id fetches; ids that
// also fail individually yield placeholder articles (known id, empty
// extract) so the aggregate never loses a requested page to a transient
// upstream error.
func (s *Service) FetchDetails(ctx context.Context, ids []int64) []Article {
	if len(ids) == 0 {
		return nil
	}

	batches := make([][]int64, 0, (len(ids)+DetailBatchSize-1)/DetailBatchSize)
	for start := 0; start < len(ids); start += DetailBatchSize {
		end := start + DetailBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}

	results := make([][]Article, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			key := DetailKey(batch)
			if cached, ok := s.details.Get(key); ok {
				results[i] = cached
				return nil
			}
			articles, err := s.client.DetailsBatch(gctx, batch)
			if err != nil {
				s.log.Warn().Err(err).Int("ids", len(batch)).
					Msg("detail batch failed, falling back to per-id fetches")
				results[i] = s.detailsFallback(gctx, batch)
				return nil
			}
			s.details.Set(key, articles)
			results[i] = articles
			return nil
		})
	}
	// Workers never return errors; failures degrade inside each batch.
	_ = g.Wait()

	var out []Article
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// detailsFallback fetches each id of a failed batch individually and
// assembles tagged outcomes, substituting a placeholder for ids that fail
// again. Fallback results are not written to the detail cache: a partial
// batch must not shadow a later successful one.
func (s *Service) detailsFallback(ctx context.Context, ids []int64) []Article {
	outcomes := make([]detailOutcome, 0, len(ids))
	for _, id := range ids {
		a, err := s.client.DetailOne(ctx, id)
		outcomes = append(outcomes, detailOutcome{id: id, article: a, err: err})
	}

	articles := make([]Article, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			articles = append(articles, Article{
				PageID: o.id,
				Link:   pageLink(s.client.base, o.id),
			})
			continue
		}
		articles = append(articles, o.article)
	}
	return articles
}
