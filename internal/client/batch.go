package client

import (
	"context"
	"sync"

	"github.com/fivetwenty-io/optly/pkg/optly"
)

// fetchDetails re-fetches search hits through their detail endpoints with at
// most c.detailConcurrency requests in flight. Results keep the order of hits.
// The first failure cancels the remaining requests and is returned.
func (c *Client) fetchDetails(ctx context.Context, hits []optly.Asset) ([]optly.Asset, error) {
	if c.detailConcurrency <= 1 || len(hits) <= 1 {
		return c.fetchDetailsSequential(ctx, hits)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	detailed := make([]optly.Asset, len(hits))

	var (
		waitGroup sync.WaitGroup
		failOnce  sync.Once
		failure   error
	)

	semaphore := make(chan struct{}, c.detailConcurrency)

	for index, hit := range hits {
		waitGroup.Add(1)

		go func(index int, hit optly.Asset) {
			defer waitGroup.Done()

			// Acquire semaphore
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			asset, err := c.fetchDetail(ctx, hit)
			if err != nil {
				failOnce.Do(func() {
					failure = err

					cancel()
				})
			}

			detailed[index] = asset
		}(index, hit)
	}

	waitGroup.Wait()

	if failure != nil {
		return nil, failure
	}

	return detailed, nil
}

func (c *Client) fetchDetailsSequential(ctx context.Context, hits []optly.Asset) ([]optly.Asset, error) {
	detailed := make([]optly.Asset, 0, len(hits))

	for _, hit := range hits {
		asset, err := c.fetchDetail(ctx, hit)
		if err != nil {
			return nil, err
		}

		detailed = append(detailed, asset)
	}

	return detailed, nil
}
