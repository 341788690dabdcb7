package core

import (
	"context"
	"sync"
)

// maxBatchConcurrency bounds concurrent writes within one batch.
const maxBatchConcurrency = 10

// BatchStoreItem is a single write within a batch.
type BatchStoreItem struct {
	Content string
	Kind    Kind
	Options []StoreOption
}

// BatchStoreError describes one rejected item.
type BatchStoreError struct {
	// Index is the position of the item in the original batch.
	Index int

	Error error
}

// BatchStoreResult contains the result of a batch store operation.
type BatchStoreResult struct {
	// IDs holds the stored ID per item index; zero for failed items.
	IDs []int64

	Failed []BatchStoreError

	Total       int
	StoredCount int
	FailedCount int
}

// BatchStore writes several entries of one agent concurrently.
//
// Items are independent: a rejected item does not affect the others.
//
// Example:
//
//	result := client.BatchStore(ctx, "tech_mentor", []core.BatchStoreItem{
//	    {Content: "```go\nfmt.Println()\n```", Kind: core.KindKnowledge,
//	        Options: []core.StoreOption{core.WithImportance(0.9)}},
//	    {Content: "https://go.dev", Kind: core.KindKnowledge},
//	})
//	fmt.Printf("stored %d/%d\n", result.StoredCount, result.Total)
func (c *Client) BatchStore(ctx context.Context, agentID string, items []BatchStoreItem) *BatchStoreResult {
	result := &BatchStoreResult{
		IDs:    make([]int64, len(items)),
		Failed: make([]BatchStoreError, 0),
		Total:  len(items),
	}
	if len(items) == 0 {
		return result
	}

	sem := make(chan struct{}, maxBatchConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}

		go func(index int, item BatchStoreItem) {
			defer wg.Done()
			defer func() { <-sem }()

			id, err := c.Store(ctx, agentID, item.Content, item.Kind, item.Options...)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, BatchStoreError{Index: index, Error: err})
				result.FailedCount++
				return
			}
			result.IDs[index] = id
			result.StoredCount++
		}(i, item)
	}

	wg.Wait()
	return result
}
