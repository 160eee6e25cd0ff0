package blocksource

import "context"

//go:generate mockgen -typed -package=blocksource -destination=./mocks.go -source=./interface.go

// Fetcher retrieves the raw encoding of a block from a remote service.
type Fetcher interface {
	FetchBlock(ctx context.Context, hash string) ([]byte, error)
}
