package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacemeshos/gluon/blocksource"
	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/log"
	"github.com/spacemeshos/gluon/recon"
	"github.com/spacemeshos/gluon/recon/encoding"
	"github.com/spacemeshos/gluon/recon/ptree"
	"github.com/spacemeshos/gluon/recon/transport"
	"github.com/spacemeshos/gluon/recon/wire"
)

// fatal attaches the fatal code matching the cause of a failed session.
func fatal(err error) error {
	var fe *log.FatalError
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, recon.ErrDecodeFailure):
		return log.ErrDecodeFailure(err)
	case errors.Is(err, encoding.ErrUnknownIdentifier),
		errors.Is(err, encoding.ErrAmbiguousIdentifier):
		return log.ErrUnknownIdentifier(err)
	case errors.Is(err, recon.ErrProtocolTimeout),
		errors.Is(err, transport.ErrDialTimeout),
		errors.Is(err, transport.ErrAcceptTimeout):
		return log.ErrProtocolTimeout(err)
	case errors.Is(err, recon.ErrRootMismatch):
		return log.ErrRootMismatch(err)
	default:
		return log.ErrSession(err)
	}
}

func (a *app) blockSource() (*blocksource.Source, error) {
	fetcher, err := blocksource.NewHTTPFetcher(a.conf.BlockSource,
		blocksource.WithHTTPLogger(a.logger.Named("http")))
	if err != nil {
		return nil, log.ErrMalformedConfig(err)
	}
	src, err := blocksource.New(fetcher,
		blocksource.WithConfig(a.conf.BlockSource),
		blocksource.WithLogger(a.logger.Named("blocksource")))
	if err != nil {
		return nil, log.ErrMalformedConfig(err)
	}
	return src, nil
}

func (a *app) newPeer(pool *recon.TxPool, block []types.Hash32) *recon.Peer {
	return recon.NewPeer(pool, block,
		recon.WithConfig(a.conf.Recon),
		recon.WithLogger(a.logger.Named("recon")))
}

// session connects to the peer and runs fn over the joined stream.
func (a *app) session(
	ctx context.Context,
	fn func(context.Context, io.ReadWriteCloser) (wire.Stats, error),
) (wire.Stats, error) {
	stream, err := transport.Open(ctx, a.conf.Transport, transport.WithLogger(a.logger.Named("transport")))
	if err != nil {
		return wire.Stats{}, fatal(err)
	}
	stats, err := fn(ctx, stream)
	if err != nil {
		return stats, fatal(err)
	}
	return stats, nil
}

// readPoolFile returns the non empty lines of the file at path.
func readPoolFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pool file: %w", err)
	}
	defer f.Close()
	var out [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}
	return out, nil
}

// txPool builds the pool from the node.pool-blocks and node.pool-file payloads
// and adds txs to it.
func (a *app) txPool(ctx context.Context, txs ...types.Transaction) (*recon.TxPool, error) {
	var payloads [][]byte
	if len(a.conf.Node.PoolBlocks) > 0 {
		src, err := a.blockSource()
		if err != nil {
			return nil, err
		}
		payloads, err = src.Pool(ctx, a.conf.Node.PoolBlocks...)
		if err != nil {
			return nil, log.ErrBlockSource(strings.Join(a.conf.Node.PoolBlocks, ","), err)
		}
	}
	if a.conf.Node.PoolFile != "" {
		extra, err := readPoolFile(a.conf.Node.PoolFile)
		if err != nil {
			return nil, log.ErrMalformedConfig(err)
		}
		payloads = append(payloads, extra...)
	}
	pool := recon.NewTxPool(payloads...)
	for _, tx := range txs {
		pool.AddTx(tx)
	}
	return pool, nil
}

func printStats(w io.Writer, peer *recon.Peer, stats wire.Stats) {
	fmt.Fprintf(w, "root: %s\n", peer.Root())
	fmt.Fprintf(w, "transactions: %d\n", len(peer.Block()))
	fmt.Fprintf(w, "sent: %d bytes\n", stats.Sent)
	fmt.Fprintf(w, "received: %d bytes\n", stats.Received)
	fmt.Fprintf(w, "order sent: %d bytes\n", stats.OrderSent)
	fmt.Fprintf(w, "order received: %d bytes\n", stats.OrderReceived)
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [block-hash]",
		Short: "send a block to the peer",
		Long:  `Fetches the block, announces it to the peer and serves the peer's
requests until the peer reconciled it. The hash defaults to node.block.
The pool also holds the node.pool-blocks and node.pool-file payloads.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := a.conf.Node.Block
			if len(args) > 0 {
				hash = args[0]
			}
			if hash == "" {
				return log.ErrBadFlags("block hash is required")
			}
			src, err := a.blockSource()
			if err != nil {
				return err
			}
			txs, err := src.Fetch(cmd.Context(), hash)
			if err != nil {
				return log.ErrBlockSource(hash, err)
			}
			pool, err := a.txPool(cmd.Context(), txs...)
			if err != nil {
				return err
			}
			peer := a.newPeer(pool, types.TransactionIDs(txs))
			a.logger.Info("sending block",
				zap.String("hash", hash),
				zap.Int("transactions", len(txs)),
				zap.Int("pool_size", pool.Len()),
				log.ZShortStringer("root", peer.Root()))
			stats, err := a.session(cmd.Context(), peer.SendBlock)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), peer, stats)
			return nil
		},
	}
}

func (a *app) receiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "receive a block from the peer",
		Long:  `Builds the pool from the node.pool-blocks and node.pool-file
payloads, then recovers the block the peer announces.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.txPool(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("waiting for block", zap.Int("pool_size", pool.Len()))
			peer := a.newPeer(pool, nil)
			stats, err := a.session(cmd.Context(), peer.ListenForBlocks)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), peer, stats)
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "fetch <block-hash>...",
		Short: "fetch blocks into the local cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.blockSource()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, hash := range args {
				txs, err := src.Fetch(cmd.Context(), hash)
				if err != nil {
					return log.ErrBlockSource(hash, err)
				}
				ids := types.TransactionIDs(txs)
				if !quiet {
					for _, id := range ids {
						fmt.Fprintln(w, id)
					}
				}
				fmt.Fprintf(w, "block %s: %d transactions, root %s\n", hash, len(ids), ptree.RootOf(ids))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the block summary")
	return cmd
}
