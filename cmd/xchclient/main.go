// Command xchclient is a thin CLI over the internal/xchange facade: enough
// to drive one exchange client instance from a terminal or a script, without
// being a full trading application in its own right.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xchclient/internal/config"
	"xchclient/internal/dto"
	"xchclient/internal/httpapi"
	xlog "xchclient/internal/log"
	"xchclient/internal/xchange"
)

const appName = "xchclient"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Exchange client CLI",
		Long:  "xchclient drives one exchange client instance: market data, orders, and account endpoints from the command line.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the client config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newTickerCmd(),
		newBookCmd(),
		newBalancesCmd(),
		newOrderCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadClient() (*config.Config, *xchange.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := xchange.New(*cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing client: %w", err)
	}
	return cfg, client, nil
}

// newServeCmd starts the client's WebSocket pump alongside the read-only
// diagnostics HTTP server, and blocks until interrupted.
func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect the WebSocket stream and serve health/metrics/circuit diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Close()

			apiCfg := httpapi.DefaultConfig()
			if host != "" {
				apiCfg.Host = host
			}
			if port != 0 {
				apiCfg.Port = port
			}
			srv, err := httpapi.New(client, apiCfg)
			if err != nil {
				return fmt.Errorf("starting diagnostics server: %w", err)
			}

			log.Info().Str("addr", srv.Addr()).Msg("serving diagnostics endpoints")
			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "diagnostics server host (default 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "diagnostics server port (default 8080)")
	return cmd
}

func newTickerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ticker <symbol>",
		Short: "Fetch a public ticker snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			ticker, err := client.Ticker(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  bid=%s  ask=%s  last=%s  vol24h=%s\n",
				ticker.Symbol, ticker.Bid, ticker.Ask, ticker.Last, ticker.Volume24h)
			return nil
		},
	}
}

func newBookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book <symbol>",
		Short: "Fetch the current order book, seeded from a REST snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			book, err := client.OrderBook(ctx, args[0])
			if err != nil {
				return err
			}
			bid, ask := book.BestBid(), book.BestAsk()
			fmt.Printf("%s  update_id=%d  spread_bps=%.2f\n", args[0], book.UpdateID(), book.SpreadBPS())
			fmt.Printf("  best bid %s@%s   best ask %s@%s\n", bid.Qty, bid.Price, ask.Qty, ask.Price)
			return nil
		},
	}
	return cmd
}

func newBalancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Fetch the authenticated account's asset balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			balances, err := client.Balances(ctx)
			if err != nil {
				return err
			}
			for _, b := range balances {
				fmt.Printf("%-8s available=%s  locked=%s\n", b.Asset, b.Available, b.Locked)
			}
			return nil
		},
	}
}

func newOrderCmd() *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Place, cancel, and inspect orders",
	}
	orderCmd.AddCommand(newOrderPlaceCmd(), newOrderCancelCmd(), newOrderListCmd())
	return orderCmd
}

func newOrderPlaceCmd() *cobra.Command {
	var symbol, side, orderType, price, qty, clientOrderID string

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a new order and begin tracking its lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}

			qtyDec, err := decimal.NewFromString(qty)
			if err != nil {
				return fmt.Errorf("invalid --qty: %w", err)
			}
			req := dto.OrderRequest{
				Symbol:        symbol,
				Side:          side,
				Type:          orderType,
				Qty:           qtyDec,
				ClientOrderID: clientOrderID,
			}
			if price != "" {
				priceDec, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("invalid --price: %w", err)
				}
				req.Price = priceDec
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			order, err := client.PlaceOrder(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("order %s placed: %s %s %s qty=%s status=%s\n",
				order.OrderID, order.Side, order.Symbol, order.Type, order.Qty, order.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "trading pair, e.g. BTCUSD (required)")
	cmd.Flags().StringVar(&side, "side", "", "buy or sell (required)")
	cmd.Flags().StringVar(&orderType, "type", "limit", "limit or market")
	cmd.Flags().StringVar(&price, "price", "", "limit price (required for limit orders)")
	cmd.Flags().StringVar(&qty, "qty", "", "order quantity (required)")
	cmd.Flags().StringVar(&clientOrderID, "client-order-id", "", "caller-supplied idempotency key")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("side")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func newOrderCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a single open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.CancelOrder(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("order %s cancel requested\n", args[0])
			return nil
		},
	}
}

func newOrderListCmd() *cobra.Command {
	var symbol string
	var pageSize int
	var quiet bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List historical orders, paginating lazily across the full history",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// The progress spinner writes carriage-return updates meant
			// for an interactive terminal; piping stdout to a file or
			// another process falls back to quiet, line-oriented output.
			progressCfg := xlog.DefaultProgressConfig()
			if quiet || !term.IsTerminal(int(os.Stdout.Fd())) {
				progressCfg = xlog.QuietProgressConfig()
			}
			progress := xlog.NewProgressIndicator("fetching orders", 0, progressCfg)

			next := client.ListOrders(ctx, symbol, pageSize)
			var rows []dto.Order
			for {
				order, ok, err := next()
				if err != nil {
					progress.Fail(err.Error())
					return err
				}
				if !ok {
					break
				}
				rows = append(rows, order)
				progress.Increment()
			}
			progress.FinishWithMessage(fmt.Sprintf("%d orders", len(rows)))

			for _, order := range rows {
				fmt.Printf("%s  %s %s %s  qty=%s filled=%s  status=%s\n",
					order.OrderID, order.Side, order.Symbol, order.Type, order.Qty, order.FilledQty, order.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter to a single trading pair")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "orders fetched per REST page")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress the progress spinner")
	return cmd
}
