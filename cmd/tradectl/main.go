// tradectl checks and places orders from the terminal with the same local
// validation the tradeclient daemon applies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/account"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/apiclient"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/config"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/execution"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/quantity"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/valuation"
)

var (
	apiURL string
	token  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if ve, ok := domain.AsValidation(err); ok {
			fmt.Fprintf(os.Stderr, "Reason: %s\n", ve.Reason)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tradectl",
		Short:         "Trade against the execution service from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Execution service base URL (defaults to API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TRADECTL_TOKEN"), "Bearer token (defaults to TRADECTL_TOKEN env var)")

	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(cashCmd("deposit"))
	rootCmd.AddCommand(cashCmd("withdraw"))
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(assetsCmd())
	return rootCmd
}

type stack struct {
	client   *apiclient.Client
	reader   *refresh.Reader
	feed     *pricefeed.Feed
	orders   *execution.OrderService
	accounts *account.Service
}

func newStack() (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if token == "" {
		return nil, fmt.Errorf("no token: pass --token or set TRADECTL_TOKEN")
	}
	session := auth.NewSession()
	session.Bind(token)

	client := apiclient.New(session, apiclient.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.RateLimitRPS,
		Burst:   cfg.RateLimitBurst,
	})
	queries := refresh.New(refresh.NewMemoryStore(), refresh.Options{Stale: cfg.Stale, Subject: session.SubjectFor})
	reader := refresh.NewReader(queries, client)
	feed := pricefeed.NewFeed(pricefeed.NewBoard(), nil, client, 0)
	orders := execution.NewOrderService(client, reader, feed, nil, session, nil, nil, nil)
	return &stack{
		client:   client,
		reader:   reader,
		feed:     feed,
		orders:   orders,
		accounts: account.NewService(client, reader, orders.Holds(), nil, session, nil, nil, nil),
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show net worth, P&L and holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			acct, err := s.accounts.Available(ctx)
			if err != nil {
				return err
			}
			list, err := s.reader.Portfolios(ctx)
			if err != nil {
				return err
			}
			portfolios := make([]domain.Portfolio, 0, len(list.Value))
			for _, p := range list.Value {
				res, err := s.reader.Portfolio(ctx, p.ID)
				if err != nil {
					return err
				}
				portfolios = append(portfolios, res.Value)
			}
			sum := valuation.Account(acct, portfolios)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Net worth\t%s\n", sum.NetWorth.StringFixed(2))
			fmt.Fprintf(w, "Cash available\t%s\n", sum.CashAvailable.StringFixed(2))
			fmt.Fprintf(w, "Cash reserved\t%s\n", sum.CashReserved.StringFixed(2))
			fmt.Fprintf(w, "P&L\t%s (%s%%)\n", sum.PnL.StringFixed(2), sum.PnLPercent.StringFixed(2))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PORTFOLIO\tSYMBOL\tQTY\tPRICE\tVALUE\tP&L %")
			for _, pv := range sum.Portfolios {
				for _, h := range pv.Holdings {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						pv.Name, h.Symbol, h.Quantity, h.UnitPrice.StringFixed(2),
						h.CurrentValue.StringFixed(2), h.PnLPercent.StringFixed(2))
				}
			}
			return w.Flush()
		},
	}
}

func quoteCmd() *cobra.Command {
	var assetType string
	cmd := &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Fetch the live price of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			q, err := s.feed.Quote(cmd.Context(), domain.ParseAssetType(assetType), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, q)
		},
	}
	cmd.Flags().StringVar(&assetType, "type", "stock", "Asset type: stock or crypto")
	return cmd
}

func orderCmd() *cobra.Command {
	var (
		kind, side, symbol, assetType string
		portfolio                     int64
		qty, price                    string
		percent                       int
		dryRun                        bool
	)
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place a market, limit or stop order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			t := execution.Ticket{
				Kind:        domain.OrderKind(kind),
				Side:        domain.OrderSide(side),
				PortfolioID: portfolio,
				Symbol:      symbol,
				AssetType:   domain.ParseAssetType(assetType),
			}
			if price != "" {
				if t.Price, err = decimal.NewFromString(price); err != nil {
					return domain.Invalid(domain.ReasonInvalidPrice, "price %q is not a number", price)
				}
			}
			pv, err := s.orders.Preview(ctx, t)
			if err != nil {
				return err
			}

			form := quantity.NewForm(pv.Ticket.Kind, pv.Ticket.Side, pv.Ticket.PortfolioID, pv.Ticket.Symbol)
			form.SetTargetPrice(t.Price)
			form.PrefillTarget(pv.LivePrice)
			form.SetLimits(quantity.Limits{
				AvailableCash: pv.Account.CashBalance,
				UnitPrice:     pv.LivePrice,
				Held:          pv.Held,
				Committed:     pv.Committed,
			})
			if percent != 0 {
				err = form.Quick(percent)
			} else {
				err = form.SetQuantity(qty)
			}
			if err != nil {
				return err
			}

			t.Quantity = form.Quantity
			t.Price = form.TargetPrice
			if dryRun {
				pv, err = s.orders.Preview(ctx, t)
				if err != nil {
					return err
				}
				return printJSON(cmd, pv)
			}
			receipt, err := s.orders.Submit(ctx, t)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "market", "Order kind: market, limit or stop")
	cmd.Flags().StringVar(&side, "side", "BUY", "BUY or SELL")
	cmd.Flags().Int64VarP(&portfolio, "portfolio", "p", 0, "Portfolio id")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Symbol")
	cmd.Flags().StringVar(&assetType, "type", "stock", "Asset type: stock or crypto")
	cmd.Flags().StringVarP(&qty, "qty", "q", "", "Quantity")
	cmd.Flags().StringVar(&price, "price", "", "Target price for limit orders, stop price for stop orders")
	cmd.Flags().IntVar(&percent, "percent", 0, "Size the order at 25, 50, 75 or 100 percent of the maximum")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check the order without sending it")
	cmd.MarkFlagsMutuallyExclusive("qty", "percent")
	return cmd
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel limit|stop ID",
		Short: "Cancel a pending limit or stop order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid order id %q", args[1])
			}
			s, err := newStack()
			if err != nil {
				return err
			}
			switch args[0] {
			case "limit":
				o, err := s.orders.CancelLimit(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			case "stop":
				o, err := s.orders.CancelStop(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			}
			return fmt.Errorf("unknown order kind %q, want limit or stop", args[0])
		},
	}
	return cmd
}

func cashCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " AMOUNT",
		Short: "Move cash into or out of the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return domain.Invalid(domain.ReasonInvalidAmount, "amount %q is not a number", args[0])
			}
			s, err := newStack()
			if err != nil {
				return err
			}
			var acct domain.Account
			if action == "deposit" {
				acct, err = s.accounts.Deposit(cmd.Context(), amount)
			} else {
				acct, err = s.accounts.Withdraw(cmd.Context(), amount)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}
}

func watchCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "watch SYMBOL",
		Short: "Add a symbol to the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			if remove {
				return s.accounts.Unwatch(cmd.Context(), args[0])
			}
			item, err := s.accounts.Watch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, item)
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the symbol instead")
	return cmd
}

func assetsCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "assets [QUERY]",
		Short: "List tradable assets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			assets, err := s.accounts.SearchAssets(cmd.Context(), filter, query)
			if err != nil {
				return err
			}
			return printJSON(cmd, assets)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "stocks or crypto; empty lists both")
	return cmd
}
