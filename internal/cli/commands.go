package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "http://localhost:8080"
	jobRunTimeout    = 30 * time.Minute
)

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() *APIClient {
	return NewAPIClient(o.server, o.timeout)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tradectl",
		Short: "tradectl - TradeGuard trading engine client",
		Long: `tradectl talks to a running TradeGuard server.
It places and cancels orders, inspects positions and snapshots, edits
per-account risk settings and triggers background jobs.`,
		SilenceUsage: true,
	}

	serverURL := os.Getenv("TRADEGUARD_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", serverURL, "TradeGuard server URL (env TRADEGUARD_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(newOrdersCmd(opts))
	rootCmd.AddCommand(newPositionsCmd(opts))
	rootCmd.AddCommand(newSummaryCmd(opts))
	rootCmd.AddCommand(newMonitorCmd(opts))
	rootCmd.AddCommand(newSnapshotsCmd(opts))
	rootCmd.AddCommand(newSettingsCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newJobsCmd(opts))

	return rootCmd
}

// call runs one request and prints the response
func call(cmd *cobra.Command, opts *options, method, path string, query map[string]string, body interface{}) error {
	raw, err := opts.client().Do(cmd.Context(), method, path, query, body)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), indentJSON(raw))
	return nil
}

func accountPath(account, suffix string) string {
	return "/accounts/" + url.PathEscape(account) + suffix
}

func newOrdersCmd(opts *options) *cobra.Command {
	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Place, inspect and cancel orders",
	}

	ordersCmd.AddCommand(newPlaceCmd(opts))

	var limit int
	listCmd := &cobra.Command{
		Use:   "list ACCOUNT",
		Short: "List recent orders, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{"limit": strconv.Itoa(limit)}
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/orders"), query, nil)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum orders to return")
	ordersCmd.AddCommand(listCmd)

	ordersCmd.AddCommand(&cobra.Command{
		Use:   "get ORDER_ID",
		Short: "Show an order with its executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/orders/"+url.PathEscape(args[0]), nil, nil)
		},
	})

	ordersCmd.AddCommand(&cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/orders/"+url.PathEscape(args[0])+"/cancel", nil, nil)
		},
	})

	ordersCmd.AddCommand(&cobra.Command{
		Use:   "sync ORDER_ID",
		Short: "Poll the broker for new executions of a live order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/orders/"+url.PathEscape(args[0])+"/sync", nil, nil)
		},
	})

	return ordersCmd
}

type placeFlags struct {
	side       string
	orderType  string
	quantity   int64
	limit      float64
	stop       float64
	stopLoss   float64
	takeProfit float64
	reasoning  string
	decisionID string
	dryRun     bool
}

func newPlaceCmd(opts *options) *cobra.Command {
	f := &placeFlags{}
	cmd := &cobra.Command{
		Use:   "place ACCOUNT SYMBOL",
		Short: "Place an order (or validate it with --dry-run)",
		Long: `Place an order for ACCOUNT. Risk checks run server-side; a rejection
is printed with its reason and the command exits non-zero.
Example: tradectl orders place 51234567 SHOP --side buy --qty 100 --limit 150 --stop-loss 142.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := f.request(cmd, args[1])
			if err != nil {
				return err
			}
			path := accountPath(args[0], "/orders")
			if f.dryRun {
				path = accountPath(args[0], "/risk/validate")
			}
			return call(cmd, opts, http.MethodPost, path, nil, body)
		},
	}

	cmd.Flags().StringVar(&f.side, "side", "", "BUY or SELL")
	cmd.Flags().StringVar(&f.orderType, "type", "", "MARKET, LIMIT, STOP or STOP_LIMIT (default LIMIT with --limit, else MARKET)")
	cmd.Flags().Int64Var(&f.quantity, "qty", 0, "Number of shares")
	cmd.Flags().Float64Var(&f.limit, "limit", 0, "Limit price")
	cmd.Flags().Float64Var(&f.stop, "stop", 0, "Stop trigger price")
	cmd.Flags().Float64Var(&f.stopLoss, "stop-loss", 0, "Protective stop-loss level for the position")
	cmd.Flags().Float64Var(&f.takeProfit, "take-profit", 0, "Take-profit level for the position")
	cmd.Flags().StringVar(&f.reasoning, "reason", "", "Free-text reasoning stored with the order")
	cmd.Flags().StringVar(&f.decisionID, "decision-id", "", "Upstream decision id")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Run risk validation only")
	_ = cmd.MarkFlagRequired("side")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}

func (f *placeFlags) request(cmd *cobra.Command, symbol string) (map[string]interface{}, error) {
	side := strings.ToUpper(f.side)
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", f.side)
	}
	if f.quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	orderType := strings.ToUpper(f.orderType)
	if orderType == "" {
		orderType = "MARKET"
		if cmd.Flags().Changed("limit") {
			orderType = "LIMIT"
		}
	}

	body := map[string]interface{}{
		"symbol":     strings.ToUpper(symbol),
		"side":       side,
		"order_type": orderType,
		"quantity":   f.quantity,
	}
	optional := map[string]string{
		"limit":       "limit_price",
		"stop":        "stop_price",
		"stop-loss":   "stop_loss_price",
		"take-profit": "take_profit_price",
	}
	for flag, field := range optional {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetFloat64(flag)
			body[field] = v
		}
	}
	if f.reasoning != "" {
		body["reasoning"] = f.reasoning
	}
	if f.decisionID != "" {
		body["decision_id"] = f.decisionID
	}
	return body, nil
}

func newPositionsCmd(opts *options) *cobra.Command {
	var includeClosed bool
	cmd := &cobra.Command{
		Use:   "positions ACCOUNT",
		Short: "List positions for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query map[string]string
			if includeClosed {
				query = map[string]string{"include_closed": "true"}
			}
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/positions"), query, nil)
		},
	}
	cmd.Flags().BoolVar(&includeClosed, "all", false, "Include closed positions")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary ACCOUNT",
		Short: "Show positions with the latest snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/summary"), nil, nil)
		},
	}
}

func newMonitorCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor ACCOUNT",
		Short: "Run a stop-loss / take-profit pass now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, accountPath(args[0], "/monitor"), nil, nil)
		},
	}
}

func newSnapshotsCmd(opts *options) *cobra.Command {
	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Daily portfolio snapshots",
	}

	var days int
	listCmd := &cobra.Command{
		Use:   "list ACCOUNT",
		Short: "Snapshot history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{"days": strconv.Itoa(days)}
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/snapshots"), query, nil)
		},
	}
	listCmd.Flags().IntVar(&days, "days", 30, "Days of history")
	snapshotsCmd.AddCommand(listCmd)

	snapshotsCmd.AddCommand(&cobra.Command{
		Use:   "record ACCOUNT",
		Short: "Record today's snapshot now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, accountPath(args[0], "/snapshots"), nil, nil)
		},
	})

	return snapshotsCmd
}

func newSettingsCmd(opts *options) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Per-account risk settings",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "get ACCOUNT",
		Short: "Show risk settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/settings"), nil, nil)
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set ACCOUNT KEY=VALUE...",
		Short: "Update risk settings",
		Long: `Update one or more risk settings. Values are true, false or numbers.
Example: tradectl settings set 51234567 position_size_pct=10 paper_trading_enabled=false`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return call(cmd, opts, http.MethodPut, accountPath(args[0], "/settings"), nil, update)
		},
	})

	return settingsCmd
}

// parseAssignments turns key=value pairs into a JSON object
func parseAssignments(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		switch strings.ToLower(value) {
		case "true":
			out[key] = true
			continue
		case "false":
			out[key] = false
			continue
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = n
			continue
		}
		return nil, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return out, nil
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and database health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/system/status", nil, nil)
		},
	}
}

func newJobsCmd(opts *options) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background jobs",
	}

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show job schedules and last outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/system/jobs", nil, nil)
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "run NAME",
		Short: "Run a job now and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Jobs like backups outlive the default timeout
			if !cmd.Flag("timeout").Changed {
				opts.timeout = jobRunTimeout
			}
			return call(cmd, opts, http.MethodPost, "/system/jobs/"+url.PathEscape(args[0])+"/run", nil, nil)
		},
	})

	return jobsCmd
}
