// Command calc is a terminal price calculator. Selections are repriced after a short
// debounce and the cart is kept on disk between runs.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/noah-isme/backend-metal/internal/app"
	"github.com/noah-isme/backend-metal/internal/calculator"
	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/config"
	"github.com/noah-isme/backend-metal/internal/kv"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/order"
)

const localSession = "local"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "calc",
		Usage: "price rolled metal by the ton and build a cart",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "catalog", Value: cfg.CatalogFile, Usage: "price table JSON file"},
			&cli.StringFlag{Name: "cart-dir", Value: cfg.CartFileDir, Usage: "directory holding the persisted cart"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return interactive(ctx, cfg, cmd)
		},
		Commands: []*cli.Command{
			{
				Name:  "quote",
				Usage: "print a single quote and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "item", Required: true},
					&cli.FloatFlag{Name: "tons", Value: 1},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return quoteOnce(ctx, cfg, cmd)
				},
			},
		},
	}
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "calc:", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, cfg *config.Config, cmd *cli.Command) (*app.Dependencies, zerolog.Logger, error) {
	cfg.CatalogSource = config.CatalogSourceFile
	cfg.CatalogFile = cmd.String("catalog")
	cfg.CartFileDir = cmd.String("cart-dir")

	logger := obs.NewLogger("console", cfg.LogLevel).With().Str("component", "calc").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	if err := os.MkdirAll(cfg.CartFileDir, 0o755); err != nil {
		return nil, logger, fmt.Errorf("create cart directory: %w", err)
	}
	deps, err := app.New(ctx, cfg, logger, app.Options{CartStore: kv.FileStore{Dir: cfg.CartFileDir}})
	if err != nil {
		return nil, logger, err
	}
	return deps, logger, nil
}

func quoteOnce(ctx context.Context, cfg *config.Config, cmd *cli.Command) error {
	deps, _, err := setup(ctx, cfg, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	item, err := deps.Catalog.Get(ctx, cmd.String("item"))
	if err != nil {
		return err
	}
	res, err := calculator.Compute(deps.Engine, item, cmd.Float("tons"), cfg.MinimumOrderTons)
	if err != nil {
		return err
	}
	printResult(os.Stdout, item, res)
	return nil
}

func interactive(ctx context.Context, cfg *config.Config, cmd *cli.Command) error {
	deps, logger, err := setup(ctx, cfg, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	r, err := newREPL(ctx, cfg, deps, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer r.session.Close()
	r.run(ctx, os.Stdin)
	return nil
}

func newREPL(ctx context.Context, cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, out io.Writer) (*repl, error) {
	agg, err := deps.Carts.Open(ctx, localSession)
	if err != nil {
		return nil, fmt.Errorf("open cart: %w", err)
	}
	session, err := calculator.NewSession(calculator.SessionConfig{
		Engine:      deps.Engine,
		Cart:        agg,
		MinimumTons: cfg.MinimumOrderTons,
		Debounce:    cfg.CalcDebounce,
		NoticeTTL:   cfg.CalcNoticeTTL,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &repl{
		out:     out,
		deps:    deps,
		cart:    agg,
		session: session,
		min:     cfg.MinimumOrderTons,
		logger:  logger,
	}, nil
}

type repl struct {
	out     io.Writer
	deps    *app.Dependencies
	cart    *cart.Aggregator
	session *calculator.Session
	min     float64
	logger  zerolog.Logger
}

func (r *repl) run(ctx context.Context, in io.Reader) {
	fmt.Fprintln(r.out, "type 'help' for commands")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	for {
		fmt.Fprint(r.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := r.exec(ctx, strings.Fields(line)); quit {
				return
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}
	var err error
	switch cmd, rest := strings.ToLower(args[0]), args[1:]; cmd {
	case "help", "?":
		r.help()
	case "quit", "exit", "q":
		return true
	case "categories":
		err = r.printList(r.deps.Catalog.Categories(ctx))
	case "branches":
		err = r.printList(r.deps.Catalog.Branches(ctx))
	case "steels":
		err = r.printList(r.deps.Catalog.SteelGrades(ctx))
	case "sizes":
		err = r.printList(r.deps.Catalog.Sizes(ctx, strings.Join(rest, " ")))
	case "list", "find":
		err = r.list(ctx, strings.Join(rest, " "))
	case "select":
		err = r.selectItem(ctx, rest)
	case "tons":
		err = r.setTons(rest)
	case "+", "-":
		dir := 1
		if cmd == "-" {
			dir = -1
		}
		fmt.Fprintf(r.out, "tons: %s\n", formatTons(r.session.Adjust(dir)))
	case "show":
		r.show()
	case "add":
		err = r.add(ctx)
	case "cart":
		r.printCart()
	case "remove", "rm":
		err = r.remove(ctx, rest)
	case "clear":
		err = r.cart.Clear(ctx)
	case "order":
		err = r.order(ctx, rest)
	default:
		fmt.Fprintf(r.out, "unknown command %q\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return false
}

func (r *repl) help() {
	fmt.Fprintln(r.out, `commands:
  categories | branches | steels | sizes <category>
  list [text]          items whose name contains text
  select <item-id>     price an item at 1 t
  tons <n> | + | -     change tonnage
  show                 current quote
  add                  add the current quote to the cart
  cart | rm <line-id> | clear
  order <phone> <name...>  send the cart as a quick order
  quit`)
}

func (r *repl) printList(values []string, err error) error {
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Fprintln(r.out, v)
	}
	return nil
}

func (r *repl) list(ctx context.Context, query string) error {
	res, err := r.deps.Catalog.List(ctx, catalog.ListParams{Filter: catalog.Filter{Search: query}, Limit: 100})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	for _, it := range res.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Name, it.Size, it.Steel, it.BasePrice.Primary.StringFixed(0))
	}
	_ = tw.Flush()
	fmt.Fprintf(r.out, "%d of %d items\n", len(res.Items), res.Total)
	return nil
}

func (r *repl) selectItem(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: select <item-id>")
	}
	item, err := r.deps.Catalog.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := r.session.Select(item); err != nil {
		return err
	}
	r.show()
	return nil
}

func (r *repl) setTons(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tons <n>")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(args[0], ",", "."), 64)
	if err != nil {
		return fmt.Errorf("invalid tonnage %q", args[0])
	}
	tons, adjusted := r.session.SetTons(v)
	if adjusted {
		fmt.Fprintf(r.out, "tonnage adjusted to %s\n", formatTons(tons))
	}
	return nil
}

func (r *repl) show() {
	st := r.session.Snapshot()
	if st.Item == nil {
		fmt.Fprintln(r.out, "no item selected")
		return
	}
	if st.Pending {
		r.session.Flush()
		st = r.session.Snapshot()
	}
	if st.Blocked {
		fmt.Fprintf(r.out, "%s cannot be priced\n", st.Item.Name)
		return
	}
	printResult(r.out, *st.Item, st.Result)
	if st.Notice != "" {
		fmt.Fprintln(r.out, "  "+st.Notice)
	}
}

func (r *repl) add(ctx context.Context) error {
	line, err := r.session.AddToCart(ctx)
	if err != nil {
		return err
	}
	if msg := r.session.Snapshot().Notice; msg != "" {
		fmt.Fprintln(r.out, msg)
	} else {
		fmt.Fprintf(r.out, "added line %s\n", line.ID)
	}
	return nil
}

func (r *repl) printCart() {
	lines := r.cart.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(r.out, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s t\t%s\n", l.ID, l.Item.Name, formatTons(l.Tons), l.TotalPrice.StringFixed(0))
	}
	_ = tw.Flush()
	t := r.cart.Totals()
	fmt.Fprintf(r.out, "%d lines, %s t, %s + delivery %s = %s\n",
		t.Count, formatTons(t.TotalWeight), t.TotalPrice.StringFixed(0), t.Delivery.StringFixed(0), t.TotalWithDelivery.StringFixed(0))
	for _, w := range r.cart.Warnings(r.min) {
		fmt.Fprintf(r.out, "warning: %s is below the %s t minimum\n", w.ItemName, formatTons(w.MinimumTons))
	}
}

func (r *repl) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rm <line-id>")
	}
	return r.cart.Remove(ctx, args[0])
}

func (r *repl) order(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: order <phone> <name...>")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	receipt, err := r.deps.Orders.QuickOrder(ctx, localSession, order.Contact{Phone: args[0], Name: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	r.logger.Info().Str("event_id", receipt.EventID).Msg("quick order sent")
	fmt.Fprintf(r.out, "order request %s sent\n", receipt.EventID)
	return nil
}

func printResult(out io.Writer, item catalog.Item, res calculator.Result) {
	fmt.Fprintf(out, "%s (%s)\n", item.Name, item.ID)
	fmt.Fprintf(out, "  %s t = %d pcs = %s m\n", formatTons(res.Tons), res.Pieces, strconv.FormatFloat(res.Meters, 'f', 2, 64))
	fmt.Fprintf(out, "  tier %d: %s / t\n", res.Tier+1, res.PricePerTon.Primary.StringFixed(0))
	fmt.Fprintf(out, "  total %s, delivery %s, with delivery %s\n",
		res.Total.StringFixed(0), res.Delivery.StringFixed(0), res.TotalWithDelivery.StringFixed(0))
	if res.BelowMinimum {
		fmt.Fprintf(out, "  below the %s t minimum order\n", formatTons(res.MinimumTons))
	}
}

func formatTons(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
