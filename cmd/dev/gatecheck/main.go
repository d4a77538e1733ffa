// gatecheck prints what the booking gate offers for a given state, or for a live booking fetched
// from the marketplace backend. It is a support tool for answering "why is this button missing".
//
//	gatecheck --status ACCEPTED --escrow PAID --role CUSTOMER
//	gatecheck --matrix --role PROVIDER
//	gatecheck --booking 42 --token <backend token> --role ADMIN
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"umrahlink/internal/booking"
	"umrahlink/pkg/backend"
	"umrahlink/pkg/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	status   string
	escrow   string
	role     string
	reviewed bool
	disputed bool
	matrix   bool

	bookingID  int64
	token      string
	backendURL string
}

func run(args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("gatecheck", pflag.ContinueOnError)
	flagSet.StringVar(&opts.status, "status", "", "booking status")
	flagSet.StringVar(&opts.escrow, "escrow", "", "escrow status")
	flagSet.StringVarP(&opts.role, "role", "r", "CUSTOMER", "viewer role (CUSTOMER, PROVIDER, ADMIN)")
	flagSet.BoolVar(&opts.reviewed, "reviewed", false, "the booking already has a review")
	flagSet.BoolVar(&opts.disputed, "disputed", false, "the booking already has a dispute")
	flagSet.BoolVar(&opts.matrix, "matrix", false, "print the verdict for every status and escrow pair")
	flagSet.Int64Var(&opts.bookingID, "booking", 0, "fetch this booking from the backend instead of --status/--escrow")
	flagSet.StringVar(&opts.token, "token", os.Getenv("BACKEND_TOKEN"), "backend auth token for --booking")
	flagSet.StringVar(&opts.backendURL, "backend-url", "", "backend API root (default BACKEND_BASE_URL)")
	flagSet.SetOutput(out)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	role, err := booking.ParseRole(strings.ToUpper(opts.role))
	if err != nil {
		return err
	}

	switch {
	case opts.matrix:
		return printMatrix(out, role, opts.reviewed, opts.disputed)
	case opts.bookingID > 0:
		return checkLive(out, opts, role)
	default:
		v, err := booking.NewViewState(strings.ToUpper(opts.status), strings.ToUpper(opts.escrow), string(role), opts.reviewed, opts.disputed)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"state": v, "actions": booking.Evaluate(v)})
	}
}

func checkLive(out io.Writer, opts options, role booking.Role) error {
	if opts.token == "" {
		return errors.New("--booking needs --token or BACKEND_TOKEN")
	}
	base := opts.backendURL
	if base == "" {
		base = config.Load().Backend.BaseURL
	}
	client := backend.NewClient(base, 20*time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := client.GetBooking(ctx, opts.token, opts.bookingID)
	if err != nil {
		return err
	}
	v, err := booking.NewViewState(b.Status, b.EscrowStatus, string(role), opts.reviewed, opts.disputed)
	if err != nil {
		return fmt.Errorf("booking %d: %w", b.ID, err)
	}
	return printJSON(out, map[string]any{
		"booking":   b.Reference,
		"state":     v,
		"actions":   booking.Evaluate(v),
		"total":     b.TotalAmount.StringFixed(2),
		"currency":  b.ServiceCurrency,
		"updatedAt": b.UpdatedAt,
	})
}

func printMatrix(out io.Writer, role booking.Role, reviewed, disputed bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tESCROW\tCANCEL\tCHAT\tPAY\tREVIEW\tDISPUTE\tRELEASE\tREFUND\tNEXT")
	for _, s := range booking.Statuses() {
		for _, e := range booking.EscrowStatuses() {
			a := booking.Evaluate(booking.ViewState{Status: s, EscrowStatus: e, Role: role, HasExistingReview: reviewed, HasDispute: disputed})
			next := make([]string, 0, len(a.StatusTransitions))
			for _, t := range a.StatusTransitions {
				next = append(next, string(t))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", s, e,
				mark(a.CanCancel), mark(a.CanChat), mark(a.CanInitiatePayment), mark(a.CanReview),
				mark(a.CanOpenDispute), mark(a.CanReleaseEscrow), mark(a.CanRefund), strings.Join(next, ","))
		}
	}
	return tw.Flush()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
