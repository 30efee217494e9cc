package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
)

// WindowReport describes the renewal window around one expiry date.
type WindowReport struct {
	Expiry         string `json:"expiry"`
	At             string `json:"at"`
	Opens          string `json:"opens"`
	Closes         string `json:"closes"`
	InWindow       bool   `json:"in_window"`
	Expired        bool   `json:"expired"`
	DaysPastExpiry int    `json:"days_past_expiry"`
}

func (r WindowReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "expiry %s, checked at %s\n", r.Expiry, r.At)
	fmt.Fprintf(&sb, "  window:    %s .. %s\n", r.Opens, r.Closes)
	fmt.Fprintf(&sb, "  in window: %t\n", r.InWindow)
	fmt.Fprintf(&sb, "  expired:   %t (%+d day(s))", r.Expired, r.DaysPastExpiry)
	return sb.String()
}

func (r WindowReport) TableHeaders() []string {
	return []string{"EXPIRY", "AT", "OPENS", "CLOSES", "IN WINDOW", "EXPIRED", "DAYS PAST"}
}

func (r WindowReport) TableRows() [][]string {
	return [][]string{{r.Expiry, r.At, r.Opens, r.Closes, strconv.FormatBool(r.InWindow), strconv.FormatBool(r.Expired), strconv.Itoa(r.DaysPastExpiry)}}
}

// evaluateWindow computes the report in the office calendar. Day counts are
// calendar days, never elapsed hours.
func evaluateWindow(cal calendar.Calendar, expiry, at time.Time, w franchise.Window) WindowReport {
	days := cal.DaysBetween(at, expiry)
	return WindowReport{
		Expiry:         expiry.In(cal.Location()).Format(dateLayout),
		At:             at.In(cal.Location()).Format(dateLayout),
		Opens:          cal.AddDays(expiry, -w.Before).Format(dateLayout),
		Closes:         cal.AddDays(expiry, w.After).Format(dateLayout),
		InWindow:       franchise.InWindow(cal, at, &expiry, w),
		Expired:        days > 0,
		DaysPastExpiry: days,
	}
}

func newWindowCmd() *cobra.Command {
	var (
		expiryArg string
		atArg     string
		before    int
		after     int
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Check whether a renewal may be filed on a date",
		Long: `Evaluate the renewal window for an expiry date without contacting the service.

The window bounds default to franchise.enable_renew_before_expiry_days and
franchise.enable_renew_after_expiry_days from the configuration.`,
		Example: "  franchisectl window --expiry 2024-01-10 --at 2024-01-20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			loc := cc.Calendar.Location()

			expiry, err := time.ParseInLocation(dateLayout, expiryArg, loc)
			if err != nil {
				return fmt.Errorf("invalid --expiry %q (want YYYY-MM-DD)", expiryArg)
			}
			at := cc.Clock.Now()
			if atArg != "" {
				if at, err = time.ParseInLocation(dateLayout, atArg, loc); err != nil {
					return fmt.Errorf("invalid --at %q (want YYYY-MM-DD)", atArg)
				}
			}

			w := franchise.Window{
				Before: cc.Config.Franchise.EnableRenewBeforeExpiryDays,
				After:  cc.Config.Franchise.EnableRenewAfterExpiryDays,
			}
			if cmd.Flags().Changed("before") {
				w.Before = before
			}
			if cmd.Flags().Changed("after") {
				w.After = after
			}
			if w.Before < 0 || w.After < 0 {
				return fmt.Errorf("window bounds must not be negative")
			}

			return PrintResult(cmd, evaluateWindow(cc.Calendar, expiry, at, w))
		},
	}
	cmd.Flags().StringVar(&expiryArg, "expiry", "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&atArg, "at", "", "date to evaluate (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&before, "before", 0, "days before expiry the window opens")
	cmd.Flags().IntVar(&after, "after", 0, "days after expiry the window closes")
	_ = cmd.MarkFlagRequired("expiry")
	return cmd
}
