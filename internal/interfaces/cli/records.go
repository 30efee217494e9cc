package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/turtacn/toda-franchise/pkg/client"
)

const dateLayout = "2006-01-02"

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func parseKind(arg string) (string, error) {
	switch strings.ToLower(arg) {
	case client.KindFranchise:
		return client.KindFranchise, nil
	case client.KindRenewal:
		return client.KindRenewal, nil
	default:
		return "", fmt.Errorf("invalid kind %q (must be franchise or renewal)", arg)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// ─────────────────────────────────────────────────────────────────────────────
// status
// ─────────────────────────────────────────────────────────────────────────────

// StatusReport is the output of the status command.
type StatusReport struct {
	FranchiseID int64 `json:"franchise_id"`
	client.ExpiryStatus
}

func (r StatusReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "franchise %d: %s (from %s)\n", r.FranchiseID, r.EffectiveStatus, r.EffectiveSource)
	fmt.Fprintf(&sb, "  expiry:    %s\n", formatDate(r.ExpiryDate))
	fmt.Fprintf(&sb, "  expired:   %t\n", r.IsExpired)
	fmt.Fprintf(&sb, "  can renew: %t", r.CanRenew)
	return sb.String()
}

func (r StatusReport) TableHeaders() []string {
	return []string{"ID", "STATUS", "SOURCE", "EXPIRY", "EXPIRED", "CAN RENEW"}
}

func (r StatusReport) TableRows() [][]string {
	return [][]string{{
		strconv.FormatInt(r.FranchiseID, 10),
		r.EffectiveStatus,
		r.EffectiveSource,
		formatDate(r.ExpiryDate),
		strconv.FormatBool(r.IsExpired),
		strconv.FormatBool(r.CanRenew),
	}}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <franchise-id>",
		Short: "Show the effective status of a franchise",
		Long:  "Show the effective approval status, expiry and renewal eligibility of a franchise, taking its latest renewal into account.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			api, err := cc.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()

			st, err := api.Franchises().Status(ctx, id)
			if err != nil {
				return err
			}
			return PrintResult(cmd, StatusReport{FranchiseID: id, ExpiryStatus: *st})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// rates
// ─────────────────────────────────────────────────────────────────────────────

// RatesReport flattens a rate resolution into fee lines.
type RatesReport struct {
	*client.Rates
}

func pesos(centavos int64) string {
	return decimal.New(centavos, -2).StringFixed(2)
}

func (r RatesReport) lines() [][]string {
	var rows [][]string
	for _, sheet := range []*client.RateSheet{r.Registration, r.Renewal} {
		if sheet == nil {
			continue
		}
		for _, f := range sheet.Fees {
			note := ""
			switch {
			case f.IsPenalty && f.IsPenaltyActive:
				note = "penalty (active)"
			case f.IsPenalty:
				note = fmt.Sprintf("penalty after %d day(s)", f.ActivatePenaltyAfterExpiryDays)
			}
			rows = append(rows, []string{sheet.FeeType, f.Name, pesos(f.Amount), note})
		}
	}
	return rows
}

func (r RatesReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rates for franchise %d\n", r.FranchiseID)
	for _, row := range r.lines() {
		fmt.Fprintf(&sb, "  %-12s %-32s %10s  %s\n", row[0], row[1], row[2], row[3])
	}
	if r.RegistrationMissing {
		sb.WriteString("  no registration rate sheet applies\n")
	}
	if r.RenewalMissing {
		sb.WriteString("  no renewal rate sheet applies\n")
	}
	fmt.Fprintf(&sb, "registration total: %s\n", r.RegistrationTotal)
	fmt.Fprintf(&sb, "renewal total:      %s", r.RenewalTotal)
	return sb.String()
}

func (r RatesReport) TableHeaders() []string {
	return []string{"FEE TYPE", "FEE", "AMOUNT", "NOTE"}
}

func (r RatesReport) TableRows() [][]string {
	rows := r.lines()
	rows = append(rows,
		[]string{"registration", "TOTAL", r.RegistrationTotal, ""},
		[]string{"renewal", "TOTAL", r.RenewalTotal, ""},
	)
	return rows
}

func newRatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rates <franchise-id>",
		Short: "Show the fees that apply to a franchise",
		Long:  "Resolve the registration and renewal rate sheets for a franchise, including any penalty tier active today.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			api, err := cc.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()

			rates, err := api.Franchises().Rates(ctx, id)
			if err != nil {
				return err
			}
			return PrintResult(cmd, RatesReport{Rates: rates})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// transition / pay
// ─────────────────────────────────────────────────────────────────────────────

// TransitionReport is the output of the transition and pay commands.
type TransitionReport struct {
	*client.TransitionResult
}

func (r TransitionReport) String() string {
	s := fmt.Sprintf("%s %d (plate %s): %s -> %s", r.Kind, r.ID, r.PlateNo, r.From, r.To)
	if r.ExpiryDate != nil {
		s += fmt.Sprintf(", approved %s, expires %s", formatDate(r.ApprovalDate), formatDate(r.ExpiryDate))
	}
	return s
}

func (r TransitionReport) TableHeaders() []string {
	return []string{"KIND", "ID", "PLATE", "FROM", "TO", "EXPIRY"}
}

func (r TransitionReport) TableRows() [][]string {
	return [][]string{{r.Kind, strconv.FormatInt(r.ID, 10), r.PlateNo, r.From, r.To, formatDate(r.ExpiryDate)}}
}

func newTransitionCmd() *cobra.Command {
	var (
		status  string
		remarks []string
	)
	cmd := &cobra.Command{
		Use:   "transition <franchise|renewal> <id>",
		Short: "Move a record through the approval workflow",
		Long: `Request an approval-status change on a franchise or renewal.

Without --status the record advances along pending-validation -> validated -> paid -> approved.
Rejections should carry at least one --remark.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			api, err := cc.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()

			notes := make([]client.Remark, 0, len(remarks))
			for _, r := range remarks {
				notes = append(notes, parseRemark(r))
			}
			res, err := api.Franchises().Transition(ctx, kind, id, strings.ToLower(strings.TrimSpace(status)), notes...)
			if err != nil {
				return err
			}
			return PrintResult(cmd, TransitionReport{TransitionResult: res})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status (validated, paid, approved, rejected, canceled, revoked)")
	cmd.Flags().StringArrayVar(&remarks, "remark", nil, "reviewer remark, optionally prefixed with a field name as field:text (repeatable)")
	return cmd
}

// parseRemark splits "field:text" into a field-scoped remark. Text without
// a recognisable field prefix is a general remark.
func parseRemark(s string) client.Remark {
	s = strings.TrimSpace(s)
	if field, text, ok := strings.Cut(s, ":"); ok && field != "" && !strings.ContainsAny(field, " \t") {
		return client.Remark{FieldName: field, Remark: strings.TrimSpace(text)}
	}
	return client.Remark{Remark: s}
}

func newPayCmd() *cobra.Command {
	var orNo string
	cmd := &cobra.Command{
		Use:   "pay <franchise|renewal> <id>",
		Short: "Record the official receipt for a validated record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			if strings.TrimSpace(orNo) == "" {
				return fmt.Errorf("--or-no is required")
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			api, err := cc.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()

			res, err := api.Franchises().Pay(ctx, kind, id, strings.TrimSpace(orNo))
			if err != nil {
				return err
			}
			return PrintResult(cmd, TransitionReport{TransitionResult: res})
		},
	}
	cmd.Flags().StringVar(&orNo, "or-no", "", "official receipt number")
	return cmd
}
