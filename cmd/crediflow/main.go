package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crediflow/crediflow/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	gatewayURL string
	address    string
	token      string
	cfgFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crediflow",
	Short: "Crediflow invoice financing CLI",
	Long: `crediflow is the command-line interface for the Crediflow gateway.

It records invoices and loan events as content-addressed entries on the
ledger and derives their lifecycle status from recent history.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.crediflow")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if gatewayURL == "" {
			gatewayURL = viper.GetString("gateway_url")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:8080"
		}
		if address == "" {
			address = viper.GetString("address")
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.crediflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Crediflow gateway URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&address, "address", "", "ledger address to act as")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "pre-obtained bearer token (skips token exchange)")

	rootCmd.AddCommand(invoiceCmd)
	rootCmd.AddCommand(loanCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	} else if address != "" {
		opts = append(opts, client.WithAddress(address))
	}
	return client.New(gatewayURL, opts...)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── invoice ──────────────────────────────────────────────────────────────────

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Submit, verify and track invoices",
}

var (
	invAmount      string
	invRecipient   string
	invDue         string
	invDescription string
	invIssuerName  string
	invFormat      string
)

var invoiceSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a new invoice on the ledger",
	Long: `Submit validates the invoice, canonicalizes it and appends it to the
ledger. The printed invoice_id is the SHA-256 of the exact payload bytes;
anyone holding the entry can recompute it.

  crediflow invoice submit --address addr_issuer_1 \
      --amount 1000 --recipient addr_customer_1 --due 2026-12-01`,
	RunE: runInvoiceSubmit,
}

var invoiceStatusCmd = &cobra.Command{
	Use:   "status <invoice-id>",
	Short: "Derive the lifecycle status of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceStatus,
}

var (
	verifyOwner    string
	verifyEntryRef string
)

var invoiceVerifyCmd = &cobra.Command{
	Use:   "verify <invoice-id>",
	Short: "Recompute an invoice identifier from the stored payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceVerify,
}

func init() {
	invoiceSubmitCmd.Flags().StringVar(&invAmount, "amount", "", "invoice face value")
	invoiceSubmitCmd.Flags().StringVar(&invRecipient, "recipient", "", "recipient ledger address")
	invoiceSubmitCmd.Flags().StringVar(&invDue, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	invoiceSubmitCmd.Flags().StringVar(&invDescription, "description", "", "free-form description")
	invoiceSubmitCmd.Flags().StringVar(&invIssuerName, "name", "", "issuer display name")
	invoiceSubmitCmd.Flags().StringVar(&invFormat, "format", "text", "output format: text or json")

	invoiceStatusCmd.Flags().StringVar(&verifyOwner, "owner", "", "history scope (defaults to --address)")
	invoiceVerifyCmd.Flags().StringVar(&verifyOwner, "owner", "", "history scope (defaults to --address)")
	invoiceVerifyCmd.Flags().StringVar(&verifyEntryRef, "entry-ref", "", "pin the lookup to a known entry ref")

	invoiceCmd.AddCommand(invoiceSubmitCmd)
	invoiceCmd.AddCommand(invoiceStatusCmd)
	invoiceCmd.AddCommand(invoiceVerifyCmd)
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		// Interpret a bare date as end of that day UTC.
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse due date %q", s)
}

func runInvoiceSubmit(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(invAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}
	due, err := parseDue(invDue)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	inv, err := c.SubmitInvoice(ctx, client.InvoiceRequest{
		Amount:            amount,
		RecipientIdentity: invRecipient,
		DueDate:           due,
		Description:       invDescription,
		IssuerName:        invIssuerName,
	})
	if err != nil {
		return err
	}

	if invFormat == "json" {
		return printJSON(inv)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "invoice_id\t%s\n", inv.InvoiceID)
	fmt.Fprintf(w, "entry_ref\t%s\n", inv.EntryRef)
	fmt.Fprintf(w, "amount\t%s\n", inv.Amount)
	fmt.Fprintf(w, "due_date\t%s\n", inv.DueDate.Format(time.RFC3339))
	fmt.Fprintf(w, "status\t%s\n", inv.Status)
	return w.Flush()
}

func runInvoiceStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	st, err := c.InvoiceStatus(ctx, args[0], verifyOwner)
	if err != nil {
		return err
	}
	fmt.Println(st)
	return nil
}

func runInvoiceVerify(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	res, err := c.VerifyInvoice(ctx, args[0], verifyOwner, verifyEntryRef)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// ── loan ─────────────────────────────────────────────────────────────────────

var loanCmd = &cobra.Command{
	Use:   "loan",
	Short: "Request, fund, repay and track loans",
}

var (
	loanInvoiceID string
	loanAmount    string
	loanDays      int
	loanLender    string
)

var loanRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request a loan against a recorded invoice",
	Long: `Request runs the gateway's risk assessment against the referenced
invoice and, when approved, records the loan request on the ledger:

  crediflow loan request --address addr_borrower_1 \
      --invoice <invoice-id> --amount 800 --days 30`,
	RunE: runLoanRequest,
}

var loanStatusCmd = &cobra.Command{
	Use:   "status <loan-id>",
	Short: "Derive the lifecycle status of a loan",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoanStatus,
}

var fundBorrower string

var loanFundCmd = &cobra.Command{
	Use:   "fund <loan-id>",
	Short: "Fund a loan request as a lender",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoanFund,
}

var (
	repayCounterpart string
	repayAmount      string
)

var loanRepayCmd = &cobra.Command{
	Use:   "repay <loan-id>",
	Short: "Repay a loan, settling the financed invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoanRepay,
}

var loanAssessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Dry-run the risk assessment without recording anything",
	RunE:  runLoanAssess,
}

func init() {
	for _, c := range []*cobra.Command{loanRequestCmd, loanAssessCmd} {
		c.Flags().StringVar(&loanInvoiceID, "invoice", "", "invoice identifier the loan is requested against")
		c.Flags().StringVar(&loanAmount, "amount", "", "requested principal")
		c.Flags().IntVar(&loanDays, "days", 0, "loan duration in days")
		c.Flags().StringVar(&loanLender, "lender", "", "known lender address (optional)")
	}

	loanStatusCmd.Flags().StringVar(&verifyOwner, "owner", "", "history scope (defaults to --address)")
	loanFundCmd.Flags().StringVar(&fundBorrower, "borrower", "", "borrower address holding the loan request")
	loanRepayCmd.Flags().StringVar(&repayCounterpart, "counterpart", "", "repayment recipient (defaults to the recorded lender)")
	loanRepayCmd.Flags().StringVar(&repayAmount, "amount", "", "repayment amount (defaults to the requested principal)")

	loanCmd.AddCommand(loanRequestCmd)
	loanCmd.AddCommand(loanStatusCmd)
	loanCmd.AddCommand(loanFundCmd)
	loanCmd.AddCommand(loanRepayCmd)
	loanCmd.AddCommand(loanAssessCmd)
}

func loanRequestFromFlags() (client.LoanRequest, error) {
	amount, err := decimal.NewFromString(loanAmount)
	if err != nil {
		return client.LoanRequest{}, fmt.Errorf("invalid --amount: %w", err)
	}
	return client.LoanRequest{
		InvoiceID:        loanInvoiceID,
		RequestedAmount:  amount,
		LoanDurationDays: loanDays,
		LenderIdentity:   loanLender,
	}, nil
}

func runLoanRequest(cmd *cobra.Command, args []string) error {
	req, err := loanRequestFromFlags()
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	loan, assessment, err := c.RequestLoan(ctx, req)
	if errors.Is(err, client.ErrLoanDeclined) {
		fmt.Fprintln(os.Stderr, "loan request declined:")
		if assessment != nil {
			printJSON(assessment) //nolint:errcheck
		}
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "loan_id\t%s\n", loan.LoanID)
	fmt.Fprintf(w, "entry_ref\t%s\n", loan.EntryRef)
	fmt.Fprintf(w, "invoice_id\t%s\n", loan.InvoiceID)
	fmt.Fprintf(w, "amount\t%s\n", loan.RequestedAmount)
	fmt.Fprintf(w, "duration_days\t%d\n", loan.LoanDurationDays)
	fmt.Fprintf(w, "risk_score\t%d (%s)\n", assessment.Score, assessment.Grade)
	return w.Flush()
}

func runLoanStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	st, err := c.LoanStatus(ctx, args[0], verifyOwner)
	if err != nil {
		return err
	}
	fmt.Println(st)
	return nil
}

func runLoanFund(cmd *cobra.Command, args []string) error {
	if fundBorrower == "" {
		return fmt.Errorf("--borrower is required")
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	ref, err := c.FundLoan(ctx, args[0], fundBorrower)
	if err != nil {
		return err
	}
	fmt.Printf("funded: entry_ref %s\n", ref)
	return nil
}

func runLoanRepay(cmd *cobra.Command, args []string) error {
	amount := decimal.Zero
	if repayAmount != "" {
		var err error
		amount, err = decimal.NewFromString(repayAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount: %w", err)
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	ref, err := c.RepayLoan(ctx, args[0], repayCounterpart, amount)
	if err != nil {
		return err
	}
	fmt.Printf("repaid: entry_ref %s\n", ref)
	return nil
}

func runLoanAssess(cmd *cobra.Command, args []string) error {
	req, err := loanRequestFromFlags()
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	assessment, err := c.Assess(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(assessment)
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the backing ledger",
	RunE:  runLedgerOverview,
}

var ledgerEntryCmd = &cobra.Command{
	Use:   "entry <entry-ref>",
	Short: "Fetch a single ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerEntry,
}

func init() {
	ledgerCmd.AddCommand(ledgerEntryCmd)
}

func runLedgerOverview(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	st, err := c.LedgerOverview(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("capability_version: %s\n", st.CapabilityVersion)
	return nil
}

func runLedgerEntry(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := cmdContext()
	defer cancel()

	entry, err := c.LedgerEntry(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(entry)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crediflow %s\n", version)
	},
}
