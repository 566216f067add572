// Package main provides presalectl, a command line client for the presale
// service. Address derivation and SOL conversion run locally; every other
// command calls the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"solana-presale/internal/api"
	"solana-presale/internal/auth"
	"solana-presale/internal/domain"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
)

const usage = `Usage: presalectl [global flags] <command> [flags]

Local commands:
  derive     print every derived address of a sale
  sol        convert SOL to lamports
  lamports   convert lamports to SOL
  token      sign a bearer token for the caller

API commands:
  init       initialize a sale (caller becomes authority)
  purchase   buy into a sale
  withdraw   move raised funds to the treasury
  claim      claim purchased tokens
  summary    show sale phase, progress and balances
  record     show a purchase record
  events     list a sale's events
  watch      stream committed events
  balance    show an account's lamports and token balance
  audit      replay event logs against stored accounts
  report     render a sale report as markdown or csv
  airdrop    faucet: credit lamports
  mint       faucet: mint tokens
  fund       faucet: move authority tokens into the sale

Global flags:
`

func main() {
	server := flag.String("server", envOr("PRESALE_SERVER", "http://localhost:8080"), "Presale API base URL")
	callerKey := flag.String("caller", os.Getenv("PRESALE_CALLER"), "Authenticated caller public key")
	programID := flag.String("program-id", envOr("PRESALE_PROGRAM_ID", presale.DefaultProgramID), "Presale program ID")
	token := flag.String("token", os.Getenv("PRESALE_TOKEN"), "Bearer token for servers that verify callers")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New(os.Stderr, "[presalectl] ", 0)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	program, err := solana.ParsePublicKey(*programID)
	if err != nil {
		logger.Fatalf("invalid --program-id: %v", err)
	}
	var caller solana.PublicKey
	if *callerKey != "" {
		if caller, err = solana.ParsePublicKey(*callerKey); err != nil {
			logger.Fatalf("invalid --caller: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cli := &cli{
		program: program,
		caller:  caller,
		client:  newClient(*server, caller),
	}
	cli.client.token = *token
	if err := cli.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Fatal(err)
	}
}

type cli struct {
	program solana.PublicKey
	caller  solana.PublicKey
	client  *client
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "derive":
		return c.derive(args)
	case "sol":
		return convertSOL(args)
	case "lamports":
		return convertLamports(args)
	case "token":
		return c.signToken(args)
	case "init":
		return c.initialize(ctx, args)
	case "purchase":
		return c.purchase(ctx, args)
	case "withdraw":
		return c.withdraw(ctx, args)
	case "claim":
		return c.claim(ctx, args)
	case "summary":
		return c.summary(ctx, args)
	case "record":
		return c.record(ctx, args)
	case "events":
		return c.events(ctx, args)
	case "watch":
		return c.watch(ctx, args)
	case "balance":
		return c.balance(ctx, args)
	case "report":
		return c.report(ctx, args)
	case "audit":
		return c.audit(ctx, args)
	case "airdrop":
		return c.airdrop(ctx, args)
	case "mint":
		return c.mint(ctx, args)
	case "fund":
		return c.fund(ctx, args)
	}
	return fmt.Errorf("unknown command %q (run presalectl -h)", cmd)
}

// keyFlag is a flag.Value holding a public key.
type keyFlag struct {
	key solana.PublicKey
	set bool
}

func (f *keyFlag) String() string {
	if !f.set {
		return ""
	}
	return f.key.String()
}

func (f *keyFlag) Set(s string) error {
	k, err := solana.ParsePublicKey(s)
	if err != nil {
		return err
	}
	f.key, f.set = k, true
	return nil
}

// solFlag is a flag.Value holding a SOL amount in lamports.
type solFlag struct {
	lamports uint64
}

func (f *solFlag) String() string { return domain.FormatSOL(f.lamports) }

func (f *solFlag) Set(s string) error {
	v, err := domain.ParseSOL(s)
	if err != nil {
		return err
	}
	f.lamports = v
	return nil
}

// orCaller returns the flag's key, defaulting to the global caller.
func (c *cli) orCaller(f *keyFlag, name string) (solana.PublicKey, error) {
	if f.set {
		return f.key, nil
	}
	if c.caller.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("--%s or --caller is required", name)
	}
	return c.caller, nil
}

func (c *cli) derive(args []string) error {
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier (empty for the singleton sale)")
	var purchaser, mint keyFlag
	fs.Var(&purchaser, "purchaser", "Purchaser public key (adds purchase record and token account)")
	fs.Var(&mint, "mint", "Token mint (adds sale and purchaser token accounts)")
	fs.Parse(args)

	addrs, err := presale.DeriveAddresses(c.program, *saleID)
	if err != nil {
		return err
	}

	out := map[string]any{
		"program":    c.program,
		"sale_id":    addrs.SaleID,
		"sale":       addrs.Sale,
		"sale_bump":  addrs.SaleBump,
		"vault":      addrs.Vault,
		"vault_bump": addrs.VaultBump,
	}
	if mint.set {
		saleToken, err := presale.SaleTokenAddress(addrs.Sale, mint.key)
		if err != nil {
			return err
		}
		out["sale_token_account"] = saleToken
	}
	if purchaser.set {
		record, bump, err := presale.PurchaseRecordAddress(c.program, *saleID, purchaser.key)
		if err != nil {
			return err
		}
		out["purchase_record"] = record
		out["purchase_record_bump"] = bump
		if mint.set {
			ata, _, err := solana.FindAssociatedTokenAddress(purchaser.key, mint.key)
			if err != nil {
				return err
			}
			out["purchaser_token_account"] = ata
		}
	}
	return printJSON(out)
}

func convertSOL(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: presalectl sol <amount>")
	}
	lamports, err := domain.ParseSOL(args[0])
	if err != nil {
		return err
	}
	fmt.Println(lamports)
	return nil
}

func convertLamports(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: presalectl lamports <amount>")
	}
	lamports, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parse lamports: %w", err)
	}
	fmt.Println(domain.FormatSOL(lamports))
	return nil
}

func (c *cli) initialize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier (at most 32 bytes)")
	var price, softCap, hardCap solFlag
	fs.Var(&price, "price", "Price per whole token in SOL")
	fs.Var(&softCap, "soft-cap", "Soft cap in SOL")
	fs.Var(&hardCap, "hard-cap", "Hard cap in SOL")
	start := fs.String("start", "", "Start time (RFC3339 or unix seconds, default now)")
	duration := fs.Duration("duration", 24*time.Hour, "Sale duration")
	var mint, treasury keyFlag
	fs.Var(&mint, "mint", "Token mint (required)")
	fs.Var(&treasury, "treasury", "Treasury receiving withdrawals (required)")
	fs.Parse(args)

	if !mint.set || !treasury.set {
		return fmt.Errorf("--mint and --treasury are required")
	}
	startTime, err := parseTime(*start)
	if err != nil {
		return err
	}

	var sale api.SaleResponse
	err = c.client.do(ctx, http.MethodPost, "/v1/sales", api.InitializeRequest{
		SaleID:          *saleID,
		PriceLamports:   price.lamports,
		SoftCapLamports: softCap.lamports,
		HardCapLamports: hardCap.lamports,
		StartTime:       startTime,
		EndTime:         startTime + int64(duration.Seconds()),
		TokenMint:       mint.key,
		Treasury:        treasury.key,
	}, &sale)
	if err != nil {
		return err
	}
	return printJSON(sale)
}

func (c *cli) purchase(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purchase", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	var amount solFlag
	fs.Var(&amount, "amount", "Amount to spend in SOL")
	var purchaser keyFlag
	fs.Var(&purchaser, "purchaser", "Purchaser (default --caller)")
	fs.Parse(args)

	who, err := c.orCaller(&purchaser, "purchaser")
	if err != nil {
		return err
	}

	var record api.PurchaseRecordResponse
	err = c.client.do(ctx, http.MethodPost, salePath(*saleID, "/purchase"), api.PurchaseRequest{
		Purchaser:      who,
		AmountLamports: amount.lamports,
	}, &record)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func (c *cli) withdraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	var treasury keyFlag
	fs.Var(&treasury, "treasury", "Treasury recorded at initialization (required)")
	fs.Parse(args)

	if !treasury.set {
		return fmt.Errorf("--treasury is required")
	}

	var resp api.WithdrawResponse
	err := c.client.do(ctx, http.MethodPost, salePath(*saleID, "/withdraw"), api.WithdrawRequest{
		Treasury: treasury.key,
	}, &resp)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	var mint, purchaser keyFlag
	fs.Var(&mint, "mint", "Sale token mint (required)")
	fs.Var(&purchaser, "purchaser", "Purchaser (default --caller)")
	fs.Parse(args)

	if !mint.set {
		return fmt.Errorf("--mint is required")
	}
	who, err := c.orCaller(&purchaser, "purchaser")
	if err != nil {
		return err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(who, mint.key)
	if err != nil {
		return err
	}

	var resp api.ClaimResponse
	err = c.client.do(ctx, http.MethodPost, salePath(*saleID, "/claim"), api.ClaimRequest{
		Purchaser:             who,
		TokenMint:             mint.key,
		PurchaserTokenAccount: ata,
	}, &resp)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) summary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	fs.Parse(args)

	var resp api.SummaryResponse
	if err := c.client.do(ctx, http.MethodGet, salePath(*saleID, ""), nil, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) record(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	var purchaser keyFlag
	fs.Var(&purchaser, "purchaser", "Purchaser (default --caller)")
	fs.Parse(args)

	who, err := c.orCaller(&purchaser, "purchaser")
	if err != nil {
		return err
	}

	var resp api.PurchaseRecordResponse
	if err := c.client.do(ctx, http.MethodGet, salePath(*saleID, "/purchases/"+who.String()), nil, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) events(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	fs.Parse(args)

	var resp []api.EventResponse
	if err := c.client.do(ctx, http.MethodGet, salePath(*saleID, "/events"), nil, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	all := fs.Bool("all", false, "Stream events of every sale")
	fs.Parse(args)

	enc := json.NewEncoder(os.Stdout)
	err := c.client.watch(ctx, *saleID, *all, func(e api.EventResponse) {
		enc.Encode(e)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *cli) balance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	var address, mint keyFlag
	fs.Var(&address, "address", "Account (default --caller)")
	fs.Var(&mint, "mint", "Token mint for a token balance")
	fs.Parse(args)

	who, err := c.orCaller(&address, "address")
	if err != nil {
		return err
	}
	path := "/v1/accounts/" + who.String()
	if mint.set {
		path += "?mint=" + mint.key.String()
	}

	var resp api.AccountResponse
	if err := c.client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	format := fs.String("format", "markdown", "Report format: markdown or csv")
	out := fs.String("out", "", "Write the report to this file instead of stdout")
	fs.Parse(args)

	body, err := c.client.text(ctx, salePath(*saleID, "/report?format="+url.QueryEscape(*format)))
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = os.Stdout.WriteString(body)
		return err
	}
	return os.WriteFile(*out, []byte(body), 0o644)
}

func (c *cli) audit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	all := fs.Bool("all", false, "Audit every sale")
	fs.Parse(args)

	if *all {
		var report api.AuditReportResponse
		if err := c.client.do(ctx, http.MethodGet, "/v1/audit", nil, &report); err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if report.DivergentSales > 0 {
			return fmt.Errorf("%d of %d sales diverge", report.DivergentSales, report.TotalSales)
		}
		return nil
	}

	var resp api.AuditResponse
	if err := c.client.do(ctx, http.MethodGet, salePath(*saleID, "/audit"), nil, &resp); err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Match {
		return fmt.Errorf("sale %q diverges in %d fields", resp.SaleID, len(resp.Divergences))
	}
	return nil
}

func (c *cli) airdrop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("airdrop", flag.ExitOnError)
	var address keyFlag
	fs.Var(&address, "address", "Account to credit (default --caller)")
	var amount solFlag
	fs.Var(&amount, "amount", "Amount in SOL")
	fs.Parse(args)

	who, err := c.orCaller(&address, "address")
	if err != nil {
		return err
	}
	return c.client.do(ctx, http.MethodPost, "/v1/faucet/airdrop", api.AirdropRequest{
		Address:  who,
		Lamports: amount.lamports,
	}, nil)
}

func (c *cli) mint(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	var mint, owner keyFlag
	fs.Var(&mint, "mint", "Token mint (required)")
	fs.Var(&owner, "owner", "Token owner (default --caller)")
	amount := fs.Uint64("amount", 0, "Tokens to mint")
	fs.Parse(args)

	if !mint.set {
		return fmt.Errorf("--mint is required")
	}
	who, err := c.orCaller(&owner, "owner")
	if err != nil {
		return err
	}

	var resp api.AccountResponse
	err = c.client.do(ctx, http.MethodPost, "/v1/faucet/mint", api.MintRequest{
		Mint:   mint.key,
		Owner:  who,
		Amount: *amount,
	}, &resp)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) fund(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fund", flag.ExitOnError)
	saleID := fs.String("sale", "", "Sale identifier")
	amount := fs.Uint64("amount", 0, "Tokens to move into the sale")
	fs.Parse(args)

	return c.client.do(ctx, http.MethodPost, salePath(*saleID, "/fund"), api.FundRequest{Amount: *amount}, nil)
}

func (c *cli) signToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("PRESALE_JWT_SECRET"), "Server token signing secret")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(args)

	if c.caller.IsZero() {
		return fmt.Errorf("token requires --caller")
	}
	signed, err := auth.GenerateToken(c.caller, []byte(*secret), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

// parseTime accepts RFC3339 or unix seconds; empty means now.
func parseTime(s string) (int64, error) {
	if s == "" {
		return time.Now().Unix(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.Unix(), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
