// Command c2payctl drives the authorization core from the command
// line. It replays a recorded interaction session into the behavioral
// trackers, runs an authorization, and can verify the last issued
// manifest or reset the device identity.
//
// Usage:
//
//	c2payctl [-config c2pay.toml] authorize -session session.json -amount 499.99 -merchant TechStore
//	c2payctl [-config c2pay.toml] verify
//	c2payctl [-config c2pay.toml] reset
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"c2pay/internal/biometric"
	"c2pay/internal/config"
	"c2pay/internal/identity"
	"c2pay/internal/keystroke"
	"c2pay/internal/logging"
	"c2pay/internal/manifest"
	"c2pay/internal/motion"
	"c2pay/internal/payment"
	"c2pay/internal/risk"
	"c2pay/internal/session"
	"c2pay/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default: platform config dir)")
	versionFlag := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "c2payctl - c2pay authorization core CLI\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [command flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  authorize   replay a session and authorize a payment\n")
		fmt.Fprintf(os.Stderr, "  verify      verify the last issued manifest\n")
		fmt.Fprintf(os.Stderr, "  reset       destroy the device identity and baselines\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("c2payctl %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, _, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logging.SetDefault(log)

	var code int
	switch flag.Arg(0) {
	case "authorize":
		code = cmdAuthorize(cfg, log, flag.Args()[1:])
	case "verify":
		code = cmdVerify(cfg, log)
	case "reset":
		code = cmdReset(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		code = 2
	}
	os.Exit(code)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "c2payctl",
	})
}

// openCore wires the store, identity and engine from configuration.
// When a recording is given, its events are replayed into the trackers
// before the engine is built.
func openCore(cfg *config.Config, log *logging.Logger, threshold int, rec *recording) (*risk.Engine, *core, error) {
	id := identity.NewService(cfg.Storage.KeyDir)

	hmacKey, err := id.HMACKey()
	if err != nil {
		return nil, nil, fmt.Errorf("derive store key: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path, hmacKey, cfg.Storage.BusyTimeoutMs)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	if err := risk.SeedTypicalAmount(st, cfg.Risk.TypicalAmountFallback); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("seed typical amount: %w", err)
	}

	prompt := biometric.NewPlatformPrompt()
	if !cfg.Biometric.FprintdEnabled {
		prompt = biometric.UnavailablePrompt()
	}

	c := &core{
		store:     st,
		keystroke: keystroke.NewTracker(),
		session:   session.NewTracker(),
		motion:    motion.NewAnalyzer(),
	}
	if rec != nil {
		c.session = rec.replay(c.keystroke, c.motion)
	}

	engine := risk.New(risk.Deps{
		Store:     st,
		Keystroke: c.keystroke,
		Session:   c.session,
		Motion:    c.motion,
		Verifier:  biometric.NewVerifier(prompt, biometric.NoCamera{}),
		Manifests: manifest.NewService(id),
		Identity:  id,
		Logger:    log,
	}, threshold)

	return engine, c, nil
}

// core bundles the per-session trackers and the store handle.
type core struct {
	store     *store.Store
	keystroke *keystroke.Tracker
	session   *session.Tracker
	motion    *motion.Analyzer
}

func (c *core) Close() { c.store.Close() }

func cmdAuthorize(cfg *config.Config, log *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("authorize", flag.ExitOnError)
	sessionFile := fs.String("session", "", "recorded session events (JSON)")
	amount := fs.Float64("amount", 0, "payment amount")
	merchant := fs.String("merchant", "", "merchant name")
	orderID := fs.String("order", "", "order id (default: generated)")
	threshold := fs.Int("threshold", 0, "risk threshold override (default: config)")
	learn := fs.Bool("learn", false, "save this session's profiles as the new baseline")
	fs.Parse(args)

	if *amount <= 0 || *merchant == "" {
		fmt.Fprintln(os.Stderr, "Error: -amount and -merchant are required")
		return 2
	}
	if *orderID == "" {
		*orderID = fmt.Sprintf("order-%d", time.Now().Unix())
	}
	th := *threshold
	if th == 0 {
		th = cfg.Risk.Threshold
	}

	var rec *recording
	if *sessionFile != "" {
		var err error
		rec, err = loadRecording(*sessionFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: load session: %v\n", err)
			return 1
		}
	}

	engine, c, err := openCore(cfg, log, th, rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Biometric.PromptTimeoutSec)*time.Second)
	defer cancel()

	decision, err := engine.Authorize(ctx, risk.Payment{
		Amount:   *amount,
		Merchant: *merchant,
		OrderID:  *orderID,
	})

	printAssessment(decision)

	if err != nil {
		switch {
		case errors.Is(err, risk.ErrBiometricUnavailable):
			fmt.Println("DECLINED: step-up verification required but no biometric method is available")
		case errors.Is(err, risk.ErrBiometricFailed):
			fmt.Println("DECLINED: step-up verification failed")
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	receipt, err := payment.NewClient(200 * time.Millisecond).Process(ctx, *amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: payment capture: %v\n", err)
		return 1
	}
	fmt.Printf("APPROVED: %s\n", receipt.PaymentIntent)

	if *learn && cfg.Risk.Learning {
		if err := engine.SaveProfiles(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: save baselines: %v\n", err)
			return 1
		}
		fmt.Println("baselines updated")
	}
	return 0
}

func cmdVerify(cfg *config.Config, log *logging.Logger) int {
	engine, c, err := openCore(cfg, log, cfg.Risk.Threshold, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Close()

	report, err := engine.VerifyLast()
	if err != nil {
		if errors.Is(err, risk.ErrNoManifest) {
			fmt.Fprintln(os.Stderr, "Error: no manifest has been issued yet")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode report: %v\n", err)
		return 1
	}
	fmt.Println(string(out))

	if !report.Valid {
		return 1
	}
	return 0
}

func cmdReset(cfg *config.Config) int {
	id := identity.NewService(cfg.Storage.KeyDir)
	if err := id.Reset(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: reset identity: %v\n", err)
		return 1
	}
	// Baselines are HMAC-keyed by the old identity; remove them too.
	if err := os.Remove(cfg.Storage.Path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: remove store: %v\n", err)
		return 1
	}
	fmt.Println("device identity and baselines destroyed")
	return 0
}

func printAssessment(d risk.Decision) {
	a := d.Assessment
	fmt.Printf("risk: %d (behavioral %d, passive %d)  mfa: %t\n",
		a.TotalRisk, a.Breakdown.Behavioral, a.Breakdown.PassiveBio, d.MFATriggered)
	for _, f := range a.RedFlags {
		fmt.Printf("  flag: %s\n", f)
	}
}
