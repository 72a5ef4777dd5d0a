// Command c2payverify is a standalone tool for verifying c2pay
// transaction manifests.
//
// It needs no local device state: the manifest carries its own public
// key and attestation, so verification runs anywhere.
//
// Usage:
//
//	c2payverify [flags] <manifest.json>
//
// Examples:
//
//	# Basic verification
//	c2payverify manifest.json
//
//	# JSON output for pipelines
//	c2payverify -format json manifest.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"c2pay/internal/manifest"
)

var version = "dev"

func main() {
	formatStr := flag.String("format", "text", "output format: text, json")
	quiet := flag.Bool("quiet", false, "quiet mode - exit code only")
	versionFlag := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "c2payverify - Verify c2pay transaction manifests\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <manifest.json>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("c2payverify %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: manifest file required\n\n")
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read manifest: %v\n", err)
		os.Exit(1)
	}

	if err := manifest.ValidateSchema(raw); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parse manifest: %v\n", err)
		os.Exit(1)
	}

	report := manifest.VerifyWithChain(m, time.Now())

	if !*quiet {
		switch *formatStr {
		case "json":
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: encode report: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		default:
			printTextReport(m, report)
		}
	}

	if !report.Valid {
		os.Exit(1)
	}
}

func printTextReport(m manifest.Manifest, r manifest.ChainReport) {
	fmt.Printf("Manifest %s  %s %.2f to %s (order %s)\n",
		m.Version, m.Claim.Payment.Currency, m.Claim.Payment.Amount,
		m.Claim.Payment.Merchant, m.Claim.Payment.OrderID)
	fmt.Printf("  signed at:    %s\n", m.Claim.Timestamp)
	fmt.Printf("  device:       %s (%s)\n", m.Attestation.DeviceID, m.Claim.Device.Fingerprint)
	fmt.Printf("  risk score:   %d\n", m.Claim.Behavioral.RiskScore)
	fmt.Println()
	fmt.Printf("  signature:    %s\n", mark(r.Checks.SignatureValid))
	fmt.Printf("  attestation:  %s\n", mark(r.Checks.AttestationValid))
	fmt.Printf("  freshness:    %s\n", mark(r.Checks.TimestampValid))
	fmt.Printf("  trust chain:  %s (storage: %s, hardware-backed: %t)\n",
		mark(r.TEEStatus.AttestationChainValid),
		r.TEEStatus.StorageLevel, r.TEEStatus.HardwareBackedClaimed)
	fmt.Println()

	if r.Valid {
		fmt.Println("VALID")
		return
	}
	fmt.Println("INVALID")
	for _, e := range r.Errors {
		fmt.Printf("  - %s\n", e)
	}
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
