package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oarkflow/squealx"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/clubauthz"
	"github.com/oarkflow/clubauthz/logger"
	"github.com/oarkflow/clubauthz/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "caps":
		handleCaps()
	case "tiers":
		handleTiers()
	case "eligibility":
		handleEligibility()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("clubauthz - Operator tool for the club authorization engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  clubauthz convert <input> <output>                 - Convert config between YAML and JSON")
	fmt.Println("  clubauthz validate <file>                          - Validate configuration")
	fmt.Println("  clubauthz stats <file>                             - Show configuration statistics")
	fmt.Println("  clubauthz caps <role> [-config file] [-log json]    - List capabilities of a role")
	fmt.Println("  clubauthz tiers                                    - Print the membership tier chain")
	fmt.Println("  clubauthz eligibility <snapshot> [ticket-code] [-config file] [-db file] [-as-of RFC3339] [-log json]")
	fmt.Println("                                                     - Evaluate ticket eligibility for a snapshot")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: clubauthz convert <input> <output>")
		os.Exit(1)
	}
	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := clubauthz.NewConfigLoader().LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: clubauthz validate <file>")
		os.Exit(1)
	}
	cfg, err := clubauthz.NewConfigLoader().LoadFile(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Roles: %d\n", len(cfg.Capabilities))
	fmt.Printf("  Extra blocked capabilities: %d\n", len(cfg.ImpersonationBlocklist))
	fmt.Printf("  Ticket constraint codes: %d\n", len(cfg.TicketConstraints))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: clubauthz stats <file>")
		os.Exit(1)
	}
	filename := os.Args[2]
	cfg, err := clubauthz.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	if len(cfg.Capabilities) > 0 {
		total := 0
		for _, caps := range cfg.Capabilities {
			total += len(caps)
		}
		fmt.Println("Capability Table:")
		fmt.Printf("  Roles:        %d\n", len(cfg.Capabilities))
		fmt.Printf("  Total grants: %d\n", total)
		fmt.Printf("  Avg per role: %.1f\n", float64(total)/float64(len(cfg.Capabilities)))
		fmt.Println()
	} else {
		fmt.Println("Capability Table: built-in")
		fmt.Println()
	}

	fmt.Println("Impersonation Blocklist:")
	fmt.Printf("  Fixed: %d\n", len(clubauthz.ImpersonationBlocklist()))
	fmt.Printf("  Extra: %d\n", len(cfg.ImpersonationBlocklist))
	fmt.Println()

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Audit buffer size:     %d\n", cfg.Engine.AuditBufferSize)
	fmt.Printf("  Batch worker count:    %d\n", cfg.Engine.BatchWorkerCount)
	fmt.Printf("  Decision cache TTL:    %dms\n", cfg.Engine.DecisionCacheTTL)
	fmt.Printf("  Ristretto counters:    %d\n", cfg.Engine.RistrettoNumCounter)
}

func handleCaps() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: clubauthz caps <role> [-config file] [-log json]")
		os.Exit(1)
	}
	flags := parseFlags(os.Args[3:])
	engine := mustEngine(flags, nil)
	defer engine.Close()

	role := clubauthz.Role(os.Args[2])
	caps := engine.CapabilitiesFor(role).Sorted()
	if len(caps) == 0 {
		fmt.Printf("Role %s has no capabilities\n", role)
		return
	}
	fmt.Printf("Capabilities of %s:\n", role)
	for _, c := range caps {
		fmt.Printf("  %s\n", c)
	}
}

func handleTiers() {
	fmt.Println("Membership tiers (lowest to highest):")
	for _, t := range clubauthz.ActiveMemberTiers() {
		fmt.Printf("  %-16s priority %d\n", t, clubauthz.TierPriority(t))
	}
	fmt.Println("Not active:")
	for _, t := range []clubauthz.TierCode{clubauthz.TierProspect, clubauthz.TierLapsed, clubauthz.TierAlumni} {
		fmt.Printf("  %-16s priority %d\n", t, clubauthz.TierPriority(t))
	}
}

func handleEligibility() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: clubauthz eligibility <snapshot> [ticket-code] [-config file] [-db file] [-as-of RFC3339] [-log json]")
		os.Exit(1)
	}
	snap, err := loadSnapshot(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading snapshot: %v\n", err)
		os.Exit(1)
	}
	rest := os.Args[3:]
	code := ""
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		code = rest[0]
		rest = rest[1:]
	}
	flags := parseFlags(rest)

	var asOf *time.Time
	if v := flags["-as-of"]; v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fmt.Printf("Invalid -as-of: %v\n", err)
			os.Exit(1)
		}
		asOf = &t
	}

	var audit clubauthz.AuditHook
	if path := flags["-db"]; path != "" {
		store, closeDB, err := openAuditDB(path)
		if err != nil {
			fmt.Printf("Error opening audit db: %v\n", err)
			os.Exit(1)
		}
		defer closeDB()
		audit = store
	}
	engine := mustEngine(flags, audit)
	defer engine.Close()

	ctx := context.Background()
	eventID := ""
	if snap.Event != nil {
		eventID = snap.Event.ID
	}
	var out any
	if code != "" {
		out = engine.EvaluateTicketEligibility(ctx, clubauthz.EligibilityRequest{
			MemberID:       snap.MemberID,
			EventID:        eventID,
			TicketTypeCode: code,
			AsOf:           asOf,
			Snapshot:       snap,
		})
	} else {
		out = engine.EvaluateAllTicketEligibility(ctx, snap, asOf)
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for i := 0; i+1 < len(args); i += 2 {
		flags[args[i]] = args[i+1]
	}
	return flags
}

func mustEngine(flags map[string]string, audit clubauthz.AuditHook) *clubauthz.Engine {
	var cfg *clubauthz.Config
	if configFile := flags["-config"]; configFile != "" {
		loaded, err := clubauthz.NewConfigLoader().LoadFile(configFile)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	var opts []clubauthz.EngineOption
	switch flags["-log"] {
	case "", "text":
	case "json":
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, clubauthz.WithLogger(logger.NewSLogLogger(slog.New(handler))))
	default:
		fmt.Printf("Unknown log format: %s\n", flags["-log"])
		os.Exit(1)
	}
	engine, err := clubauthz.NewEngineFromConfig(cfg, audit, opts...)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	return engine
}

func openAuditDB(path string) (*stores.SQLAuditStore, func(), error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	db := squealx.NewDb(sqlDB, "sqlite", filepath.Base(path))
	if err := stores.Migrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	store, err := stores.NewSQLAuditStore(db)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return store, func() { sqlDB.Close() }, nil
}

func loadSnapshot(filename string) (*clubauthz.EligibilitySnapshot, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	snap := &clubauthz.EligibilitySnapshot{}
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, snap)
	case ".json":
		err = json.Unmarshal(data, snap)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func saveConfig(cfg *clubauthz.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
