// Package main implements the flowydb binary, which creates, inspects,
// migrates, imports into and backs up the local SQLite database.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/flowydb/flowydb/internal/app"
	"github.com/flowydb/flowydb/internal/config"
	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

// newApp builds the application for commands that touch the database.
var newApp = app.New

// errUsage marks an error caused by bad command-line usage.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "flowydb: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// globalFlags are accepted before the command name.
type globalFlags struct {
	configFile string
	envFile    string
	dataDir    string
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("flowydb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&g.envFile, "env-file", ".env", "Path to a .env file loaded before the environment")
	fs.StringVar(&g.dataDir, "data-dir", "", "Base directory for data files")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no command given", errUsage)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "flowydb version %s (commit: %s)\n", version, commit)
		return nil
	case "schema":
		return cmdSchema(stdout)
	case "tables":
		return cmdTables(rest, stdout, stderr)
	case "help":
		fs.Usage()
		return nil
	}

	handler, ok := commands[cmd]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return handler(ctx, a, rest, stdout, stderr)
}

type command func(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"init":    cmdInit,
	"verify":  cmdVerify,
	"migrate": cmdMigrate,
	"backup":  cmdBackup,
	"backups": cmdBackups,
	"restore": cmdRestore,
	"import":  cmdImport,
}

// loadConfig loads configuration from file, .env, environment and flags,
// later sources taking priority.
func loadConfig(g globalFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if g.configFile != "" {
		cfg, err = config.LoadFromFile(g.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if g.envFile != "" {
		if err := config.LoadDotEnv(g.envFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "flowydb - local database schema and maintenance tool\n\n")
	fmt.Fprintf(w, "Usage: flowydb [options] <command> [command options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  init                 Create the database and every declared table\n")
	fmt.Fprintf(w, "  schema               Print the CREATE TABLE statements\n")
	fmt.Fprintf(w, "  tables [-json]       List the declared tables\n")
	fmt.Fprintf(w, "  verify [-orphans]    Compare the database layout with the declarations\n")
	fmt.Fprintf(w, "  migrate [-status]    Apply pending data migrations\n")
	fmt.Fprintf(w, "  backup [-prune]      Upload a compressed snapshot\n")
	fmt.Fprintf(w, "  backups              List stored snapshots\n")
	fmt.Fprintf(w, "  restore <key> <dst>  Restore a snapshot to a new file\n")
	fmt.Fprintf(w, "  import [-policy p] <table> <file>\n")
	fmt.Fprintf(w, "                       Insert JSON Lines rows in one transaction\n")
	fmt.Fprintf(w, "  version              Show version information\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  FLOWYDB_DATA_DIR       Base directory for data files\n")
	fmt.Fprintf(w, "  FLOWYDB_DATABASE_*     Database settings (FILE, CONFLICT_POLICY, ...)\n")
	fmt.Fprintf(w, "  FLOWYDB_LOG_*          Logging settings (LEVEL, FILE, JSON, ...)\n")
	fmt.Fprintf(w, "  FLOWYDB_BACKUP_TYPE    Backup storage type (local, s3)\n")
	fmt.Fprintf(w, "  FLOWYDB_S3_*           S3 settings (BUCKET, REGION, ENDPOINT)\n")
}

func cmdSchema(stdout io.Writer) error {
	for _, stmt := range schema.AllSchemaSQL(schema.Default()) {
		fmt.Fprintf(stdout, "%s;\n\n", stmt)
	}
	return nil
}

func cmdTables(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tables", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "Print the declarations as JSON")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	reg := schema.Default()
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.Tables())
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCOLUMNS\tPRIMARY KEY")
	for _, t := range reg.Tables() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, len(t.Columns), strings.Join(t.PrimaryKey, ", "))
	}
	return tw.Flush()
}

func cmdInit(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: init takes no arguments", errUsage)
	}
	s, err := a.Open(ctx, false)
	if err != nil {
		return err
	}
	if err := s.VerifySchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initialized %s (%d tables)\n", s.Path(), len(s.Registry().TableNames()))
	return nil
}

func cmdVerify(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	orphans := fs.Bool("orphans", false, "Also report rows whose referenced parent row is missing")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	s, err := a.Open(ctx, true)
	if err != nil {
		return err
	}
	if err := s.VerifySchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema ok: %d tables match\n", len(s.Registry().TableNames()))

	if !*orphans {
		return nil
	}
	report, err := s.OrphanReport(ctx)
	if err != nil {
		return err
	}
	if len(report) == 0 {
		fmt.Fprintln(stdout, "no orphaned rows")
		return nil
	}
	for _, rel := range s.Registry().Relations() {
		rows := report[rel.String()]
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(stdout, "%s: %d orphaned rows\n", rel, len(rows))
		for _, row := range rows {
			fmt.Fprintf(stdout, "  %v\n", map[string]interface{}(row))
		}
	}
	return nil
}

func cmdMigrate(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	status := fs.Bool("status", false, "List applied and pending migrations without running any")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	runner, err := a.Migrations(ctx)
	if err != nil {
		return err
	}

	if *status {
		applied, err := runner.Applied(ctx)
		if err != nil {
			return err
		}
		for _, rec := range applied {
			fmt.Fprintf(stdout, "applied  %-32s %s\n", rec.MigrationName, rec.ExecutedAt.Format("2006-01-02 15:04:05Z07:00"))
		}
		pending, err := runner.Pending(ctx)
		if err != nil {
			return err
		}
		for _, name := range pending {
			fmt.Fprintf(stdout, "pending  %s\n", name)
		}
		return nil
	}

	applied, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "applied %d migrations\n", len(applied))
	for _, name := range applied {
		fmt.Fprintf(stdout, "  %s\n", name)
	}
	return nil
}

func cmdBackup(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prune := fs.Bool("prune", false, "Delete old backups beyond backup.keep afterwards")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	m, err := a.Backups(ctx)
	if err != nil {
		return err
	}
	b, err := m.Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d bytes\n", b.Key, b.Size)

	if *prune {
		deleted, err := m.Prune(ctx, a.Config().Backup.Keep)
		if err != nil {
			return err
		}
		for _, key := range deleted {
			fmt.Fprintf(stdout, "pruned %s\n", key)
		}
	}
	return nil
}

func cmdBackups(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	m, err := a.Backups(ctx)
	if err != nil {
		return err
	}
	list, err := m.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCREATED\tSIZE")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Key, b.CreatedAt.Format("2006-01-02 15:04:05Z"), b.Size)
	}
	return tw.Flush()
}

func cmdRestore(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: restore needs <key> <destination>", errUsage)
	}
	m, err := a.Backups(ctx)
	if err != nil {
		return err
	}
	if err := m.Restore(ctx, args[0], args[1]); err != nil {
		return err
	}
	a.Logger().Info("restore complete", zap.String("dest", args[1]))
	fmt.Fprintf(stdout, "restored %s to %s\n", args[0], args[1])
	return nil
}

func cmdImport(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	policyName := fs.String("policy", "", "Conflict policy: reject or replace (default: database.conflict_policy)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: import needs <table> <file>", errUsage)
	}
	table, path := fs.Arg(0), fs.Arg(1)

	policy := a.ConflictPolicy()
	if *policyName != "" {
		p, err := store.ParseConflictPolicy(*policyName)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		policy = p
	}

	s, err := a.Open(ctx, false)
	if err != nil {
		return err
	}
	def, ok := s.Registry().Table(table)
	if !ok {
		return ferrors.NewValidationError(ferrors.CodeUnknownTable,
			fmt.Sprintf("table %q is not declared", table))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var n int
	err = s.Tx(ctx, func(tx *store.Tx) error {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			data := bytes.TrimSpace(sc.Bytes())
			if len(data) == 0 {
				continue
			}
			row, err := store.DecodeRow(def, data)
			if err != nil {
				return fmt.Errorf("%s:%d: %w", path, line, err)
			}
			if err := tx.Insert(ctx, table, row, policy); err != nil {
				return fmt.Errorf("%s:%d: %w", path, line, err)
			}
			n++
		}
		return sc.Err()
	})
	if err != nil {
		return err
	}

	a.Logger().Info("import complete",
		zap.String("table", table), zap.Int("rows", n), zap.String("policy", policy.String()))
	fmt.Fprintf(stdout, "imported %d rows into %s (%s)\n", n, table, policy)
	return nil
}
