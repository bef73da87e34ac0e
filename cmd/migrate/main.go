// Command migrate manages scribe's database schema: the embedded SQL
// migrations and the gorm automigrate fallback used in development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"gorm.io/gorm"

	"scribe/internal/config"
	"scribe/internal/database"
)

type command struct {
	name    string
	args    string
	summary string
	minArgs int
	run     func(ctx context.Context, e *env, args []string) error
}

type env struct {
	cfg *config.Config
	db  *gorm.DB
	out io.Writer
}

var commands = []command{
	{name: "up", summary: "apply every pending SQL migration", run: migrateUp},
	{name: "down", args: "<version>", summary: "roll back one applied migration", minArgs: 1, run: migrateDown},
	{name: "status", summary: "show the schema policy and pending migrations", run: showStatus},
	{name: "list", summary: "list the migrations embedded in this binary", run: listEmbedded},
	{name: "auto", summary: "run gorm automigrate for every model", run: autoMigrate},
}

var errUsage = errors.New("usage")

func main() {
	log.SetFlags(0)
	log.SetPrefix("scribe-migrate: ")

	fs := flag.NewFlagSet("scribe-migrate", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs.Output()) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if err := dispatch(context.Background(), fs.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: scribe-migrate <command> [args]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", c.name, c.args, c.summary)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Connection settings come from the same environment as the API server.")
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := lookup(args[0])
	if !ok || len(args)-1 < cmd.minArgs {
		return errUsage
	}

	if cmd.name == "list" {
		return cmd.run(ctx, &env{out: out}, args[1:])
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	return cmd.run(ctx, &env{cfg: cfg, db: db, out: out}, args[1:])
}

func migrateUp(ctx context.Context, e *env, _ []string) error {
	pending, err := database.NewMigrator(e.db, database.GetMigrations()).Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(e.out, "schema is up to date")
		return nil
	}
	if err := database.RunMigrations(ctx, e.db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, m := range pending {
		fmt.Fprintf(e.out, "applied %s\n", m.String())
	}
	return nil
}

func migrateDown(ctx context.Context, e *env, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil || version <= 0 {
		return fmt.Errorf("version must be a positive integer, got %q", args[0])
	}
	if database.GetMigrationByVersion(version) == nil {
		return fmt.Errorf("no embedded migration with version %d", version)
	}
	if err := database.RollbackMigration(ctx, e.db, version); err != nil {
		return fmt.Errorf("roll back %d: %w", version, err)
	}
	fmt.Fprintf(e.out, "rolled back %d\n", version)
	return nil
}

func showStatus(ctx context.Context, e *env, _ []string) error {
	st, err := database.GetSchemaStatus(ctx, e.db, e.cfg)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "driver\t%s\n", e.db.Dialector.Name())
	fmt.Fprintf(tw, "mode\t%s (env %s)\n", st.Mode, st.Environment)
	fmt.Fprintf(tw, "startup runs sql\t%t\n", st.WillRunSQL)
	fmt.Fprintf(tw, "startup runs automigrate\t%t\n", st.WillRunAutoMigrate)
	fmt.Fprintf(tw, "applied\t%v\n", st.AppliedVersions)
	for _, m := range st.PendingMigrations {
		fmt.Fprintf(tw, "pending\t%s\n", m.String())
	}
	return tw.Flush()
}

func listEmbedded(_ context.Context, e *env, _ []string) error {
	for _, m := range database.GetMigrations() {
		fmt.Fprintln(e.out, m.String())
	}
	return nil
}

func autoMigrate(ctx context.Context, e *env, _ []string) error {
	e.cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, e.db, e.cfg); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	fmt.Fprintln(e.out, "automigrate complete")
	return nil
}
