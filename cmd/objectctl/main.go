// objectctl is the one-shot operator tool for the repository-object
// lifecycle: it runs create/update/delete workflows from a YAML config,
// releases locks stranded by crashed runs, and sweeps the lock
// registry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	appLifecycle "github.com/ahrav/adt-armada/internal/app/lifecycle"
	"github.com/ahrav/adt-armada/internal/config"
	"github.com/ahrav/adt-armada/internal/config/fileloader"
	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/internal/infra/liveness"
	"github.com/ahrav/adt-armada/internal/infra/producer"
	lockfs "github.com/ahrav/adt-armada/internal/infra/storage/locking/fs"
	sessionfs "github.com/ahrav/adt-armada/internal/infra/storage/session/fs"
	"github.com/ahrav/adt-armada/internal/infra/transport"
	"github.com/ahrav/adt-armada/pkg/common/logger"
	"github.com/ahrav/adt-armada/pkg/common/otel"
)

// passwordEnv supplies the endpoint password when the config file
// leaves it empty, keeping credentials out of checked-in files.
const passwordEnv = "ADT_PASSWORD"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "create":
		runLifecycle(ctx, "create", os.Args[2:])
	case "update":
		runLifecycle(ctx, "update", os.Args[2:])
	case "delete":
		runLifecycle(ctx, "delete", os.Args[2:])
	case "recover":
		runRecover(ctx, os.Args[2:])
	case "cleanup":
		runCleanup(ctx, os.Args[2:])
	case "locks":
		runLocks(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: objectctl <create|update|delete|recover|cleanup|locks> [...]")
}

// toolkit bundles everything a subcommand needs, wired from one config
// file.
type toolkit struct {
	cfg      *config.Config
	log      *logger.Logger
	tracer   trace.Tracer
	sessions session.Repository
	registry locking.Registry
	orch     *appLifecycle.Orchestrator
}

func buildToolkit(ctx context.Context, configPath string) (*toolkit, error) {
	if configPath == "" {
		return nil, errors.New("-config is required")
	}

	cfg, err := fileloader.NewFileLoader(configPath).Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint.Password == "" {
		cfg.Endpoint.Password = os.Getenv(passwordEnv)
	}

	log := logger.New(os.Stderr, logger.LevelInfo, "objectctl", nil)
	tracer := noop.NewTracerProvider().Tracer("objectctl")

	factory, err := transport.NewFactory(transport.Config{
		BaseURL:           cfg.Endpoint.BaseURL,
		Username:          cfg.Endpoint.Username,
		Password:          cfg.Endpoint.Password,
		TokenPath:         cfg.Endpoint.TokenPath,
		RequestsPerSecond: cfg.Endpoint.RequestsPerSecond,
		Burst:             cfg.Endpoint.Burst,
	}, log, tracer)
	if err != nil {
		return nil, err
	}

	sessions, err := sessionfs.NewSessionStore(cfg.Stores.SessionDir, tracer)
	if err != nil {
		return nil, err
	}
	registry, err := lockfs.NewLockRegistry(cfg.Stores.LockRegistryPath, liveness.NewProber(log), tracer)
	if err != nil {
		return nil, err
	}

	m, err := appLifecycle.NewLifecycleMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, err
	}

	orch := appLifecycle.NewOrchestrator(appLifecycle.Config{
		Timeouts:       cfg.Workflow.Timeouts.Protocol(),
		VerifyAttempts: cfg.Workflow.VerifyAttempts,
		VerifyDelay:    cfg.Workflow.VerifyDelay,
		KeepSessions:   cfg.Workflow.KeepSessions,
	}, factory, sessions, registry, log, tracer, m)

	return &toolkit{
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
		sessions: sessions,
		registry: registry,
		orch:     orch,
	}, nil
}

// plans converts the configured object specs into workflow plans, all
// rendered through the generic XML producer.
func (t *toolkit) plans() ([]appLifecycle.Plan, error) {
	if len(t.cfg.Objects) == 0 {
		return nil, errors.New("config declares no objects")
	}

	prod := producer.NewXMLProducer()
	plans := make([]appLifecycle.Plan, 0, len(t.cfg.Objects))
	for _, spec := range t.cfg.Objects {
		def, err := spec.Definition()
		if err != nil {
			return nil, err
		}
		plans = append(plans, appLifecycle.Plan{
			Definition: def,
			Producer:   prod,
			Activate:   t.cfg.Workflow.Activate,
			SkipCheck:  t.cfg.Workflow.SkipCheck,
		})
	}
	return plans, nil
}

func runLifecycle(ctx context.Context, mode string, args []string) {
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	_ = fs.Parse(args)

	t, err := buildToolkit(ctx, *configPath)
	if err != nil {
		fatalf("%v", err)
	}
	plans, err := t.plans()
	if err != nil {
		fatalf("%v", err)
	}

	limit := t.cfg.Workflow.Concurrency
	var results []appLifecycle.RunResult
	switch mode {
	case "create":
		results = t.orch.CreateAll(ctx, plans, limit)
	case "update":
		results = t.orch.UpdateAll(ctx, plans, limit)
	case "delete":
		results = t.orch.DeleteAll(ctx, plans, limit)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("%-40s %-10s %v\n", r.Identity.Key(), r.Result.FinalState(), r.Err)
			continue
		}
		fmt.Printf("%-40s %s\n", r.Identity.Key(), r.Result.FinalState())
	}
	if failed > 0 {
		fatalf("%d of %d workflows failed", failed, len(results))
	}
}

func runRecover(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	objType := fs.String("type", "", "object type of the stranded lock")
	name := fs.String("name", "", "object name of the stranded lock")
	group := fs.String("group", "", "containing group for grouped object types")
	sessionID := fs.String("session", "", "owning session id; defaults to the registered one")
	all := fs.Bool("all", false, "release every lock whose owning process is dead")
	_ = fs.Parse(args)

	t, err := buildToolkit(ctx, *configPath)
	if err != nil {
		fatalf("%v", err)
	}

	if *all {
		recoverDead(ctx, t)
		return
	}

	if *objType == "" || *name == "" {
		fatalf("recover needs -type and -name (or -all)")
	}
	identity, err := object.NewGroupedIdentity(object.ParseType(*objType), *name, *group)
	if err != nil {
		fatalf("%v", err)
	}

	owner := *sessionID
	if owner == "" {
		lock, err := t.registry.GetLock(ctx, identity)
		if err != nil {
			fatalf("%v", err)
		}
		owner = lock.SessionID()
	}

	rec, err := t.orch.Recover(ctx, identity, owner)
	if err != nil {
		fatalf("%v", err)
	}
	if err := t.orch.UnlockRecovered(ctx, rec); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("released %s (handle %s, session %s)\n",
		identity.Key(), rec.Lock.LockHandle(), rec.Session.ID())
}

// recoverDead walks every dead-owner record and releases its remote
// lock. Failures are reported per record; the walk continues so one
// unreachable lock does not strand the rest.
func recoverDead(ctx context.Context, t *toolkit) {
	records, err := t.registry.ListDead(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if len(records) == 0 {
		fmt.Println("no dead-owner locks registered")
		return
	}

	failed := 0
	for _, lock := range records {
		rec, err := t.orch.Recover(ctx, lock.Identity(), lock.SessionID())
		if err == nil {
			err = t.orch.UnlockRecovered(ctx, rec)
		}
		if err != nil {
			failed++
			fmt.Printf("%-40s FAILED: %v\n", lock.Identity().Key(), err)
			continue
		}
		fmt.Printf("%-40s released (handle %s)\n", lock.Identity().Key(), lock.LockHandle())
	}
	if failed > 0 {
		fatalf("%d of %d recoveries failed", failed, len(records))
	}
}

func runCleanup(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	maxAge := fs.Duration("max-age", 0, "age past which records count as stale; defaults to the config value")
	_ = fs.Parse(args)

	t, err := buildToolkit(ctx, *configPath)
	if err != nil {
		fatalf("%v", err)
	}

	age := *maxAge
	if age == 0 {
		age = t.cfg.Janitor.MaxLockAge
	}

	removed, err := t.registry.Cleanup(ctx, age)
	if err != nil {
		fatalf("%v", err)
	}
	for _, rec := range removed {
		fmt.Printf("%-40s reclaimed (session %s, pid %d, age %s)\n",
			rec.Identity().Key(), rec.SessionID(), rec.OwnerPID(),
			time.Since(rec.CreatedAt()).Round(time.Second))
	}

	remaining, err := t.registry.List(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("reclaimed %d record(s), %d still registered\n", len(removed), len(remaining))
}

func runLocks(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("locks", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	_ = fs.Parse(args)

	t, err := buildToolkit(ctx, *configPath)
	if err != nil {
		fatalf("%v", err)
	}

	records, err := t.registry.List(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if len(records) == 0 {
		fmt.Println("no locks registered")
		return
	}

	for _, rec := range records {
		fmt.Printf("%-40s session=%s handle=%s pid=%d age=%s\n",
			rec.Identity().Key(), rec.SessionID(), rec.LockHandle(),
			rec.OwnerPID(), time.Since(rec.CreatedAt()).Round(time.Second))
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
