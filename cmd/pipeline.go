package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/klimkalender/klimkalender-cms/internal/server"
	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/adapters/cmbel"
	"github.com/klimkalender/klimkalender-cms/pkg/adapters/grip"
	"github.com/klimkalender/klimkalender-cms/pkg/adapters/nkbv"
	"github.com/klimkalender/klimkalender-cms/pkg/adapters/werckstof"
	"github.com/klimkalender/klimkalender-cms/pkg/ai"
	"github.com/klimkalender/klimkalender-cms/pkg/blob"
	"github.com/klimkalender/klimkalender-cms/pkg/classify"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/importer"
	"github.com/klimkalender/klimkalender-cms/pkg/orchestrator"
	"github.com/klimkalender/klimkalender-cms/pkg/pgstore"
	"github.com/klimkalender/klimkalender-cms/pkg/reconcile"
	"github.com/klimkalender/klimkalender-cms/pkg/runhook"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

// store is satisfied by both the SQLite and the PostgreSQL backend.
type store interface {
	reconcile.Store
	runhook.Store
	server.Store
	importer.Store
	GetWasmEventByExternalID(ctx context.Context, externalID string) (*event.WasmEvent, error)
	CountWasmEvents(ctx context.Context) (map[event.Status]int, error)
	Close() error
}

var (
	_ store = (*storage.DB)(nil)
	_ store = (*pgstore.DB)(nil)
)

func openStore(ctx context.Context) (store, error) {
	switch driver := viper.GetString("database.driver"); driver {
	case "", "sqlite":
		path, err := utils.GetAbsDBPath(viper.GetString("database.path"))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		utils.Log.Debugf("Using SQLite database %s", path)
		return storage.Open(path)
	case "postgres":
		dsn := viper.GetString("database.dsn")
		if dsn == "" {
			return nil, errors.New("database.dsn is required for the postgres driver")
		}
		return pgstore.Open(ctx, dsn, viper.GetInt32("database.max_conns"), viper.GetBool("database.via_bouncer"))
	default:
		return nil, fmt.Errorf("unknown database driver %q (use sqlite or postgres)", driver)
	}
}

func openBucket() (*blob.FSBucket, error) {
	dir := viper.GetString("blob.dir")
	if dir == "" {
		data, err := utils.DataDir("")
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(data, "blobs")
	}
	dir, err := utils.DataDir(dir)
	if err != nil {
		return nil, err
	}
	return blob.NewFSBucket(dir)
}

func newHTTPClient() *whttp.Client {
	return whttp.NewClient(whttp.Options{
		Timeout:           viper.GetDuration("scrape.timeout"),
		Retries:           viper.GetInt("scrape.retries"),
		RequestsPerSecond: viper.GetFloat64("scrape.rps"),
	})
}

func newAIClient() (*ai.Client, error) {
	return ai.NewClient(ai.Config{
		APIKey:   viper.GetString("openai.api_key"),
		Model:    viper.GetString("openai.model"),
		Endpoint: viper.GetString("openai.endpoint"),
		Timeout:  viper.GetDuration("openai.timeout"),
	})
}

func newImageUploader(bucket blob.Bucket, client *whttp.Client, name string) *blob.ImageUploader {
	u := blob.NewImageUploader(bucket, client)
	if name != "" {
		u.BucketName = name
	}
	return u
}

// pipeline holds the long-lived parts of a run; per-run parts are built by
// newRun.
type pipeline struct {
	store  store
	bucket *blob.FSBucket
	client *whttp.Client
	rules  classify.Rules
}

func newPipeline(ctx context.Context) (*pipeline, error) {
	// The key is checked up front so a misconfiguration fails before any
	// run record is created.
	if _, err := newAIClient(); err != nil {
		return nil, err
	}
	rules, err := classify.LoadRules(viper.GetString("classify.rules"))
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	bucket, err := openBucket()
	if err != nil {
		st.Close()
		return nil, err
	}
	return &pipeline{store: st, bucket: bucket, client: newHTTPClient(), rules: rules}, nil
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

func (p *pipeline) processor(log reconcile.Logger) *reconcile.Processor {
	return &reconcile.Processor{
		Store:  p.store,
		Images: newImageUploader(p.bucket, p.client, viper.GetString("blob.image_bucket")),
		Bucket: p.bucket,
		Log:    log,
	}
}

// run performs one complete pipeline run. With process false the batch is
// only stored.
func (p *pipeline) run(ctx context.Context, process bool) (*orchestrator.Result, error) {
	// A fresh client per run scopes the answer memo to the run.
	aiClient, err := newAIClient()
	if err != nil {
		return nil, err
	}

	audit := runhook.NewAuditHook(p.store, p.bucket, viper.GetString("run.user_email"))
	audit.MaxDuration = time.Duration(viper.GetInt("run.max_minutes")) * time.Minute
	audit.Retention = time.Duration(viper.GetInt("run.log_retention_days")) * 24 * time.Hour
	hook := runhook.Multi(audit, runhook.ConsoleHook{Log: utils.Log})
	runLog := runhook.NewLogger(ctx, hook)

	opts := adapters.Options{
		Client:    p.client,
		Log:       runLog,
		IntroHTML: viper.GetString("scrape.intro_generic"),
	}.WithDefaults()

	cfg := orchestrator.Config{
		Adapters: []adapters.Adapter{
			werckstof.New(opts),
			nkbv.New(opts),
			grip.New(opts, aiClient),
			cmbel.New(opts),
		},
		Classifier:  classify.Default(p.rules, aiClient),
		Hook:        hook,
		Concurrency: viper.GetInt("scrape.concurrency"),
	}
	if process {
		cfg.Processor = p.processor(runLog)
	}
	res, err := orchestrator.Run(ctx, cfg)
	utils.Log.Debugf("Run used %d AI calls", aiClient.Calls())
	return res, err
}
