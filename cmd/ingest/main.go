package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/airenas/meetnotes/internal/pkg/auth"
	"github.com/airenas/meetnotes/internal/pkg/filer"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/ingest"
	"github.com/airenas/meetnotes/internal/pkg/pipeline"
	"github.com/airenas/meetnotes/internal/pkg/postgres"
	"github.com/airenas/meetnotes/internal/pkg/subscribe"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	"github.com/airenas/meetnotes/internal/pkg/transcriber"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &ingest.Data{}
	data.Port = cfg.GetInt("port")
	var err error

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	addDBLog(dbConfig)
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	fs, err := filer.NewFiler(ctx, filer.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.secure")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	data.Files, data.Loader = fs, fs

	data.Auth, err = auth.NewAuthenticator(cfg.GetString("auth.secret"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init authenticator")
	}

	pd := &pipeline.Data{DB: db, Reader: fs,
		ProgressDelay: defaultV(cfg.GetDuration("summary.progressDelay"), time.Second)}
	pd.Transcriber, err = transcriber.NewClient(cfg.GetString("transcriber.url"), cfg.GetString("transcriber.key"),
		cfg.GetString("transcriber.model"), cfg.GetDuration("transcriber.timeout"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}
	pd.Summarizer, err = summarizer.NewClient(cfg.GetString("openai.key"), defaultV(cfg.GetString("openai.model"), "gpt-4o"),
		cfg.GetString("openai.baseUrl"), cfg.GetDuration("openai.timeout"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init summarizer")
	}
	if redisURL := cfg.GetString("redis.url"); redisURL != "" {
		locker, rdb, err := guard.NewLocker(ctx, redisURL, cfg.GetDuration("redis.lockTTL"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init locker")
		}
		defer rdb.Close()
		pd.Locker = locker
	} else {
		goapp.Log.Warn().Msg("no redis.url, meeting guard disabled")
	}
	data.Pipeline = pd

	if cfg.GetBool("batch.enabled") {
		data.Sender, err = postgres.NewSender(dbPool)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
		}
		keeper, err := subscribe.NewKeeper(db)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init ws keeper")
		}
		data.WSHandler = keeper
		gc, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init gue")
		}
		if _, err := subscribe.StartEventHandler(ctx, &subscribe.HandlerData{GueClient: gc,
			WorkerCount: defaultV(cfg.GetInt("batch.eventWorkers"), 2), Sender: keeper}); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start event handler")
		}
	}

	go utils.RunPerfEndpoint()

	err = ingest.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

func addDBLog(dbConfig *pgxpool.Config) {
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		goapp.Log.Debug().Msg("after connect")
		return nil
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
                       __                  __           
   ____ ___  ___  ___ / /_____  ____  ____/ /____  _____
  / __ '__ \/ _ \/ _ \ __/ __ \/ __ \/ __  / _ \ / ___/
 / / / / / /  __/  __/ /_/ / / / /_/ / /_/ /  __(__  ) 
/_/ /_/ /_/\___/\___/\__/_/ /_/\____/\__,_/\___/____/  v: %s

    _                      __ 
   (_)___  ____ ____  ___ / /_
  / / __ \/ __ '/ _ \/ __/ __/
 / / / / / /_/ /  __(__  ) /_ 
/_/_/ /_/\__, /\___/____/\__/ 
        /____/                

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/meetnotes"))
}
