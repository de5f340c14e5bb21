package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/airenas/meetnotes/internal/pkg/batch"
	"github.com/airenas/meetnotes/internal/pkg/filer"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/pipeline"
	"github.com/airenas/meetnotes/internal/pkg/postgres"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	"github.com/airenas/meetnotes/internal/pkg/transcriber"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &batch.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 2)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	fs, err := filer.NewFiler(ctx, filer.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.secure")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	pd := &pipeline.Data{DB: db, Reader: fs}
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
	}
	data.Pipeline = pd

	printBanner()

	go utils.RunPerfEndpoint()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := batch.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
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
						   
                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     
							  
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/meetnotes"))
}
