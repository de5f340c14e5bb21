package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/pipeline"
	"github.com/airenas/meetnotes/internal/pkg/speakers"
	"github.com/airenas/meetnotes/internal/pkg/subscribe"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

type (
	// Authenticator returns the current user of the request
	Authenticator interface {
		Authenticate(r *http.Request) (string, error)
	}

	// FileStore saves and removes audio files
	FileStore interface {
		SaveFile(ctx context.Context, name string, r io.Reader, size int64) error
		Delete(ctx context.Context, name string) error
	}

	// FileLoader loads file by name
	FileLoader interface {
		LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
	}

	// DB is the meeting row store
	DB interface {
		speakers.DB
		InsertMeeting(ctx context.Context, m *persistence.Meeting) error
		DeleteMeeting(ctx context.Context, id, userID string) error
	}

	// MsgSender provides send msg functionality
	MsgSender interface {
		SendMessage(context.Context, amessages.Message, string) error
	}

	// WSHandler keeps websocket subscribers
	WSHandler interface {
		HandleConnection(ctx context.Context, conn subscribe.WsConn, userID string) error
	}
)

// Data keeps data required for service work
type Data struct {
	Port     int
	Auth     Authenticator
	Pipeline *pipeline.Data
	Files    FileStore
	Loader   FileLoader
	DB       DB
	// Sender enables batch submit
	Sender MsgSender
	// WSHandler enables batch event subscription
	WSHandler WSHandler

	newID func() string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting HTTP meeting notes ingest service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	// event streams last as long as the upstream services
	e.Server.WriteTimeout = 0

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Auth == nil {
		return errors.New("no authenticator")
	}
	if data.Pipeline == nil {
		return errors.New("no pipeline")
	}
	if err := data.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if data.Files == nil {
		return errors.New("no file store")
	}
	if data.Loader == nil {
		return errors.New("no file loader")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("meetnotes_ingest", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/upload", upload(data))
	e.POST("/transcribe", transcribe(data))
	e.POST("/summarize", summarize(data))
	e.PUT("/meetings/:id/speakers", updateSpeakers(data))
	e.GET("/meetings/:id/transcript", transcriptView(data))
	e.GET("/meetings/:id/audio", audio(data))
	e.HEAD("/meetings/:id/audio", audio(data))
	e.DELETE("/meetings/:id", deleteMeeting(data))
	if data.Sender != nil {
		e.POST("/batch", batch(data))
	}
	if data.WSHandler != nil {
		e.GET("/subscribe", subscribeHandler(data))
	}
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func (d *Data) id() string {
	if d.newID != nil {
		return d.newID()
	}
	return uuid.NewString()
}

func authenticate(c echo.Context, data *Data) (string, error) {
	userID, err := data.Auth.Authenticate(c.Request())
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("unauthenticated")
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return userID, nil
}

func decodeJSON(c echo.Context, res interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(res); err != nil {
		goapp.Log.Warn().Err(err).Msg("can't decode body")
		return echo.NewHTTPError(http.StatusBadRequest, "Wrong request body")
	}
	return nil
}

// mapErr converts precondition failures to http errors
func mapErr(err error) error {
	switch {
	case utils.IsWrongInput(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, utils.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Meeting not found or access denied")
	case errors.Is(err, guard.ErrLocked):
		return echo.NewHTTPError(http.StatusConflict, "Meeting is being processed")
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		} else {
			msg = http.StatusText(code)
		}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, api.ErrorResult{Error: msg})
	}
	if err != nil {
		goapp.Log.Error().Err(err).Msg("can't write error")
	}
}
