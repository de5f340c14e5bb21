//go:build integration
// +build integration

package integration

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/airenas/meetnotes/internal/pkg/auth"
	"github.com/airenas/meetnotes/internal/pkg/postgres"
	"github.com/airenas/meetnotes/internal/pkg/test"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func WaitForOpenOrFail(ctx context.Context, URL string) {
	u, err := url.Parse(URL)
	if err != nil {
		log.Fatalf("FAIL: can't parse %s", URL)
	}
	for {
		err = listen(net.JoinHostPort(u.Hostname(), u.Port()))
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			log.Fatalf("FAIL: can't access %s", URL)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func GetEnvOrFail(s string) string {
	res := os.Getenv(s)
	if res == "" {
		log.Fatalf("no env '%s'", s)
	}
	return res
}

func listen(urlStr string) error {
	log.Printf("dial %s", urlStr)
	conn, err := net.DialTimeout("tcp", urlStr, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}

// NewRequest prepares json request, token is added when user is not empty
func NewRequest(t *testing.T, method string, srv, urlSuffix, user string, body interface{}) *http.Request {
	t.Helper()
	path, err := url.JoinPath(srv, urlSuffix)
	require.Nil(t, err)
	var r io.Reader
	if body != nil {
		r = test.ToReader(t, body)
	}
	req, err := http.NewRequest(method, path, r)
	require.Nil(t, err, "not nil error = %v", err)
	if body != nil {
		req.Header.Add(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	addToken(t, req, user)
	return req
}

func addToken(t *testing.T, req *http.Request, user string) {
	t.Helper()
	if user == "" {
		return
	}
	tk, err := auth.NewToken(cfg.secret, user, time.Now().Add(time.Hour).Unix())
	require.Nil(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tk)
}

// insertScheduledMeeting adds a meeting row without audio, as other flows create them
func insertScheduledMeeting(t *testing.T, id, user string) {
	t.Helper()
	ctx := test.Ctx(t)
	pool, err := pgxpool.New(ctx, cfg.dbURL)
	require.Nil(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, `INSERT INTO meetings(id, user_id, created_at, updated_at) VALUES($1, $2, now(), now())`, id, user)
	require.Nil(t, err)
}

func waitForDB(ctx context.Context, URL string) {
	dbPool, err := pgxpool.New(ctx, URL)
	if err != nil {
		log.Fatalf("FAIL: can't init db pool")
	}
	defer dbPool.Close()

	for {
		log.Printf("check db live ...")
		db, err := postgres.NewDB(dbPool)
		if err == nil {
			if err = db.Live(ctx); err == nil {
				return
			}
			log.Print(err.Error())
		}
		select {
		case <-ctx.Done():
			log.Fatalf("FAIL: can't access db")
		case <-time.After(500 * time.Millisecond):
		}
	}
}
