package subscribe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

// WsConn is the websocket part used by the keeper
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// MeetingLoader checks meeting ownership
type MeetingLoader interface {
	LoadMeeting(ctx context.Context, id, userID string) (*persistence.Meeting, error)
}

type subscriber struct {
	meetingID string
	userID    string
	// gorilla connections support one concurrent writer
	lock *sync.Mutex
}

// Keeper tracks websocket subscribers of meeting events
type Keeper struct {
	db          MeetingLoader
	meetingConn map[string]map[WsConn]struct{}
	connSub     map[WsConn]*subscriber
	mapLock     *sync.Mutex
	timeOut     time.Duration
}

// NewKeeper creates a connection keeper
func NewKeeper(db MeetingLoader) (*Keeper, error) {
	if db == nil {
		return nil, errors.New("no DB")
	}
	return &Keeper{db: db, meetingConn: map[string]map[WsConn]struct{}{},
		connSub: map[WsConn]*subscriber{}, mapLock: &sync.Mutex{}, timeOut: time.Hour}, nil
}

// HandleConnection reads meeting ids from the client until the connection closes.
// The connection is subscribed to the last meeting id the user owns
func (kp *Keeper) HandleConnection(ctx context.Context, conn WsConn, userID string) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	lock := &sync.Mutex{}
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("read ended")
				return
			}
			if msg := strings.TrimSpace(string(message)); msg != "" {
				readCh <- msg
			}
		}
	}()

	ta := time.After(kp.timeOut)
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeout")
			return nil
		case <-ctx.Done():
			return nil
		case id, ok := <-readCh:
			if !ok {
				return nil
			}
			if err := kp.subscribe(ctx, conn, lock, id, userID); err != nil {
				return err
			}
			ta = time.After(kp.timeOut)
		}
	}
}

func (kp *Keeper) subscribe(ctx context.Context, conn WsConn, lock *sync.Mutex, id, userID string) error {
	if _, err := kp.db.LoadMeeting(ctx, id, userID); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", goapp.Sanitize(id)).Str("user", userID).Msg("can't subscribe")
		ev := api.Event{Error: "Internal server error", MeetingID: id}
		if errors.Is(err, utils.ErrNotFound) {
			ev.Error = "Meeting not found or access denied"
		}
		lock.Lock()
		defer lock.Unlock()
		return conn.WriteJSON(ev)
	}
	kp.saveConnection(conn, lock, id, userID)
	return nil
}

func (kp *Keeper) deleteConnection(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
}

func (kp *Keeper) deleteConnectionNoSync(conn WsConn) {
	if sub, found := kp.connSub[conn]; found {
		if conns, found := kp.meetingConn[sub.meetingID]; found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.meetingConn, sub.meetingID)
			}
		}
	}
	delete(kp.connSub, conn)
}

func (kp *Keeper) saveConnection(conn WsConn, lock *sync.Mutex, id, userID string) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connSub[conn] = &subscriber{meetingID: id, userID: userID, lock: lock}
	conns, found := kp.meetingConn[id]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.meetingConn[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Str("ID", id).Int("active", len(kp.connSub)).Msg("subscribed")
}

// Send writes the event to every subscriber of the meeting owned by userID, returns the number of receivers
func (kp *Keeper) Send(meetingID, userID string, event interface{}) int {
	type target struct {
		conn WsConn
		lock *sync.Mutex
	}
	kp.mapLock.Lock()
	var targets []target
	for c := range kp.meetingConn[meetingID] {
		if sub := kp.connSub[c]; sub != nil && sub.userID == userID {
			targets = append(targets, target{conn: c, lock: sub.lock})
		}
	}
	kp.mapLock.Unlock()

	res := 0
	for _, t := range targets {
		t.lock.Lock()
		err := t.conn.WriteJSON(event)
		t.lock.Unlock()
		if err != nil {
			goapp.Log.Error().Err(err).Str("ID", meetingID).Msg("can't write to websocket")
			continue
		}
		res++
	}
	return res
}

// Count returns the number of subscribers of the meeting
func (kp *Keeper) Count(meetingID string) int {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	return len(kp.meetingConn[meetingID])
}
