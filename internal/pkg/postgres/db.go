package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

//NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &DB{pool: pool, now: time.Now}
	return res, nil
}

// InsertMeeting inserts a new meeting
func (db *DB) InsertMeeting(ctx context.Context, m *persistence.Meeting) error {
	sn, err := m.SpeakerNames.Bytes()
	if err != nil {
		return err
	}
	now := db.now()
	_, err = db.pool.Exec(ctx, `INSERT INTO meetings(id, user_id, audio_file_path, original_file_name, 
	speaker_names, meeting_at, created_at, updated_at) 
	VALUES($1, $2, $3, $4, $5, $6, $7, $7)`, m.ID, m.UserID, utils.ToSQLStr(m.AudioFilePath), utils.ToSQLStr(m.OriginalFileName),
		sn, m.MeetingAt, now,
	)
	if err != nil {
		return fmt.Errorf("can't insert meeting: %w", err)
	}
	m.Created, m.Updated = now, now
	return nil
}

// LoadMeeting loads the meeting owned by userID
func (db *DB) LoadMeeting(ctx context.Context, id, userID string) (*persistence.Meeting, error) {
	return scanMeeting(db.pool.QueryRow(ctx, `SELECT id, user_id, audio_file_path, original_file_name, transcription, 
	formatted_transcript, summary, summary_jsonb, title, speaker_names, meeting_at, created_at, updated_at 
	FROM meetings
		WHERE id = $1 AND user_id = $2`, id, userID))
}

// scanMeeting reads a meeting row, rows created by other flows may have no audio yet
func scanMeeting(row pgx.Row) (*persistence.Meeting, error) {
	var res persistence.Meeting
	var sn []byte
	var audioPath, fileName sql.NullString
	err := row.Scan(&res.ID, &res.UserID, &audioPath, &fileName,
		&res.Transcription, &res.FormattedTranscript, &res.Summary, &res.SummaryJSON, &res.Title, &sn,
		&res.MeetingAt, &res.Created, &res.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("can't load meeting: %w", err)
	}
	res.AudioFilePath = utils.FromSQLStr(audioPath)
	res.OriginalFileName = utils.FromSQLStr(fileName)
	if res.SpeakerNames, err = persistence.ParseSpeakerNames(sn); err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveTranscription writes transcription results
func (db *DB) SaveTranscription(ctx context.Context, data *persistence.TranscriptionUpdate) error {
	sn, err := data.SpeakerNames.Bytes()
	if err != nil {
		return err
	}
	res, err := db.pool.Exec(ctx, `UPDATE meetings SET 
	transcription = $3, 
	formatted_transcript = $4,
	speaker_names = $5,
	updated_at = $6,
	audio_file_path = COALESCE(audio_file_path, $7),
	original_file_name = COALESCE(original_file_name, $8) 
	WHERE id = $1 AND user_id = $2`, data.ID, data.UserID, data.Transcription, data.FormattedTranscript,
		sn, db.now(), utils.ToSQLStr(data.AudioFilePath), utils.ToSQLStr(data.OriginalFileName))
	if err != nil {
		return fmt.Errorf("can't save transcription: %w", err)
	}
	if res.RowsAffected() != 1 {
		return utils.ErrNotFound
	}
	return nil
}

// SaveSummary writes summarization results, keeps old summary and title if new ones are not valid
func (db *DB) SaveSummary(ctx context.Context, data *persistence.SummaryUpdate) error {
	res, err := db.pool.Exec(ctx, `UPDATE meetings SET 
	openai_response = $3, 
	formatted_transcript = $4,
	summary_jsonb = $5,
	summary = COALESCE($6, summary),
	title = COALESCE($7, title),
	updated_at = $8 
	WHERE id = $1 AND user_id = $2`, data.ID, data.UserID, data.OpenAIResponse, data.FormattedTranscript,
		data.SummaryJSON, data.Summary, data.Title, db.now())
	if err != nil {
		return fmt.Errorf("can't save summary: %w", err)
	}
	if res.RowsAffected() != 1 {
		return utils.ErrNotFound
	}
	return nil
}

// UpdateSpeakerNames replaces speaker names, returns the stored value
func (db *DB) UpdateSpeakerNames(ctx context.Context, id, userID string, names persistence.SpeakerNames) (persistence.SpeakerNames, error) {
	sn, err := names.Bytes()
	if err != nil {
		return nil, err
	}
	var stored []byte
	err = db.pool.QueryRow(ctx, `UPDATE meetings SET 
	speaker_names = $3,
	updated_at = $4 
	WHERE id = $1 AND user_id = $2
	RETURNING speaker_names`, id, userID, sn, db.now()).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("can't update speaker names: %w", err)
	}
	return persistence.ParseSpeakerNames(stored)
}

// DeleteMeeting removes the meeting row
func (db *DB) DeleteMeeting(ctx context.Context, id, userID string) error {
	res, err := db.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("can't delete meeting: %w", err)
	}
	if res.RowsAffected() != 1 {
		return utils.ErrNotFound
	}
	goapp.Log.Info().Str("ID", id).Msg("deleted meeting")
	return nil
}

// CountContacts returns how many of ids belong to userID
func (db *DB) CountContacts(ctx context.Context, userID string, ids []string) (int, error) {
	var res int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM contacts WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids).Scan(&res); err != nil {
		return 0, fmt.Errorf("can't count contacts: %w", err)
	}
	return res, nil
}

// LoadContacts returns user contacts by ids
func (db *DB) LoadContacts(ctx context.Context, userID string, ids []string) (map[string]*persistence.Contact, error) {
	res := map[string]*persistence.Contact{}
	if len(ids) == 0 {
		return res, nil
	}
	rows, err := db.pool.Query(ctx, `SELECT id, user_id, first_name, last_name, email FROM contacts 
	WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("can't load contacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c persistence.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email); err != nil {
			return nil, fmt.Errorf("can't scan contact: %w", err)
		}
		res[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't load contacts: %w", err)
	}
	return res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'meetings')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
