package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
)

// Schema creates the messages table used by MySQL
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id VARCHAR(36) PRIMARY KEY,
	conversation_id VARCHAR(36) NOT NULL,
	gig_id VARCHAR(64) NOT NULL DEFAULT '',
	seller_id VARCHAR(64) NOT NULL DEFAULT '',
	buyer_id VARCHAR(64) NOT NULL DEFAULT '',
	sender_username VARCHAR(255) NOT NULL,
	sender_picture TEXT NULL,
	receiver_username VARCHAR(255) NOT NULL,
	receiver_picture TEXT NULL,
	body TEXT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	has_offer BOOLEAN NOT NULL DEFAULT FALSE,
	offer JSON NULL,
	file LONGTEXT NULL,
	file_type VARCHAR(32) NOT NULL DEFAULT '',
	file_name VARCHAR(255) NOT NULL DEFAULT '',
	file_size VARCHAR(32) NOT NULL DEFAULT '',
	created_at DATETIME(6) NOT NULL,
	INDEX idx_pair (sender_username, receiver_username, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const selectColumns = `id, conversation_id, gig_id, seller_id, buyer_id,
	sender_username, COALESCE(sender_picture, ''), receiver_username, COALESCE(receiver_picture, ''),
	COALESCE(body, ''), is_read, has_offer, offer, COALESCE(file, ''), file_type, file_name, file_size, created_at`

// MySQL is a MessageStore backed by MariaDB/MySQL
type MySQL struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// NewMySQL wraps an open connection. Migrate creates the table.
func NewMySQL(db *sql.DB, log *zap.Logger) *MySQL {
	return &MySQL{db: db, log: logger.OrNop(log), now: time.Now}
}

// Migrate creates the messages table if it does not exist
func (s *MySQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: create messages table: %w", ErrPersistence, err)
	}
	return nil
}

// Save implements MessageStore
func (s *MySQL) Save(ctx context.Context, msg model.Message) (model.Message, error) {
	saved, err := prepare(msg, s.now())
	if err != nil {
		return model.Message{}, err
	}

	var offer []byte
	if saved.Offer != nil {
		if offer, err = json.Marshal(saved.Offer); err != nil {
			return model.Message{}, fmt.Errorf("encode offer: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, gig_id, seller_id, buyer_id,
			sender_username, sender_picture, receiver_username, receiver_picture,
			body, is_read, has_offer, offer, file, file_type, file_name, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		saved.ID, saved.ConversationID, saved.GigID, saved.SellerID, saved.BuyerID,
		saved.SenderUsername, saved.SenderPicture, saved.ReceiverUsername, saved.ReceiverPicture,
		saved.Body, saved.IsRead, saved.HasOffer, nullBytes(offer), saved.File, saved.FileType, saved.FileName, saved.FileSize,
		*saved.CreatedAt,
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: insert message: %w", ErrPersistence, err)
	}
	return saved, nil
}

// List implements MessageStore
func (s *MySQL) List(ctx context.Context, a, b string, page, limit int) ([]model.Message, error) {
	page, limit = normalizePage(page, limit)

	// 新しい順に取得してから古い順に並べ替える
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM messages
		WHERE (sender_username = ? AND receiver_username = ?) OR (sender_username = ? AND receiver_username = ?)
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		a, b, b, a, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %w", ErrPersistence, err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			s.log.Warn("skipping unreadable message row", zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %w", ErrPersistence, err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead implements MessageStore
func (s *MySQL) MarkRead(ctx context.Context, sender, receiver string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE WHERE sender_username = ? AND receiver_username = ? AND is_read = FALSE",
		sender, receiver,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	return int(n), nil
}

// Close closes the underlying connection
func (s *MySQL) Close() error {
	return s.db.Close()
}

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var (
		msg     model.Message
		offer   []byte
		created time.Time
	)
	err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.GigID, &msg.SellerID, &msg.BuyerID,
		&msg.SenderUsername, &msg.SenderPicture, &msg.ReceiverUsername, &msg.ReceiverPicture,
		&msg.Body, &msg.IsRead, &msg.HasOffer, &offer, &msg.File, &msg.FileType, &msg.FileName, &msg.FileSize,
		&created)
	if err != nil {
		return model.Message{}, err
	}
	if len(offer) > 0 {
		msg.Offer = &model.Offer{}
		if err := json.Unmarshal(offer, msg.Offer); err != nil {
			return model.Message{}, fmt.Errorf("decode offer of %s: %w", msg.ID, err)
		}
	}
	msg.HasConversationID = msg.ConversationID != ""
	created = created.UTC()
	msg.CreatedAt = &created
	return msg, nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
