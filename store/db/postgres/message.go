package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateIncomingMessage(ctx context.Context, create *store.IncomingMessage) (*store.IncomingMessage, error) {
	fields := []string{"sender", "message", "received_ts", "transmission_metadata"}
	args := []any{create.Sender, create.Message, create.ReceivedTs, create.TransmissionMetadata}

	stmt := `INSERT INTO incoming_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create incoming message: %w", err)
	}

	return create, nil
}

func (d *DB) ListIncomingMessages(ctx context.Context, find *store.FindIncomingMessage) ([]*store.IncomingMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "incoming_message.id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, sender, message, received_ts, transmission_metadata
		FROM incoming_message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY incoming_message.received_ts DESC, incoming_message.id DESC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.IncomingMessage, 0)
	for rows.Next() {
		var message store.IncomingMessage

		if err := rows.Scan(
			&message.ID,
			&message.Sender,
			&message.Message,
			&message.ReceivedTs,
			&message.TransmissionMetadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan incoming message: %w", err)
		}

		list = append(list, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) CreateOutgoingMessage(ctx context.Context, create *store.OutgoingMessage) (*store.OutgoingMessage, error) {
	fields := []string{"uid", "destination", "send_ts", "message", "message_metadata", "transmission_metadata", "sent_ts", "error_message"}
	args := []any{create.UID, create.Destination, create.SendTs, create.Message, create.MessageMetadata, create.TransmissionMetadata, create.SentTs, create.ErrorMessage}

	stmt := `INSERT INTO outgoing_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create outgoing message: %w", err)
	}

	return create, nil
}

func (d *DB) ListOutgoingMessages(ctx context.Context, find *store.FindOutgoingMessage) ([]*store.OutgoingMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "outgoing_message.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "outgoing_message.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Pending; v != nil {
		if *v {
			where = append(where, "outgoing_message.sent_ts IS NULL AND outgoing_message.error_message IS NULL")
		} else {
			where = append(where, "(outgoing_message.sent_ts IS NOT NULL OR outgoing_message.error_message IS NOT NULL)")
		}
	}

	query := `
		SELECT id, uid, destination, send_ts, message, message_metadata, transmission_metadata, sent_ts, error_message
		FROM outgoing_message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY outgoing_message.send_ts ASC, outgoing_message.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.OutgoingMessage, 0)
	for rows.Next() {
		var message store.OutgoingMessage
		var sentTs sql.NullInt64
		var errorMessage sql.NullString

		if err := rows.Scan(
			&message.ID,
			&message.UID,
			&message.Destination,
			&message.SendTs,
			&message.Message,
			&message.MessageMetadata,
			&message.TransmissionMetadata,
			&sentTs,
			&errorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outgoing message: %w", err)
		}

		if sentTs.Valid {
			message.SentTs = &sentTs.Int64
		}
		if errorMessage.Valid {
			message.ErrorMessage = &errorMessage.String
		}

		list = append(list, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateOutgoingMessage(ctx context.Context, update *store.UpdateOutgoingMessage) error {
	set, args := []string{}, []any{}

	if v := update.Destination; v != nil {
		set, args = append(set, "destination = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.SentTs; v != nil {
		set, args = append(set, "sent_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ErrorMessage; v != nil {
		set, args = append(set, "error_message = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE outgoing_message SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update outgoing message: %w", err)
	}

	return nil
}
