package dialog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// CreateOutgoing queues an outbound message. The destination is protected
// before it is written; nil metadata maps encode as empty objects.
func (e *Engine) CreateOutgoing(ctx context.Context, destination string, sendTs int64, message string, messageMetadata map[string]any, transmissionMetadata map[string]any) (*store.OutgoingMessage, error) {
	protected, err := e.codec.Protect(destination)
	if err != nil {
		return nil, errors.Wrap(err, "failed to protect destination")
	}

	encodedMessage, err := encodeMetadata(messageMetadata)
	if err != nil {
		return nil, err
	}

	encodedTransmission, err := encodeMetadata(transmissionMetadata)
	if err != nil {
		return nil, err
	}

	outgoing, err := e.store.CreateOutgoingMessage(ctx, &store.OutgoingMessage{
		UID:                  shortuuid.New(),
		Destination:          protected,
		SendTs:               sendTs,
		Message:              message,
		MessageMetadata:      encodedMessage,
		TransmissionMetadata: encodedTransmission,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to queue outgoing message")
	}

	return outgoing, nil
}

// FlushPending drains the pending outbound queue. Messages carrying the
// dialog: prefix are launch requests and never reach the transport; the
// rest are handed to the transport collaborator when one is wired.
// Individual delivery failures are logged and the message stays pending
// for the next flush.
func (e *Engine) FlushPending(ctx context.Context) error {
	pending := true

	messages, err := e.store.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{Pending: &pending})
	if err != nil {
		return errors.Wrap(err, "failed to list pending outgoing messages")
	}

	for _, message := range messages {
		if message.SendTs > time.Now().Unix() {
			continue
		}

		if strings.HasPrefix(message.Message, DialogMessagePrefix) {
			e.flushLaunchRequest(ctx, message)
			continue
		}

		if e.transport == nil {
			continue
		}

		if err := e.transport.DeliverMessage(ctx, message); err != nil {
			e.logger.Warn("failed to deliver outgoing message", "message_uid", message.UID, "error", err)
			continue
		}

		nowTs := time.Now().Unix()

		if err := e.store.UpdateOutgoingMessage(ctx, &store.UpdateOutgoingMessage{ID: message.ID, SentTs: &nowTs}); err != nil {
			return errors.Wrapf(err, "failed to mark message %s sent", message.UID)
		}
	}

	return nil
}

// flushLaunchRequest routes a dialog: message to the launch coordinator.
// Launch failures are recorded on the originating message, never raised.
func (e *Engine) flushLaunchRequest(ctx context.Context, message *store.OutgoingMessage) {
	destination, err := e.codec.Reveal(message.Destination)
	if err != nil {
		e.logger.Warn("skipping launch request with undecryptable destination", "message_uid", message.UID)
		return
	}

	deliveryMetadata := map[string]any{}
	if message.TransmissionMetadata != "" {
		_ = json.Unmarshal([]byte(message.TransmissionMetadata), &deliveryMetadata)
	}

	identifier := strings.TrimPrefix(message.Message, DialogMessagePrefix)

	result := e.Launch(ctx, &LaunchRequest{
		Destination:      destination,
		ScriptIdentifier: identifier,
		DeliveryMetadata: deliveryMetadata,
		RequestID:        &message.ID,
	})

	if result.Error != "" {
		return
	}

	nowTs := time.Now().Unix()

	if err := e.store.UpdateOutgoingMessage(ctx, &store.UpdateOutgoingMessage{ID: message.ID, SentTs: &nowTs}); err != nil {
		e.logger.Warn("failed to mark launch request consumed", "message_uid", message.UID, "error", err)
	}
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode metadata")
	}

	return string(encoded), nil
}
