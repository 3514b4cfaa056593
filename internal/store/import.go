package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/tracker/internal/conversation"
)

// ReadChat decodes a chat from YAML:
//
//	cast:
//	  user: {name: You}
//	  counterpart: {name: Ada, description: ...}
//	messages:
//	  - {speaker: You, body: Hi, is_user: true}
func ReadChat(r io.Reader) (*conversation.Chat, error) {
	var chat conversation.Chat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&chat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty chat file")
		}
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	if chat.Roster.User.Name == "" {
		chat.Roster.User.Name = "User"
	}
	return &chat, nil
}

// ImportChat reads a YAML chat and saves it under id.
func (db *DB) ImportChat(ctx context.Context, id string, r io.Reader) (*conversation.Chat, error) {
	chat, err := ReadChat(r)
	if err != nil {
		return nil, err
	}
	if err := db.SaveChat(ctx, id, chat); err != nil {
		return nil, fmt.Errorf("save chat %s: %w", id, err)
	}
	return chat, nil
}

// ExportChat writes a stored chat, trackers included, as YAML readable by
// ReadChat.
func (db *DB) ExportChat(ctx context.Context, id string, w io.Writer) error {
	cs, err := db.OpenChat(ctx, id)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cs.chat); err != nil {
		return fmt.Errorf("encode chat %s: %w", id, err)
	}
	return enc.Close()
}
