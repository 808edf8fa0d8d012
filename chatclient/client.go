package chatclient

import (
	"context"
	"errors"
	"time"

	"takeover/internal/app/dto"
)

// ErrNoOpenThread is returned by Send when no conversation is selected.
var ErrNoOpenThread = errors.New("chatclient: no open thread")

// Client glues the pieces together for a signed-in user: the live session
// feeds the directory and the open thread, sends go optimistic-first.
type Client struct {
	UserID    string
	Rest      *RestClient
	Session   *Session
	Directory *Directory
	Thread    *Thread
}

// NewClient wires a client around an established session. It registers the
// user on the notification stream and routes inbound messages into the
// directory and the open thread.
func NewClient(userID string, rest *RestClient, session *Session) (*Client, error) {
	c := &Client{
		UserID:    userID,
		Rest:      rest,
		Session:   session,
		Directory: NewDirectory(userID, rest, session),
		Thread:    NewThread(),
	}
	session.OnMessage(func(msg dto.Message) {
		c.Thread.ApplyInbound(msg)
		c.Directory.ApplyInbound(msg)
	})
	if err := session.Register(userID); err != nil {
		return nil, err
	}
	return c, nil
}

// Open selects the conversation: joins its room, fetches its history and
// replaces the thread view.
func (c *Client) Open(ctx context.Context, conversationID string) error {
	messages, err := c.Directory.Select(ctx, conversationID)
	if err != nil {
		return err
	}
	c.Thread.Replace(conversationID, messages)
	return nil
}

// Send emits the message into the open thread and applies the optimistic
// copy locally. The server echo later settles it via the live channel.
func (c *Client) Send(content string) error {
	conversationID := c.Thread.ConversationID()
	if conversationID == "" {
		return ErrNoOpenThread
	}
	correlationID, err := c.Session.SendMessage(conversationID, c.UserID, content)
	if err != nil {
		return err
	}
	c.Thread.AppendOptimistic(c.UserID, content, correlationID)
	c.Directory.ApplyOutbound(conversationID, dto.Message{
		ConversationID: conversationID,
		Content:        content,
		Sender:         dto.ParticipantRef{ID: c.UserID},
		CreatedAt:      time.Now(),
		CorrelationID:  correlationID,
	})
	return nil
}

// Close releases the live session.
func (c *Client) Close() error {
	return c.Session.Close()
}
