package botlib

import (
	"fmt"
	"strings"

	"github.com/aeolun/chatsync/pkg/client"
)

// Context provides methods for responding to messages.
// It is passed to message handlers.
type Context struct {
	bot     *Bot
	message *Message
}

// Message returns the message that triggered this context.
func (c *Context) Message() *Message {
	return c.message
}

// Reply sends content to the chat the message was received in,
// switching to that chat first when needed.
func (c *Context) Reply(content string) error {
	return c.bot.say(c.message.Target, content)
}

// ReplyPrivately sends content to the author's private chat.
func (c *Context) ReplyPrivately(content string) error {
	return c.bot.say(client.Private(c.message.Sender), content)
}

// Target returns the chat where the message was received.
func (c *Context) Target() client.ChatTarget {
	return c.message.Target
}

// Author returns the sender of the message.
func (c *Context) Author() string {
	return c.message.Sender
}

// BotNickname returns the bot's identity.
func (c *Context) BotNickname() string {
	return c.bot.self
}

// Log logs a message using the bot's logger.
func (c *Context) Log(format string, args ...interface{}) {
	c.bot.logf(format, args...)
}

// String returns a debug representation of the context.
func (c *Context) String() string {
	return fmt.Sprintf("Context{target=%s, author=%s}", c.message.Target, c.message.Sender)
}

func (b *Bot) say(target client.ChatTarget, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("reply is empty")
	}
	b.mu.Lock()
	intents := b.intents
	switchFirst := target != b.active
	if switchFirst {
		// assume the switch lands so consecutive replies do not re-switch
		b.active = target
	}
	b.mu.Unlock()

	if intents == nil {
		return fmt.Errorf("bot is not attached to a client")
	}
	if switchFirst {
		intents.SwitchChat(target)
	}
	intents.SendMessage(content)
	return nil
}
