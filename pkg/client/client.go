package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aeolun/chatsync/pkg/protocol"
	"github.com/aeolun/chatsync/pkg/restapi"
)

// Timing groups the durations that drive reconnect and typing behavior
type Timing struct {
	ReconnectDelay     time.Duration
	TypingPingInterval time.Duration
	TypingIdle         time.Duration
	TypingExpiry       time.Duration
	RequestTimeout     time.Duration
}

// DefaultTiming returns the protocol's standard timings
func DefaultTiming() Timing {
	return Timing{
		ReconnectDelay:     DefaultReconnectDelay,
		TypingPingInterval: DefaultTypingPingInterval,
		TypingIdle:         DefaultTypingIdle,
		TypingExpiry:       DefaultTypingExpiry,
		RequestTimeout:     15 * time.Second,
	}
}

// Options configures a Client. Self, Endpoint, Dialer and Renderer are
// required; everything else is optional.
type Options struct {
	Self         string
	Endpoint     func(identity string) string
	Dialer       Dialer
	Renderer     Renderer
	Collaborator Collaborator
	State        StateInterface
	Notifier     Notifier
	Metrics      *Metrics
	Loop         *Loop
	Scheduler    Scheduler
	Timing       Timing
	Logger       *log.Logger
}

// eventHandler applies one decoded inbound event
type eventHandler func(c *Client, event protocol.InboundEvent)

// inboundHandlers is the dispatch table from event kind to handler
var inboundHandlers = map[protocol.EventKind]eventHandler{
	protocol.KindSystemNotice:    (*Client).onSystemNotice,
	protocol.KindGeneralMessage:  (*Client).onChatEvent,
	protocol.KindPrivateMessage:  (*Client).onChatEvent,
	protocol.KindFileMessage:     (*Client).onChatEvent,
	protocol.KindTypingAggregate: (*Client).onTypingAggregate,
	protocol.KindTypingPrivate:   (*Client).onTypingPrivate,
	protocol.KindUnrecognized:    (*Client).onUnrecognized,
}

// Client is the session context: it owns the connection, the chat state and
// the typing coordinator, and runs every transition on its Loop. The exported
// intent methods are safe to call from any goroutine.
type Client struct {
	self     string
	endpoint func(string) string

	loop       *Loop
	sched      Scheduler
	conn       *ConnectionManager
	dispatcher *protocol.Dispatcher
	store      *ChatStateStore
	typing     *TypingCoordinator

	api      Collaborator
	renderer Renderer
	state    StateInterface
	notifier Notifier
	metrics  *Metrics
	logger   *log.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	requestTimeout time.Duration
	spawn          func(func())

	historySeq uint64
	searchSeq  uint64
	redirected bool
}

// New creates a client for the authenticated identity in opts.Self
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Self) == "" {
		return nil, &PreconditionError{Op: "new client", Reason: "self identity is empty"}
	}
	if opts.Endpoint == nil || opts.Dialer == nil {
		return nil, &PreconditionError{Op: "new client", Reason: "endpoint and dialer are required"}
	}
	if opts.Renderer == nil {
		return nil, &PreconditionError{Op: "new client", Reason: "renderer is required"}
	}

	timing := opts.Timing
	defaults := DefaultTiming()
	if timing.RequestTimeout <= 0 {
		timing.RequestTimeout = defaults.RequestTimeout
	}

	loop := opts.Loop
	if loop == nil {
		loop = NewLoop(0)
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = NewLoopScheduler(loop)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		self:           opts.Self,
		endpoint:       opts.Endpoint,
		loop:           loop,
		sched:          sched,
		dispatcher:     protocol.NewDispatcher(),
		store:          NewChatStateStore(opts.Self),
		api:            opts.Collaborator,
		renderer:       opts.Renderer,
		state:          opts.State,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		ctx:            ctx,
		cancel:         cancel,
		requestTimeout: timing.RequestTimeout,
		spawn:          func(f func()) { go f() },
	}

	post := func(f func()) { loop.Post(f) }
	c.conn = NewConnectionManager(opts.Endpoint, opts.Dialer, sched, post, connObserver{c})
	c.conn.SetReconnectDelay(timing.ReconnectDelay)
	c.conn.SetMetrics(opts.Metrics)

	c.typing = NewTypingCoordinator(sched, c.conn.Send, c.renderer.ShowTyping)
	c.typing.SetTiming(timing.TypingPingInterval, timing.TypingIdle, timing.TypingExpiry)

	c.store.OnBeforeSwitch(c.typing.OnChatSwitch)
	c.store.SetMetrics(opts.Metrics)
	if opts.State != nil {
		c.store.SetPersistence(opts.State)
	}

	c.dispatcher.OnDecodeFailure(func(*protocol.DecodeError) { c.metrics.decodeFailed() })

	c.SetLogger(opts.Logger)
	return c, nil
}

// SetLogger sets a logger on the client and its components
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
	c.conn.SetLogger(logger)
	c.dispatcher.SetLogger(logger)
	c.store.SetLogger(logger)
	c.typing.SetLogger(logger)
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Self returns the session identity
func (c *Client) Self() string {
	return c.self
}

// Run starts the session and processes events until ctx is cancelled. The
// connection is closed with going-away on the way out.
func (c *Client) Run(ctx context.Context) error {
	c.Start()
	err := c.loop.Run(ctx)

	// the loop has stopped, nothing else touches the components now
	c.conn.Close(CloseGoingAway, "")
	c.typing.Reset()
	c.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start queues session bootstrap: contacts, connection and general history
func (c *Client) Start() {
	c.loop.Post(c.start)
}

// Stop ends Run
func (c *Client) Stop() {
	c.loop.Stop()
}

// SendMessage sends text to the active chat
func (c *Client) SendMessage(text string) {
	c.loop.Post(func() { c.sendMessage(text) })
}

// SwitchChat makes target the active chat
func (c *Client) SwitchChat(target ChatTarget) {
	c.loop.Post(func() { c.switchChat(target) })
}

// Keystroke records local typing in the input
func (c *Client) Keystroke() {
	c.loop.Post(func() { c.typing.OnLocalKeystroke(c.store.Active()) })
}

// InputCleared records that the input became empty
func (c *Client) InputCleared() {
	c.loop.Post(c.typing.OnInputCleared)
}

// SendFile uploads the file at path and announces it in the active chat
func (c *Client) SendFile(path string) {
	c.loop.Post(func() { c.sendFile(path) })
}

// Search looks up users by prefix
func (c *Client) Search(prefix string) {
	c.loop.Post(func() { c.search(prefix) })
}

// Logout closes the connection and ends the server session
func (c *Client) Logout() {
	c.loop.Post(c.logout)
}

func (c *Client) start() {
	if c.state != nil {
		if err := c.state.SetLastIdentity(c.self); err != nil {
			c.logf("Failed to save identity: %v", err)
		}
		contacts, err := c.state.LoadContacts(c.self)
		if err != nil {
			c.logf("Failed to load saved contacts: %v", err)
		}
		for _, contact := range contacts {
			if contact.ID != c.self {
				c.store.restoreContact(contact)
			}
		}
	}
	c.showContacts()
	c.fetchContacts()

	if err := c.conn.Connect(c.self); err != nil {
		c.logf("Connect failed: %v", err)
	}
	c.loadHistory(General)
}

// onFrame decodes one inbound frame and runs its handler
func (c *Client) onFrame(raw string) {
	event := c.dispatcher.Dispatch(raw)
	c.metrics.frameReceived(event.Kind().String())
	if handler, ok := inboundHandlers[event.Kind()]; ok {
		handler(c, event)
	}
}

func (c *Client) onSystemNotice(event protocol.InboundEvent) {
	notice := event.(protocol.SystemNotice)
	if c.store.Active().IsGeneral() {
		c.renderer.ShowNotice(General, notice.Text)
	}
}

func (c *Client) onChatEvent(event protocol.InboundEvent) {
	before := len(c.store.contacts)
	disposition, target := c.store.ApplyInbound(event)

	switch disposition {
	case Rendered:
		c.renderer.ShowMessage(target, entryFromEvent(event))
	case Flagged:
		c.notifyUnread(target, event)
	}
	if disposition == Flagged || len(c.store.contacts) != before {
		c.showContacts()
	}
}

func (c *Client) onTypingAggregate(event protocol.InboundEvent) {
	typing := event.(protocol.TypingAggregate)
	if !c.store.Active().IsGeneral() {
		c.typing.ClearAggregate()
		return
	}
	c.typing.OnInboundTypingAggregate(typing.Text, typing.Stopped)
}

func (c *Client) onTypingPrivate(event protocol.InboundEvent) {
	typing := event.(protocol.TypingPrivate)
	if typing.Recipient != c.self || c.store.Active() != Private(typing.Sender) {
		return
	}
	c.typing.OnInboundTypingPrivate(typing.Sender, typing.Active)
}

func (c *Client) onUnrecognized(protocol.InboundEvent) {}

func entryFromEvent(event protocol.InboundEvent) TranscriptEntry {
	switch e := event.(type) {
	case protocol.GeneralMessage:
		return TranscriptEntry{Sender: e.Sender, Content: e.Content, Timestamp: e.Timestamp, RawTimestamp: e.RawTimestamp, Live: true}
	case protocol.PrivateMessage:
		return TranscriptEntry{Sender: e.Sender, Content: e.Content, Timestamp: e.Timestamp, RawTimestamp: e.RawTimestamp, Live: true}
	case protocol.FileMessage:
		return TranscriptEntry{Sender: e.Sender, Filename: e.Filename, Path: e.Path, Timestamp: e.Timestamp, RawTimestamp: e.RawTimestamp, Live: true}
	}
	return TranscriptEntry{}
}

func entryFromHistory(m restapi.HistoryMessage) TranscriptEntry {
	ts, _ := protocol.ParseTimestamp(m.Timestamp)
	entry := TranscriptEntry{Sender: m.Sender, Content: m.Content, Timestamp: ts}
	if m.IsFile() {
		entry.Filename = m.Filename
		entry.Path = m.FilePath
	}
	return entry
}

func (c *Client) notifyUnread(target ChatTarget, event protocol.InboundEvent) {
	if c.notifier == nil {
		return
	}
	title := fmt.Sprintf("New message from %s", target)
	body := ""
	switch e := event.(type) {
	case protocol.PrivateMessage:
		body = e.Content
	case protocol.FileMessage:
		body = fmt.Sprintf("sent a file: %s", e.Filename)
	}
	notifier := c.notifier
	c.spawn(func() {
		if err := notifier.Notify(title, body); err != nil {
			c.logf("Desktop notification failed: %v", err)
		}
	})
}

func (c *Client) sendMessage(text string) {
	active := c.store.Active()
	frame, err := ComposeMessage(active, text)
	if err != nil {
		return
	}
	c.typing.OnSend()

	if err := c.conn.Send(frame); err != nil {
		if errors.Is(err, ErrNotConnected) {
			c.renderer.ShowNotice(active, "You are offline. The message was not sent.")
			return
		}
		c.renderer.ShowNotice(active, fmt.Sprintf("Message not sent: %v", err))
		return
	}
	if !active.IsGeneral() {
		c.store.EnsureContact(string(active))
	}
}

func (c *Client) switchChat(target ChatTarget) {
	if !target.IsGeneral() {
		if c.store.EnsureContact(string(target)) {
			c.showContacts()
		}
	}
	if !c.store.SwitchTo(target) {
		return
	}
	c.renderer.ClearTranscript(target)
	c.showContacts()
	c.loadHistory(target)
}

func (c *Client) sendFile(path string) {
	target := c.store.Active()
	if c.api == nil {
		c.renderer.ShowNotice(target, "File upload is not available.")
		return
	}
	c.request(func(ctx context.Context) func() {
		filename, err := c.api.Upload(ctx, path)
		return func() {
			if err != nil {
				c.collaboratorError(target, "upload file", err)
				return
			}
			frame, err := ComposeFile(target, filename)
			if err != nil {
				c.renderer.ShowNotice(target, fmt.Sprintf("File not sent: %v", err))
				return
			}
			if !target.IsGeneral() && c.store.EnsureContact(string(target)) {
				c.showContacts()
			}
			if err := c.conn.Send(frame); err != nil {
				c.renderer.ShowNotice(target, fmt.Sprintf("File %s uploaded but not announced: %v", filename, err))
			}
		}
	})
}

func (c *Client) search(prefix string) {
	prefix = strings.TrimSpace(prefix)
	c.searchSeq++
	if utf8.RuneCountInString(prefix) < restapi.MinSearchLength || c.api == nil {
		c.renderer.ShowSearchResults(prefix, nil)
		return
	}

	seq := c.searchSeq
	c.request(func(ctx context.Context) func() {
		users, err := c.api.SearchUsers(ctx, prefix)
		return func() {
			if seq != c.searchSeq {
				return
			}
			if err != nil {
				c.collaboratorError(c.store.Active(), "search users", err)
				return
			}
			results := make([]string, 0, len(users))
			for _, u := range users {
				if u != c.self {
					results = append(results, u)
				}
			}
			c.renderer.ShowSearchResults(prefix, results)
		}
	})
}

func (c *Client) logout() {
	c.redirected = true
	c.typing.Reset()
	c.conn.Close(CloseNormal, "Logout")

	if c.api == nil {
		c.renderer.RedirectToLogin("logged out")
		return
	}
	c.request(func(ctx context.Context) func() {
		err := c.api.Logout(ctx)
		return func() {
			if err != nil {
				c.logf("Logout request failed: %v", err)
			}
			c.renderer.RedirectToLogin("logged out")
		}
	})
}

func (c *Client) fetchContacts() {
	if c.api == nil {
		return
	}
	c.request(func(ctx context.Context) func() {
		ids, err := c.api.Contacts(ctx)
		return func() {
			if err != nil {
				c.collaboratorError(c.store.Active(), "load contacts", err)
				return
			}
			added := false
			for _, id := range ids {
				if id != c.self && c.store.EnsureContact(id) {
					added = true
				}
			}
			if added {
				c.showContacts()
			}
		}
	})
}

// loadHistory fetches the transcript of target; results for a chat that is
// no longer active, or for a superseded request, are dropped
func (c *Client) loadHistory(target ChatTarget) {
	if c.api == nil {
		return
	}
	c.historySeq++
	seq := c.historySeq

	c.request(func(ctx context.Context) func() {
		var msgs []restapi.HistoryMessage
		var err error
		if target.IsGeneral() {
			msgs, err = c.api.GeneralHistory(ctx)
		} else {
			msgs, err = c.api.PrivateHistory(ctx, string(target))
		}
		return func() {
			if seq != c.historySeq || c.store.Active() != target {
				return
			}
			if err != nil {
				if !target.IsGeneral() && errors.Is(err, restapi.ErrNotFound) {
					c.renderer.ShowNotice(target, "User not found.")
					return
				}
				c.collaboratorError(target, "load history", err)
				return
			}
			for _, m := range msgs {
				c.renderer.ShowMessage(target, entryFromHistory(m))
			}
		}
	})
}

// collaboratorError shows a REST failure locally, or redirects on an auth failure
func (c *Client) collaboratorError(target ChatTarget, op string, err error) {
	if IsAuthFailure(err) {
		c.redirect("Your session has expired. Please log in again.")
		return
	}
	c.logf("Failed to %s: %v", op, err)
	c.renderer.ShowNotice(target, fmt.Sprintf("Failed to %s: %v", op, err))
}

// redirect sends the user back to login once; the connection is closed and
// every timer cancelled
func (c *Client) redirect(reason string) {
	if c.redirected {
		return
	}
	c.redirected = true
	c.typing.Reset()
	c.conn.Close(CloseNormal, "Session expired")
	c.renderer.RedirectToLogin(reason)
}

func (c *Client) showContacts() {
	c.renderer.ShowContacts(c.store.Active(), c.store.Contacts())
}

// request runs call off the loop and posts the continuation it returns back onto it
func (c *Client) request(call func(ctx context.Context) func()) {
	c.spawn(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
		defer cancel()
		if done := call(ctx); done != nil {
			c.loop.Post(done)
		}
	})
}

// connObserver adapts ConnectionManager events onto the client
type connObserver struct {
	c *Client
}

func (o connObserver) OnStateChange(update ConnectionStateUpdate) {
	c := o.c
	c.renderer.ShowConnectionState(update)

	switch update.State {
	case StateOpen:
		if c.state != nil {
			if err := c.state.SaveSuccessfulConnection(c.self, c.endpoint(c.self)); err != nil {
				c.logf("Failed to save connection history: %v", err)
			}
		}
	case StateRejectedTerminal, StateClosedClean:
		c.typing.Reset()
	}
}

func (o connObserver) OnFrame(raw string) {
	o.c.onFrame(raw)
}

func (o connObserver) OnNotice(text string) {
	o.c.renderer.ShowNotice(o.c.store.Active(), text)
}

func (o connObserver) OnRejected(err error) {
	o.c.logf("Session rejected: %v", err)
	o.c.redirect("Your session has expired or is invalid. Please log in again.")
}
