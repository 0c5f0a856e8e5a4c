package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	gotd "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// gotdClient implements Client over the gotd MTProto library. The wire
// protocol, session cryptography, and reconnect logic all live inside gotd;
// this adapter only translates between gotd types and ours.
type gotdClient struct {
	cfg    Config
	events *Events
	logger zerolog.Logger

	client *gotd.Client
	api    *tg.Client

	runCancel context.CancelFunc
	stop      bg.StopFunc

	mu    sync.RWMutex
	peers map[int64]peerRef // chat id -> kind + access hash, learned from updates and queries
	alive bool
}

type peerKind int

const (
	peerUser peerKind = iota
	peerChat
	peerChannel
)

// peerRef records what we know about a peer: its kind and, for users and
// channels, the access hash required to address it.
type peerRef struct {
	kind       peerKind
	accessHash int64
}

func (r peerRef) input(id int64) tg.InputPeerClass {
	switch r.kind {
	case peerChat:
		return &tg.InputPeerChat{ChatID: id}
	case peerChannel:
		return &tg.InputPeerChannel{ChannelID: id, AccessHash: r.accessHash}
	default:
		return &tg.InputPeerUser{UserID: id, AccessHash: r.accessHash}
	}
}

// NewClient builds a gotd-backed client. Inbound updates are dispatched to
// the given event layer.
func NewClient(cfg Config, storage session.Storage, events *Events, logger zerolog.Logger) Client {
	c := &gotdClient{
		cfg:    cfg,
		events: events,
		logger: logger.With().Str("component", "gotd").Logger(),
		peers:  make(map[int64]peerRef),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(c.onNewMessage)
	dispatcher.OnEditMessage(c.onEditMessage)
	dispatcher.OnDeleteMessages(c.onDeleteMessages)
	dispatcher.OnUserStatus(c.onUserStatus)

	c.client = gotd.NewClient(cfg.APIID, cfg.APIHash, gotd.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})
	return c
}

// Connect brings the connection up in the background, verifies the session
// is authorized, and resolves the account identity. The passed context only
// bounds establishment; the connection itself lives until Close.
func (c *gotdClient) Connect(ctx context.Context) (types.UserInfo, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel

	type result struct {
		stop bg.StopFunc
		err  error
	}
	done := make(chan result, 1)
	go func() {
		stop, err := bg.Connect(c.client, bg.WithContext(runCtx))
		done <- result{stop: stop, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			return types.UserInfo{}, WrapError(ErrProvider, "telegram connect", res.err)
		}
		c.stop = res.stop
	case <-ctx.Done():
		cancel()
		return types.UserInfo{}, ctx.Err()
	}

	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		c.teardown()
		return types.UserInfo{}, WrapError(ErrProvider, "auth status", err)
	}
	if !status.Authorized {
		c.teardown()
		if c.cfg.SessionString != "" {
			return types.UserInfo{}, NewError(ErrAuthRequired, "session token is invalid or expired")
		}
		return types.UserInfo{}, NewError(ErrAuthRequired, "no authorized session; generate one with telegram-session")
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		c.teardown()
		return types.UserInfo{}, WrapError(ErrProvider, "get self", err)
	}

	c.api = c.client.API()
	c.mu.Lock()
	c.alive = true
	c.peers[self.ID] = peerRef{kind: peerUser, accessHash: self.AccessHash}
	c.mu.Unlock()

	return userInfo(self), nil
}

// Close cancels the background connection. Idempotent.
func (c *gotdClient) Close() error {
	c.mu.Lock()
	wasAlive := c.alive
	c.alive = false
	c.mu.Unlock()

	if c.runCancel != nil {
		c.runCancel()
	}
	if wasAlive && c.stop != nil {
		return c.stop()
	}
	return nil
}

func (c *gotdClient) teardown() {
	if c.stop != nil {
		_ = c.stop()
		c.stop = nil
	}
	if c.runCancel != nil {
		c.runCancel()
	}
}

// Alive reports whether the background connection is up.
func (c *gotdClient) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// SendMessage sends text to a chat and returns the assigned message id.
// Flood-wait responses surface as ErrFloodWait with the required duration.
func (c *gotdClient) SendMessage(ctx context.Context, chatID int64, text string) (types.SendResult, error) {
	peer, err := c.inputPeer(ctx, chatID)
	if err != nil {
		return types.SendResult{}, err
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return types.SendResult{}, WrapError(ErrProvider, "random id", err)
	}

	upd, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: int64(binary.LittleEndian.Uint64(buf[:])),
	})
	if err != nil {
		if wait, ok := tgerr.AsFloodWait(err); ok {
			return types.SendResult{}, FloodWaitError(wait)
		}
		return types.SendResult{}, WrapError(ErrProvider, "send message", err)
	}
	return types.SendResult{MessageID: sentMessageID(upd)}, nil
}

// Me returns the authenticated account's identity.
func (c *gotdClient) Me(ctx context.Context) (types.UserInfo, error) {
	self, err := c.client.Self(ctx)
	if err != nil {
		return types.UserInfo{}, WrapError(ErrProvider, "get self", err)
	}
	return userInfo(self), nil
}

// Dialogs lists recent conversations.
func (c *gotdClient) Dialogs(ctx context.Context, limit int) ([]types.ChatSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		Limit:      limit,
		OffsetPeer: &tg.InputPeerEmpty{},
	})
	if err != nil {
		return nil, WrapError(ErrProvider, "get dialogs", err)
	}

	var (
		dialogs  []tg.DialogClass
		users    []tg.UserClass
		chats    []tg.ChatClass
		messages []tg.MessageClass
	)
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, users, chats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
	case *tg.MessagesDialogsSlice:
		dialogs, users, chats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
	default:
		return nil, nil
	}

	userByID := c.collectUsers(users)
	titleByChat := make(map[int64]string)
	broadcastChannels := make(map[int64]bool)
	c.mu.Lock()
	for _, cc := range chats {
		switch ch := cc.(type) {
		case *tg.Chat:
			titleByChat[ch.ID] = ch.Title
			c.peers[ch.ID] = peerRef{kind: peerChat}
		case *tg.Channel:
			titleByChat[ch.ID] = ch.Title
			broadcastChannels[ch.ID] = ch.Broadcast
			c.peers[ch.ID] = peerRef{kind: peerChannel, accessHash: ch.AccessHash}
		}
	}
	c.mu.Unlock()
	dateByTop := make(map[string]time.Time)
	for _, mc := range messages {
		if m, ok := mc.(*tg.Message); ok {
			dateByTop[peerMessageKey(m.PeerID, m.ID)] = time.Unix(int64(m.Date), 0)
		}
	}

	summaries := make([]types.ChatSummary, 0, len(dialogs))
	for _, dc := range dialogs {
		dlg, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		summary := types.ChatSummary{UnreadCount: dlg.UnreadCount}
		switch p := dlg.Peer.(type) {
		case *tg.PeerUser:
			summary.ID = p.UserID
			summary.Type = types.ChatPrivate
			if u, ok := userByID[p.UserID]; ok {
				summary.Title = types.DisplayName(u.FirstName, u.LastName, u.Username, u.ID)
				summary.Username = u.Username
				summary.FirstName = u.FirstName
				summary.LastName = u.LastName
			} else {
				summary.Title = fmt.Sprintf("User%d", p.UserID)
			}
		case *tg.PeerChat:
			summary.ID = p.ChatID
			summary.Type = types.ChatGroup
			summary.Title = titleByChat[p.ChatID]
		case *tg.PeerChannel:
			summary.ID = p.ChannelID
			summary.Type = types.ChatGroup
			if broadcastChannels[p.ChannelID] {
				summary.Type = types.ChatChannel
			}
			summary.Title = titleByChat[p.ChannelID]
		default:
			continue
		}
		if date, ok := dateByTop[peerMessageKey(dlg.Peer, dlg.TopMessage)]; ok {
			summary.LastMessageDate = &date
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// History lists messages from one chat, newest first.
func (c *gotdClient) History(ctx context.Context, chatID int64, limit int) ([]types.MessageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	peer, err := c.inputPeer(ctx, chatID)
	if err != nil {
		return nil, err
	}

	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, WrapError(ErrProvider, "get history", err)
	}

	var (
		messages []tg.MessageClass
		users    []tg.UserClass
	)
	switch m := res.(type) {
	case *tg.MessagesMessages:
		messages, users = m.Messages, m.Users
	case *tg.MessagesMessagesSlice:
		messages, users = m.Messages, m.Users
	case *tg.MessagesChannelMessages:
		messages, users = m.Messages, m.Users
	default:
		return nil, nil
	}

	userByID := c.collectUsers(users)
	summaries := make([]types.MessageSummary, 0, len(messages))
	for _, mc := range messages {
		msg, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		sender := "Unknown"
		if from, ok := msg.GetFromID(); ok {
			if pu, ok := from.(*tg.PeerUser); ok {
				if u, ok := userByID[pu.UserID]; ok {
					sender = types.DisplayName(u.FirstName, u.LastName, u.Username, u.ID)
				}
			}
		} else if u, ok := userByID[chatID]; ok && !msg.Out {
			sender = types.DisplayName(u.FirstName, u.LastName, u.Username, u.ID)
		}
		date := time.Unix(int64(msg.Date), 0)
		_, hasMedia := msg.GetMedia()
		summaries = append(summaries, types.MessageSummary{
			ID:     msg.ID,
			Text:   msg.Message,
			Sender: sender,
			Date:   &date,
			Out:    msg.Out,
			Media:  hasMedia,
		})
	}
	return summaries, nil
}

// inputPeer resolves a chat id to an input peer using the learned peer refs,
// refreshing from the dialog list once on a miss. Users, basic groups, and
// channels all resolve; only ids absent from the dialog list fail.
func (c *gotdClient) inputPeer(ctx context.Context, chatID int64) (tg.InputPeerClass, error) {
	c.mu.RLock()
	ref, ok := c.peers[chatID]
	c.mu.RUnlock()
	if ok {
		return ref.input(chatID), nil
	}

	// Not seen yet; the dialog list carries the entities we need.
	if _, err := c.Dialogs(ctx, 100); err != nil {
		return nil, err
	}
	c.mu.RLock()
	ref, ok = c.peers[chatID]
	c.mu.RUnlock()
	if ok {
		return ref.input(chatID), nil
	}
	return nil, NewError(ErrProvider, fmt.Sprintf("unknown chat %d", chatID))
}

// collectUsers indexes user entities and records their access hashes.
func (c *gotdClient) collectUsers(users []tg.UserClass) map[int64]*tg.User {
	byID := make(map[int64]*tg.User, len(users))
	c.mu.Lock()
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			byID[u.ID] = u
			c.peers[u.ID] = peerRef{kind: peerUser, accessHash: u.AccessHash}
		}
	}
	c.mu.Unlock()
	return byID
}

func (c *gotdClient) onNewMessage(_ context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	if msg, ok := u.Message.(*tg.Message); ok {
		c.events.HandleNewMessage(c.translate(msg, e))
	}
	return nil
}

func (c *gotdClient) onEditMessage(_ context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
	if msg, ok := u.Message.(*tg.Message); ok {
		c.events.HandleMessageEdited(c.translate(msg, e))
	}
	return nil
}

func (c *gotdClient) onDeleteMessages(_ context.Context, _ tg.Entities, u *tg.UpdateDeleteMessages) error {
	c.events.HandleMessagesDeleted(u.Messages)
	return nil
}

func (c *gotdClient) onUserStatus(_ context.Context, _ tg.Entities, u *tg.UpdateUserStatus) error {
	_, online := u.Status.(*tg.UserStatusOnline)
	c.events.HandleUserStatus(u.UserID, online)
	return nil
}

// translate converts a raw MTProto message plus its entity map into the
// adapter-neutral form consumed by the event layer.
func (c *gotdClient) translate(msg *tg.Message, e tg.Entities) RawMessage {
	raw := RawMessage{
		MessageID: msg.ID,
		Text:      msg.Message,
		Outgoing:  msg.Out,
		Date:      time.Unix(int64(msg.Date), 0),
	}
	peer, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return raw
	}
	raw.Private = true
	raw.ChatID = peer.UserID

	senderID := peer.UserID
	if from, ok := msg.GetFromID(); ok {
		if pu, ok := from.(*tg.PeerUser); ok {
			senderID = pu.UserID
		}
	}
	raw.SenderID = senderID

	if user, ok := e.Users[senderID]; ok {
		raw.SenderFirstName = user.FirstName
		raw.SenderLastName = user.LastName
		raw.SenderUsername = user.Username
		c.mu.Lock()
		c.peers[user.ID] = peerRef{kind: peerUser, accessHash: user.AccessHash}
		c.mu.Unlock()
	}
	return raw
}

func userInfo(u *tg.User) types.UserInfo {
	return types.UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

// sentMessageID digs the assigned message id out of the send acknowledgment.
func sentMessageID(upd tg.UpdatesClass) int {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, uc := range u.Updates {
			switch m := uc.(type) {
			case *tg.UpdateMessageID:
				return m.ID
			case *tg.UpdateNewMessage:
				if msg, ok := m.Message.(*tg.Message); ok {
					return msg.ID
				}
			}
		}
	}
	return 0
}

func peerMessageKey(peer tg.PeerClass, msgID int) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return fmt.Sprintf("u%d:%d", p.UserID, msgID)
	case *tg.PeerChat:
		return fmt.Sprintf("c%d:%d", p.ChatID, msgID)
	case *tg.PeerChannel:
		return fmt.Sprintf("ch%d:%d", p.ChannelID, msgID)
	}
	return fmt.Sprintf("?:%d", msgID)
}

var _ session.Storage = (*RedisSessionStorage)(nil)
