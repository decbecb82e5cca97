// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tempora.dev/tempora/storage/redis"
)

// Redis key layout of the chat store.
const (
	counterKey  = "global_message_id_counter"
	pendingKey  = "pending_messages"
	messageTTL  = 7 * 24 * time.Hour
	historyKeep = 1000
)

func messageKey(channelID, id int64) string {
	return fmt.Sprintf("msg:%d:%d", channelID, id)
}

func historyKey(channelID int64) string {
	return fmt.Sprintf("channel:%d:messages", channelID)
}

func lastMessageKey(channelID int64) string {
	return fmt.Sprintf("chat:%d:last_msg", channelID)
}

func lastReadKey(channelID, userID int64) string {
	return fmt.Sprintf("chat:%d:last_read:%d", channelID, userID)
}

func membersKey(channelID int64) string {
	return fmt.Sprintf("channel:%d:users", channelID)
}

func joinedKey(userID int64) string {
	return fmt.Sprintf("user:%d:channels", userID)
}

// Store is the Redis-first message store: the hot path for ingestion
// and recent history, with the relational table trailing behind via the
// persistence worker.
type Store struct {
	log    *zap.Logger
	client *redis.Client
}

// NewStore returns a chat store over the chat Redis database.
func NewStore(log *zap.Logger, client *redis.Client) *Store {
	return &Store{log: log, client: client}
}

// Prime raises the id counter to at least floor. Called at startup with
// the highest persisted message id so that ids stay strictly increasing
// across restarts even when Redis lost its state.
func (store *Store) Prime(ctx context.Context, floor int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	current, err := store.client.Get(ctx, counterKey).Int64()
	if err != nil && err != goredis.Nil {
		return Error.Wrap(err)
	}
	if floor > current {
		if err := store.client.Set(ctx, counterKey, floor, 0).Err(); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// NextID allocates the next globally-monotonic message id.
func (store *Store) NextID(ctx context.Context) (int64, error) {
	id, err := store.client.Incr(ctx, counterKey).Result()
	return id, Error.Wrap(err)
}

// Push stores the message blob, indexes it in the channel history and
// queues it for persistence.
func (store *Store) Push(ctx context.Context, msg *Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	key := messageKey(msg.ChannelID, msg.ID)
	if err := store.client.SetJSON(ctx, key, msg, messageTTL); err != nil {
		return Error.Wrap(err)
	}

	history := historyKey(msg.ChannelID)
	pipe := store.client.TxPipeline()
	pipe.ZAdd(ctx, history, goredis.Z{Score: float64(msg.ID), Member: key})
	pipe.ZRemRangeByRank(ctx, history, 0, int64(-historyKeep-1))
	pipe.RPush(ctx, pendingKey, fmt.Sprintf("%d:%d", msg.ChannelID, msg.ID))
	pipe.Set(ctx, lastMessageKey(msg.ChannelID), msg.ID, 0)
	pipe.Set(ctx, lastReadKey(msg.ChannelID, msg.SenderID), msg.ID, 0)
	_, err = pipe.Exec(ctx)
	return Error.Wrap(err)
}

// Range returns messages of a channel with since < id <= until in
// ascending id order, up to limit. Zero until means unbounded. Blobs
// that already expired are skipped.
func (store *Store) Range(ctx context.Context, channelID, since, until int64, limit int) (_ []*Message, err error) {
	defer mon.Task()(&ctx)(&err)

	max := "+inf"
	if until > 0 {
		max = strconv.FormatInt(until, 10)
	}
	keys, err := store.client.ZRangeByScore(ctx, historyKey(channelID), &goredis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(since, 10),
		Max:   max,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	blobs, err := store.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	messages := make([]*Message, 0, len(blobs))
	for _, blob := range blobs {
		text, ok := blob.(string)
		if !ok {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			store.log.Warn("undecodable message blob dropped", zap.Error(err))
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// PopPending takes up to max queued message references, blocking up to
// timeout for the first. Each entry resolves to the stored blob; entries
// whose blob expired are returned with a nil message.
func (store *Store) PopPending(ctx context.Context, max int, timeout time.Duration) (_ []*Message, err error) {
	defer mon.Task()(&ctx)(&err)

	first, err := store.client.BLPop(ctx, timeout, pendingKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	refs := []string{first[1]}

	for len(refs) < max {
		ref, err := store.client.LPop(ctx, pendingKey).Result()
		if err != nil {
			if err == goredis.Nil {
				break
			}
			return nil, Error.Wrap(err)
		}
		refs = append(refs, ref)
	}

	var messages []*Message
	for _, ref := range refs {
		channelID, id, ok := splitRef(ref)
		if !ok {
			store.log.Warn("malformed pending reference dropped", zap.String("ref", ref))
			continue
		}
		var msg Message
		found, err := store.client.GetJSON(ctx, messageKey(channelID, id), &msg)
		if err != nil {
			return messages, Error.Wrap(err)
		}
		if !found {
			mon.Event("chat_pending_expired")
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// RequeuePending puts message references back at the head of the
// persistence queue, keeping their original order. Used when a popped
// batch could not be written to the relational store.
func (store *Store) RequeuePending(ctx context.Context, messages []*Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(messages) == 0 {
		return nil
	}
	// LPush prepends, so pushing in reverse restores the order.
	refs := make([]any, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		refs = append(refs, fmt.Sprintf("%d:%d", messages[i].ChannelID, messages[i].ID))
	}
	return Error.Wrap(store.client.LPush(ctx, pendingKey, refs...).Err())
}

func splitRef(ref string) (channelID, id int64, ok bool) {
	i := strings.IndexByte(ref, ':')
	if i < 0 {
		return 0, 0, false
	}
	channelID, err1 := strconv.ParseInt(ref[:i], 10, 64)
	id, err2 := strconv.ParseInt(ref[i+1:], 10, 64)
	return channelID, id, err1 == nil && err2 == nil
}

// LastMessageID returns the channel's newest message id, zero when the
// channel never saw one.
func (store *Store) LastMessageID(ctx context.Context, channelID int64) (int64, error) {
	id, err := store.client.Get(ctx, lastMessageKey(channelID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return id, Error.Wrap(err)
}

// LastReadID returns the user's read marker in the channel.
func (store *Store) LastReadID(ctx context.Context, channelID, userID int64) (int64, error) {
	id, err := store.client.Get(ctx, lastReadKey(channelID, userID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return id, Error.Wrap(err)
}

// SetLastRead advances the user's read marker; it never moves backwards.
func (store *Store) SetLastRead(ctx context.Context, channelID, userID, messageID int64) error {
	current, err := store.LastReadID(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if messageID <= current {
		return nil
	}
	return Error.Wrap(store.client.Set(ctx, lastReadKey(channelID, userID), messageID, 0).Err())
}

// Join records channel membership in both directions.
func (store *Store) Join(ctx context.Context, channelID, userID int64) error {
	pipe := store.client.TxPipeline()
	pipe.SAdd(ctx, membersKey(channelID), userID)
	pipe.SAdd(ctx, joinedKey(userID), channelID)
	_, err := pipe.Exec(ctx)
	return Error.Wrap(err)
}

// Leave removes channel membership in both directions.
func (store *Store) Leave(ctx context.Context, channelID, userID int64) error {
	pipe := store.client.TxPipeline()
	pipe.SRem(ctx, membersKey(channelID), userID)
	pipe.SRem(ctx, joinedKey(userID), channelID)
	_, err := pipe.Exec(ctx)
	return Error.Wrap(err)
}

// Members returns the user ids joined to the channel.
func (store *Store) Members(ctx context.Context, channelID int64) ([]int64, error) {
	raw, err := store.client.SMembers(ctx, membersKey(channelID)).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return parseIDs(raw), nil
}

// Joined returns the channel ids the user is a member of.
func (store *Store) Joined(ctx context.Context, userID int64) ([]int64, error) {
	raw, err := store.client.SMembers(ctx, joinedKey(userID)).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return parseIDs(raw), nil
}

// IsMember reports whether the user joined the channel.
func (store *Store) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	ok, err := store.client.SIsMember(ctx, membersKey(channelID), userID).Result()
	return ok, Error.Wrap(err)
}

func parseIDs(raw []string) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
