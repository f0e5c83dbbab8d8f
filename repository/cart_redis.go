package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

// Cart state lives in two hashes per user: cart:<uid> maps productId to
// quantity, cart:<uid>:meta keeps created_at/updated_at (unix ms). The meta
// hash is what makes an emptied cart still exist.
//
// Each mutator runs as a single Lua script keyed by user, so concurrent
// operations on the same cart serialize inside Redis and a second writer can
// never overwrite the first one's effect.

var upsertLineScript = redis.NewScript(`
	local metaKey = KEYS[1]
	local itemsKey = KEYS[2]
	local productId = ARGV[1]
	local qty = tonumber(ARGV[2])
	local now = ARGV[3]
	local createCart = ARGV[4]

	if redis.call("EXISTS", metaKey) == 0 then
		if createCart == "0" then
			return -1
		end
		redis.call("HSET", metaKey, "created_at", now)
	end
	redis.call("HSET", metaKey, "updated_at", now)
	return redis.call("HINCRBY", itemsKey, productId, qty)
`)

var decrementLineScript = redis.NewScript(`
	local metaKey = KEYS[1]
	local itemsKey = KEYS[2]
	local productId = ARGV[1]
	local qty = tonumber(ARGV[2])
	local now = ARGV[3]

	if redis.call("EXISTS", metaKey) == 0 then
		return -1
	end
	local current = redis.call("HGET", itemsKey, productId)
	if not current then
		return -2
	end
	redis.call("HSET", metaKey, "updated_at", now)
	if qty >= tonumber(current) then
		redis.call("HDEL", itemsKey, productId)
		return 0
	end
	return redis.call("HINCRBY", itemsKey, productId, -qty)
`)

var removeLineScript = redis.NewScript(`
	local metaKey = KEYS[1]
	local itemsKey = KEYS[2]
	local productId = ARGV[1]
	local now = ARGV[2]

	if redis.call("EXISTS", metaKey) == 0 then
		return -1
	end
	if redis.call("HDEL", itemsKey, productId) == 0 then
		return -2
	end
	redis.call("HSET", metaKey, "updated_at", now)
	return 1
`)

// Script status codes shared by the mutators above.
const (
	scriptCartMissing = -1
	scriptLineMissing = -2
)

type CartRedis struct {
	rdb *redis.Client
}

func NewCartRedis(rdb *redis.Client) *CartRedis {
	return &CartRedis{rdb: rdb}
}

func cartItemsKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func cartMetaKey(userID string) string {
	return fmt.Sprintf("cart:%s:meta", userID)
}

func (r *CartRedis) GetByUser(ctx context.Context, userID string) (*model.Cart, error) {
	pipe := r.rdb.Pipeline()
	metaCmd := pipe.HGetAll(ctx, cartMetaKey(userID))
	itemsCmd := pipe.HGetAll(ctx, cartItemsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to load cart for user %s", userID)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, ErrCartNotFound
	}

	data := itemsCmd.Val()
	lines := make([]model.CartLine, 0, len(data))
	for pid, v := range data {
		q, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt quantity for product %s in cart %s", pid, userID)
		}
		lines = append(lines, model.CartLine{ProductID: pid, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	return &model.Cart{
		UserID:    userID,
		Lines:     lines,
		CreatedAt: parseUnixMilli(meta["created_at"]),
		UpdatedAt: parseUnixMilli(meta["updated_at"]),
	}, nil
}

func (r *CartRedis) UpsertLine(ctx context.Context, userID, productID string, quantity int64, createCart bool) error {
	create := "1"
	if !createCart {
		create = "0"
	}
	keys := []string{cartMetaKey(userID), cartItemsKey(userID)}
	res, err := upsertLineScript.Run(ctx, r.rdb, keys,
		productID, quantity, time.Now().UnixMilli(), create).Int64()
	if err != nil {
		return errors.Wrapf(err, "failed to upsert line %s for user %s", productID, userID)
	}
	if res == scriptCartMissing {
		return ErrCartNotFound
	}
	return nil
}

func (r *CartRedis) DecrementLine(ctx context.Context, userID, productID string, quantity int64) error {
	keys := []string{cartMetaKey(userID), cartItemsKey(userID)}
	res, err := decrementLineScript.Run(ctx, r.rdb, keys,
		productID, quantity, time.Now().UnixMilli()).Int64()
	if err != nil {
		return errors.Wrapf(err, "failed to decrement line %s for user %s", productID, userID)
	}
	switch res {
	case scriptCartMissing:
		return ErrCartNotFound
	case scriptLineMissing:
		return ErrLineNotFound
	}
	return nil
}

func (r *CartRedis) RemoveLine(ctx context.Context, userID, productID string) error {
	keys := []string{cartMetaKey(userID), cartItemsKey(userID)}
	res, err := removeLineScript.Run(ctx, r.rdb, keys,
		productID, time.Now().UnixMilli()).Int64()
	if err != nil {
		return errors.Wrapf(err, "failed to remove line %s for user %s", productID, userID)
	}
	switch res {
	case scriptCartMissing:
		return ErrCartNotFound
	case scriptLineMissing:
		return ErrLineNotFound
	}
	return nil
}

func parseUnixMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
