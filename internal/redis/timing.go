package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aceteam-ai/triggerbench/internal/timing"
	"github.com/redis/go-redis/v9"
)

// ErrFieldAlreadySet is returned when a write touches a timing field that
// already has a value. Nothing is written in that case.
var ErrFieldAlreadySet = errors.New("timing field already set")

// setOnceScript writes all field/value pairs only if none of them exist yet,
// then returns the full hash.
var setOnceScript = redis.NewScript(`
local key = KEYS[1]
for i = 1, #ARGV, 2 do
  if redis.call('HEXISTS', key, ARGV[i]) == 1 then
    return redis.error_reply('FIELDSET ' .. ARGV[i])
  end
end
redis.call('HSET', key, unpack(ARGV))
return redis.call('HGETALL', key)
`)

func timingKey(trialID string) string {
	return fmt.Sprintf("timing:v1:%s", trialID)
}

func timingChannel(trialID string) string {
	return fmt.Sprintf("timing:v1:%s:changes", trialID)
}

// SetTimingFields adds fields to a trial's timing record and publishes the
// resulting snapshot to the record's change channel. Values may be int64,
// int, string or timing.TriggerDetails.
func (c *Client) SetTimingFields(ctx context.Context, trialID string, fields map[string]any) (*timing.Record, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no timing fields to set")
	}

	// Deterministic argument order keeps the error message stable.
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	args := make([]any, 0, len(fields)*2)
	for _, k := range names {
		v, err := encodeTimingValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("timing field %s: %w", k, err)
		}
		args = append(args, k, v)
	}

	res, err := setOnceScript.Run(ctx, c.client, []string{timingKey(trialID)}, args...).Result()
	if err != nil {
		if i := strings.Index(err.Error(), "FIELDSET "); i >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrFieldAlreadySet, err.Error()[i+len("FIELDSET "):])
		}
		return nil, fmt.Errorf("failed to set timing fields: %w", err)
	}

	values, err := flatToMap(res)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(values)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timing snapshot: %w", err)
	}
	if err := c.client.Publish(ctx, timingChannel(trialID), snapshot).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish timing snapshot: %w", err)
	}

	return rec, nil
}

// TimingRecord returns the current record for a trial, or nil if it does not exist.
func (c *Client) TimingRecord(ctx context.Context, trialID string) (*timing.Record, error) {
	values, err := c.client.HGetAll(ctx, timingKey(trialID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read timing record: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeRecord(values)
}

// DeleteTimingRecord removes a trial's record.
func (c *Client) DeleteTimingRecord(ctx context.Context, trialID string) error {
	return c.client.Del(ctx, timingKey(trialID)).Err()
}

// Subscribe delivers snapshots of a trial's timing record to onUpdate until
// the returned function is called. The current state is delivered first
// (nil if the record does not exist yet), then every published snapshot.
// Transport failures are reported once through onError, after which no more
// callbacks are made. The returned function is safe to call more than once.
func (c *Client) Subscribe(ctx context.Context, trialID string, onUpdate func(*timing.Record), onError func(error)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := c.client.Subscribe(subCtx, timingChannel(trialID))

	// Wait for subscription confirmation so no publish is missed after the initial read
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", timingChannel(trialID), err)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			pubsub.Close()
		})
	}

	fail := func(err error) {
		if subCtx.Err() != nil {
			return // unsubscribed
		}
		onError(err)
	}

	go func() {
		rec, err := c.TimingRecord(subCtx, trialID)
		if err != nil {
			fail(err)
			return
		}
		onUpdate(rec)

		for {
			msg, err := pubsub.ReceiveMessage(subCtx)
			if err != nil {
				fail(fmt.Errorf("timing feed receive: %w", err))
				return
			}
			var snap timing.Record
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				fail(fmt.Errorf("failed to parse timing snapshot: %w", err))
				return
			}
			onUpdate(&snap)
		}
	}()

	return unsubscribe, nil
}

func encodeTimingValue(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case string:
		return x, nil
	case timing.TriggerDetails:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func flatToMap(res any) (map[string]string, error) {
	items, ok := res.([]any)
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("unexpected timing hash reply %T", res)
	}
	values := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		values[k] = v
	}
	return values, nil
}

func decodeRecord(values map[string]string) (*timing.Record, error) {
	rec := &timing.Record{
		RequestID:   values[timing.FieldRequestID],
		EventSource: values[timing.FieldEventSource],
		EventType:   values[timing.FieldEventType],
	}

	ints := map[string]*int64{
		timing.FieldFirstStageStart:  &rec.FirstStageStart,
		timing.FieldFirstStageEnd:    &rec.FirstStageEnd,
		timing.FieldSecondStageStart: &rec.SecondStageStart,
		timing.FieldSecondStageEnd:   &rec.SecondStageEnd,
		timing.FieldTotalDuration:    &rec.TotalDuration,
	}
	for name, dst := range ints {
		raw, ok := values[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = n
	}

	if raw, ok := values[timing.FieldTriggerDetails]; ok {
		var td timing.TriggerDetails
		if err := json.Unmarshal([]byte(raw), &td); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", timing.FieldTriggerDetails, err)
		}
		rec.TriggerDetails = &td
	}

	return rec, nil
}
