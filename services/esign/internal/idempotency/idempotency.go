// Package idempotency replays operator responses for a repeated Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/canonhash"
)

// ErrKeyReused means the key was first used with a different request body.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

type ActorContext struct {
	OperatorID     string
	IdempotencyKey string
}

type Record struct {
	Status      int
	Body        []byte
	RequestHash string
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, operatorID, idempotencyKey, endpoint string) (Record, bool, error)
	SaveIdempotencyRecord(ctx context.Context, operatorID, idempotencyKey, endpoint string, rec Record) error
}

// Fingerprint is the canonical hash of a decoded request body.
func Fingerprint(request any) (string, error) {
	h, _, err := canonhash.SumObject(request)
	return h, err
}

// Replay returns the stored response for actor's key. A stored record whose
// request fingerprint differs from request yields ErrKeyReused.
func Replay(ctx context.Context, st Store, actor ActorContext, endpoint string, request any) (Record, bool, error) {
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return Record{}, false, nil
	}
	rec, found, err := st.GetIdempotencyRecord(ctx, actor.OperatorID, actor.IdempotencyKey, endpoint)
	if err != nil || !found {
		return Record{}, false, err
	}
	if rec.RequestHash != "" {
		h, err := Fingerprint(request)
		if err != nil {
			return Record{}, false, err
		}
		if h != rec.RequestHash {
			return Record{}, false, ErrKeyReused
		}
	}
	return rec, true, nil
}

func Save(ctx context.Context, st Store, actor ActorContext, endpoint string, request any, status int, response any) error {
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return nil
	}
	h, err := Fingerprint(request)
	if err != nil {
		return err
	}
	b, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return st.SaveIdempotencyRecord(ctx, actor.OperatorID, actor.IdempotencyKey, endpoint, Record{Status: status, Body: b, RequestHash: h})
}
