package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	requestPrefix  = "wallet:request:"
	responsePrefix = "wallet:response:"
	pendingPrefix  = "wallet:pending:"

	defaultSignTimeout = 2 * time.Minute
	responseTTL        = time.Minute
)

// RedisSigner parks signing requests in redis for the user's wallet client and blocks until
// the client answers through the signatures API or the timeout elapses.
type RedisSigner struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRedisSigner(rdb *redis.Client, timeout time.Duration, logger zerolog.Logger) *RedisSigner {
	if timeout <= 0 {
		timeout = defaultSignTimeout
	}
	return &RedisSigner{
		rdb:     rdb,
		timeout: timeout,
		logger:  logger.With().Str("component", "wallet_signer").Logger(),
	}
}

func requestKey(id string) string  { return requestPrefix + id }
func responseKey(id string) string { return responsePrefix + id }
func pendingKey(account string) string {
	return pendingPrefix + strings.ToLower(account)
}

// Sign publishes req and waits for the wallet. No ledger call happens before this returns,
// so every failure here leaves state untouched.
func (s *RedisSigner) Sign(ctx context.Context, req Request) ([]byte, error) {
	const op = "wallet.sign"
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	wait := s.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		wait = time.Until(dl)
	}
	if wait <= 0 {
		return nil, apperr.New(apperr.KindSigningTimeout, op, "no time left to wait for the wallet")
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.ExpiresAt = now.Add(wait)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "encode signing request", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, requestKey(req.ID), payload, wait)
	pipe.SAdd(ctx, pendingKey(req.Account), req.ID)
	pipe.Expire(ctx, pendingKey(req.Account), wait+responseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "publish signing request", err)
	}
	defer s.cleanup(req)

	s.logger.Info().Str("request_id", req.ID).Str("account", req.Account).Str("method", req.Method).
		Dur("timeout", wait).Msg("waiting for wallet signature")

	res, err := s.rdb.BLPop(ctx, wait, responseKey(req.ID)).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil), errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, apperr.New(apperr.KindSigningTimeout, op, "wallet did not answer in time").WithContext("request_id", req.ID)
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, apperr.Wrap(apperr.KindSigningFailed, op, "signing wait cancelled", ctx.Err())
		default:
			return nil, apperr.Wrap(apperr.KindSigningFailed, op, "wait for wallet", err)
		}
	}
	if len(res) != 2 {
		return nil, apperr.New(apperr.KindSigningFailed, op, "malformed wallet response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(res[1]), &resp); err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "decode wallet response", err)
	}
	if !resp.Approved {
		msg := "user rejected the transaction"
		if resp.Reason != "" {
			msg += ": " + resp.Reason
		}
		return nil, apperr.New(apperr.KindUserRejected, op, msg).WithContext("request_id", req.ID)
	}
	sig, err := decodeSignature(resp.Signature)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "invalid signature", err)
	}
	return sig, nil
}

func (s *RedisSigner) cleanup(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, requestKey(req.ID), responseKey(req.ID))
	pipe.SRem(ctx, pendingKey(req.Account), req.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("failed to clean up signing request")
	}
}

// Get returns a pending request.
func (s *RedisSigner) Get(ctx context.Context, id string) (*Request, error) {
	b, err := s.rdb.Get(ctx, requestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("wallet.get", "signing request not found or expired")
	}
	if err != nil {
		return nil, apperr.Internal("wallet.get", err)
	}
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, apperr.Internal("wallet.get", err)
	}
	return &req, nil
}

// Pending lists the requests waiting on account.
func (s *RedisSigner) Pending(ctx context.Context, account string) ([]Request, error) {
	ids, err := s.rdb.SMembers(ctx, pendingKey(account)).Result()
	if err != nil {
		return nil, apperr.Internal("wallet.pending", err)
	}
	out := make([]Request, 0, len(ids))
	for _, id := range ids {
		req, err := s.Get(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) {
			_ = s.rdb.SRem(ctx, pendingKey(account), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, nil
}

// Respond delivers the wallet's answer. Only the account the request targets may answer.
func (s *RedisSigner) Respond(ctx context.Context, account, id string, resp Response) error {
	const op = "wallet.respond"
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !strings.EqualFold(req.Account, account) {
		return apperr.Forbidden(op, "signing request belongs to another account")
	}
	if resp.Approved {
		if _, err := decodeSignature(resp.Signature); err != nil {
			return apperr.Validation(op, err.Error())
		}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return apperr.Internal(op, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, responseKey(id), b)
	pipe.Expire(ctx, responseKey(id), responseTTL)
	pipe.Del(ctx, requestKey(id))
	pipe.SRem(ctx, pendingKey(req.Account), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Internal(op, err)
	}
	return nil
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(sig) != SignatureLength {
		return nil, errors.New("signature must be 65 bytes")
	}
	return sig, nil
}
