package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
)

// MsgVerifying answers a duplicate that arrives while the first one is still
// being resolved by another instance.
const MsgVerifying = "payment is being verified"

// MsgUnrecorded answers a duplicate whose claim never got an outcome recorded.
const MsgUnrecorded = "payment status could not be confirmed, please check your bookings"

const (
	defaultStaleClaimAfter = 2 * time.Minute
	completeTimeout        = 5 * time.Second
)

// Verifier is the backend's payment-callback endpoint.
type Verifier interface {
	PaymentCallback(ctx context.Context, params backend.CallbackParams) (*backend.CallbackResult, error)
}

type Config struct {
	// SafeView is where every non-success outcome navigates.
	SafeView    string
	SuccessView string
	// StaleClaimAfter is how long a claim may stay unresolved before
	// duplicates stop reporting it as being verified.
	StaleClaimAfter time.Duration
	Logger          zerolog.Logger
}

// Resolver turns a gateway return trip into a terminal Outcome, at most once
// per set of callback parameters.
type Resolver struct {
	verifier Verifier
	repo     Repository
	safe     string
	success  string
	staleAge time.Duration
	log      zerolog.Logger
	group    singleflight.Group
	now      func() time.Time
}

func NewResolver(verifier Verifier, repo Repository, cfg Config) *Resolver {
	if cfg.SafeView == "" {
		cfg.SafeView = "/"
	}
	if cfg.SuccessView == "" {
		cfg.SuccessView = cfg.SafeView
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = defaultStaleClaimAfter
	}
	return &Resolver{
		verifier: verifier,
		repo:     repo,
		safe:     cfg.SafeView,
		success:  cfg.SuccessView,
		staleAge: cfg.StaleClaimAfter,
		log:      cfg.Logger.With().Str("component", "payment.resolver").Logger(),
		now:      time.Now,
	}
}

// Resolve returns the outcome for q. The bool is true only for the call that
// performed the resolution; that call alone drives p. Duplicates, concurrent
// or later, get the recorded outcome and leave p alone.
func (r *Resolver) Resolve(ctx context.Context, q CallbackQuery, p Presenter) (Outcome, bool) {
	key := q.Key()
	performed := false

	v, _, _ := r.group.Do(key, func() (any, error) {
		out, fresh := r.resolveOnce(context.WithoutCancel(ctx), key, q)
		if fresh {
			performed = true
			p.Notify(out.State, out.Message)
			p.Navigate(out.Target)
		}
		return out, nil
	})
	return v.(Outcome), performed
}

func (r *Resolver) resolveOnce(ctx context.Context, key string, q CallbackQuery) (Outcome, bool) {
	err := r.repo.Claim(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyClaimed):
		return r.replay(ctx, key), false
	case err != nil:
		r.log.Error().Err(err).Msg("failed to claim payment callback")
		return Outcome{State: StateError, Message: MsgFailed, Target: r.safe}, true
	}

	out := r.evaluate(ctx, q)
	r.record(ctx, key, out)
	return out, true
}

// record stores out against the claim, retrying once. A claim that still
// cannot be completed stays unresolved and is reported by replay once stale.
func (r *Resolver) record(ctx context.Context, key string, out Outcome) {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, completeTimeout)
		err = r.repo.Complete(cctx, key, out)
		cancel()
		if err == nil {
			return
		}
		r.log.Warn().Err(err).Int("attempt", attempt).Str("state", string(out.State)).Msg("failed to record payment outcome")
	}
	r.log.Error().
		Err(err).
		Str("callback_key", key).
		Str("state", string(out.State)).
		Msg("payment outcome not recorded, claim left unresolved")
}

func (r *Resolver) replay(ctx context.Context, key string) Outcome {
	rec, err := r.repo.Get(ctx, key)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to read payment outcome")
		return Outcome{State: StateError, Message: MsgFailed, Target: r.safe}
	}
	if rec.Outcome.State != StateUnresolved {
		return rec.Outcome
	}
	if age := r.now().Sub(rec.ClaimedAt); age >= r.staleAge {
		r.log.Warn().
			Str("callback_key", key).
			Dur("age", age).
			Msg("payment claim never resolved")
		return Outcome{State: StateError, Message: MsgUnrecorded, Target: r.safe}
	}
	return Outcome{State: StateUnresolved, Message: MsgVerifying, Target: r.safe}
}

func (r *Resolver) evaluate(ctx context.Context, q CallbackQuery) Outcome {
	if q.Message != "" {
		r.log.Info().Str("gateway_message", q.Message).Msg("payment cancelled at gateway")
		return Outcome{State: StateCancelled, Message: MsgCancelled, Target: r.safe}
	}

	if q.Pidx == "" || q.PurchaseOrderID == "" {
		return Outcome{State: StateIncomplete, Message: MsgIncomplete, Target: r.safe}
	}

	res, err := r.verifier.PaymentCallback(ctx, q.params())
	if err != nil {
		msg := backend.Message(err)
		if msg == "" {
			msg = MsgFailed
		}
		r.log.Warn().Err(err).Str("pidx", q.Pidx).Msg("payment callback failed")
		return Outcome{State: StateError, Message: msg, Target: r.safe}
	}

	if res.Status == backend.PaymentSuccess {
		msg := res.Message
		if msg == "" {
			msg = MsgSuccess
		}
		return Outcome{State: StateSuccess, Message: msg, Target: r.success}
	}

	msg := res.Message
	if msg == "" {
		msg = MsgFailed
	}
	r.log.Warn().Str("status", res.Status).Str("pidx", q.Pidx).Msg("payment not confirmed")
	return Outcome{State: StateError, Message: msg, Target: r.safe}
}
