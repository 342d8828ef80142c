package host

import (
	"context"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/pkg/errors"
)

// Batch groups invocations into a single commit at one height. Each
// operation runs in its own write buffer layered on the batch, so an
// operation that fails leaves the batch as it was.
type Batch struct {
	h   *Host
	ctx context.Context
	tx  *persistence.Overlay
	env types.Env
}

// Batch runs fn and commits every operation it performed in one atomic
// write. If fn returns an error nothing is written.
func (h *Host) Batch(ctx context.Context, fn func(b *Batch) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := h.commit(func(tx *persistence.Overlay, env types.Env, _ *Result) error {
		return fn(&Batch{h: h, ctx: ctx, tx: tx, env: env})
	})
	return err
}

// Height is the height the batch commits at.
func (b *Batch) Height() uint64 {
	return b.env.Height
}

// Mint credits coins to addr.
func (b *Batch) Mint(addr string, coins []types.Coin) error {
	return b.run(func(tx *persistence.Overlay) error {
		return b.h.mint(tx, addr, coins)
	})
}

// Instantiate creates a new instance of codeID within the batch.
func (b *Batch) Instantiate(codeID, sender, label string, funds []types.Coin, msg []byte) (*Result, error) {
	code, ok := b.h.codes[codeID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCode, "code %s", codeID)
	}

	res := b.result()
	err := b.run(func(tx *persistence.Overlay) error {
		return b.h.instantiate(b.ctx, tx, b.env, code, codeID, sender, label, funds, msg, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Execute runs msg against contract within the batch.
func (b *Batch) Execute(contract, sender string, funds []types.Coin, msg []byte) (*Result, error) {
	res := b.result()
	res.Contract = contract
	err := b.run(func(tx *persistence.Overlay) error {
		return b.h.call(b.ctx, tx, b.env, contract, sender, funds, msg, res, 0)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Batch) result() *Result {
	return &Result{Height: b.env.Height, Events: []types.Event{}, Instructions: []types.Instruction{}}
}

func (b *Batch) run(fn func(tx *persistence.Overlay) error) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	op := persistence.NewOverlay(b.tx)
	if err := fn(op); err != nil {
		return err
	}
	return op.Flush(b.tx)
}
