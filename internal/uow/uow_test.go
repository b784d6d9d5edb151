package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	postgresrepo "github.com/kirinyoku/tix-saga/internal/repository/postgres"
	"github.com/kirinyoku/tix-saga/internal/uow"
)

type fakeRunner struct {
	commitErr error
}

func (f fakeRunner) RunTx(ctx context.Context, _ *pgx.TxOptions, fn func(ctx context.Context, tx postgresrepo.DB) error) error {
	if err := fn(ctx, nil); err != nil {
		return err
	}
	return f.commitErr
}

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	var order []string

	err := uow.NewUoW(fakeRunner{}).Do(context.Background(), func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		after(func(context.Context) { order = append(order, "hook") })
		order = append(order, "body")
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"body", "hook"}, order)
}

func TestDo_DropsHooksOnFailure(t *testing.T) {
	ran := false
	hook := func(context.Context) { ran = true }

	bodyErr := errors.New("body failed")
	err := uow.NewUoW(fakeRunner{}).Do(context.Background(), func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		after(hook)
		return bodyErr
	})
	assert.ErrorIs(t, err, bodyErr)
	assert.False(t, ran)

	commitErr := errors.New("commit failed")
	err = uow.NewUoW(fakeRunner{commitErr: commitErr}).Do(context.Background(), func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		after(hook)
		return nil
	})
	assert.ErrorIs(t, err, commitErr)
	assert.False(t, ran)
}
