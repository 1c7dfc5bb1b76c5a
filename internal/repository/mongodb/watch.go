package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// reconnectDelay is how long a broken change stream waits before reopening.
const reconnectDelay = 5 * time.Second

// watch opens a change stream and calls push once immediately and once per
// event. A broken stream is reopened after reconnectDelay, and push runs again
// after every reopen so no change is missed while the stream was down.
func (r *MongoDBRepository) watch(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, name string, push func(context.Context)) (repository.CancelFunc, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	// The first stream is opened synchronously so callers learn about an
	// unsupported deployment (no replica set) right away.
	stream, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream %s: %w", name, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	logger := r.logger.With(zap.String("stream", name))

	go func() {
		defer close(done)

		for {
			err := consume(watchCtx, stream, push)
			_ = stream.Close(context.Background())

			if watchCtx.Err() != nil {
				return
			}
			logger.Warn("change stream interrupted, reopening", zap.Error(err), zap.Duration("delay", reconnectDelay))

			select {
			case <-watchCtx.Done():
				return
			case <-time.After(reconnectDelay):
			}

			stream, err = coll.Watch(watchCtx, pipeline, opts)
			for err != nil {
				if watchCtx.Err() != nil {
					return
				}
				logger.Error("failed to reopen change stream", zap.Error(err))
				select {
				case <-watchCtx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				stream, err = coll.Watch(watchCtx, pipeline, opts)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
		<-done
	}, nil
}

func consume(ctx context.Context, stream *mongo.ChangeStream, push func(context.Context)) error {
	push(ctx)
	for stream.Next(ctx) {
		push(ctx)
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("change stream closed")
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
