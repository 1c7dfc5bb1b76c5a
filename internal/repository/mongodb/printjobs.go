package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

type jobDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	models.PrintJob `bson:",inline"`
}

func (d jobDocument) model(channel models.Channel) models.PrintJob {
	job := d.PrintJob
	job.ID = d.ID.Hex()
	job.Channel = channel
	return job
}

// CreatePrintJob appends a job to the channel's queue collection.
func (r *MongoDBRepository) CreatePrintJob(ctx context.Context, job models.PrintJob) (models.PrintJob, error) {
	coll, err := r.queue(job.Channel)
	if err != nil {
		return models.PrintJob{}, err
	}

	doc := jobDocument{PrintJob: job.Clone()}

	var stored jobDocument
	if err := insertStamped(ctx, coll, doc, &stored, "createdAt", "updatedAt"); err != nil {
		return models.PrintJob{}, writeErr(fmt.Sprintf("insert %s print job", job.Channel), err)
	}
	return stored.model(job.Channel), nil
}

// LatestPrintJob returns the newest job of the bill on the channel. Ties on
// createdAt are broken by _id, which grows with insertion order.
func (r *MongoDBRepository) LatestPrintJob(ctx context.Context, channel models.Channel, billID string) (*models.PrintJob, error) {
	coll, err := r.queue(channel)
	if err != nil {
		return nil, err
	}

	var doc jobDocument
	err = coll.FindOne(ctx, bson.M{"billId": billID},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest %s job of bill %s: %w", channel, billID, err)
	}

	job := doc.model(channel)
	return &job, nil
}

// UpdatePrintJobStatus sets the status of one job.
func (r *MongoDBRepository) UpdatePrintJobStatus(ctx context.Context, channel models.Channel, jobID string, status models.JobStatus, reason string) error {
	coll, err := r.queue(channel)
	if err != nil {
		return err
	}
	oid, err := parseID(string(channel)+" print job", jobID)
	if err != nil {
		return err
	}

	set := bson.M{"status": status}
	update := bson.M{"$set": set, "$currentDate": bson.M{"updatedAt": bson.M{"$type": "date"}}}
	if reason != "" {
		set["failureReason"] = reason
	} else {
		update["$unset"] = bson.M{"failureReason": ""}
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return writeErr(fmt.Sprintf("update %s print job %s", channel, jobID), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s print job %s: %w", channel, jobID, models.ErrNotFound)
	}
	return nil
}

// FailStalePrintJobs fails every pending job created before the cutoff.
func (r *MongoDBRepository) FailStalePrintJobs(ctx context.Context, channel models.Channel, before time.Time) (int64, error) {
	coll, err := r.queue(channel)
	if err != nil {
		return 0, err
	}

	res, err := coll.UpdateMany(ctx,
		bson.M{"status": models.JobPending, "createdAt": bson.M{"$lt": before.UTC()}},
		bson.M{
			"$set": bson.M{
				"status":        models.JobFailed,
				"failureReason": models.FailureTimeout,
			},
			"$currentDate": bson.M{"updatedAt": bson.M{"$type": "date"}},
		},
	)
	if err != nil {
		return 0, writeErr(fmt.Sprintf("fail stale %s print jobs", channel), err)
	}
	return res.ModifiedCount, nil
}

// WatchLatestPrintJob pushes the latest job of the bill each time any of the
// bill's jobs on the channel changes.
func (r *MongoDBRepository) WatchLatestPrintJob(ctx context.Context, channel models.Channel, billID string, fn func(*models.PrintJob)) (repository.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch %s jobs of bill %s: nil callback", channel, billID)
	}
	coll, err := r.queue(channel)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "fullDocument.billId", Value: billID}}}},
	}

	push := func(ctx context.Context) {
		job, err := r.LatestPrintJob(ctx, channel, billID)
		if err != nil {
			r.logger.Warn("print job refresh failed",
				zap.String("channel", string(channel)),
				zap.String("bill_id", billID),
				zap.Error(err),
			)
			return
		}
		fn(job)
	}

	return r.watch(ctx, coll, pipeline, fmt.Sprintf("jobs:%s:%s", channel, billID), push)
}
