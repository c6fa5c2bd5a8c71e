package replication

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/remerr"
)

// reconnect backoff: doubling from baseDelay up to maxDelay, the same
// shape pkg/worker uses for its embedding-task retries.
const (
	baseDelay = 500 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// Client is the client side of one peer connection: it subscribes to a
// remote Server for a set of tenants, applies the resulting catch-up and
// live-tail entries, and persists a durable checkpoint after each apply so
// a reconnect resumes from where it left off (spec.md §4.8).
type Client struct {
	rpc       ReplicationClient
	kv        *kv.Store
	applier   *Applier
	peerID    string
	authToken string
}

func NewClient(cc grpc.ClientConnInterface, store *kv.Store, peerID, authToken string) *Client {
	return &Client{
		rpc:       NewReplicationClient(cc),
		kv:        store,
		applier:   NewApplier(store, peerID),
		peerID:    peerID,
		authToken: authToken,
	}
}

// Run subscribes to tenant and reconnects with exponential backoff until
// ctx is canceled, the way an intermittently-connected edge device would
// (spec.md §4.8: "only timeouts and backoff policies differ").
func (c *Client) Run(ctx context.Context, tenant string) {
	delay := baseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.Sync(ctx, tenant)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.WithComponent("replication").Warn().Err(err).Str("tenant", tenant).Msg("sync stream ended, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Sync runs one subscribe-catch-up-live-tail session. It returns nil only
// if the stream ends because ctx was canceled; any other termination
// (checksum failure, sequence gap, peer error, transport error) is
// returned so Run can reconnect from the last persisted checkpoint.
func (c *Client) Sync(ctx context.Context, tenant string) error {
	watermark, err := c.checkpoint(tenant)
	if err != nil {
		return err
	}

	stream, err := c.rpc.StreamSync(ctx)
	if err != nil {
		return err
	}
	if err := stream.Send(&StreamSyncRequest{Kind: ReqSubscribe, Subscribe: &SubscribeRequest{
		Tenant: tenant, DeviceID: c.peerID, Watermark: watermark, AuthToken: c.authToken,
	}}); err != nil {
		return err
	}
	c.applier.ResetWatermark(tenant, watermark)

	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch resp.Kind {
		case RespConnected:
			// informational only; catch-up/live-tail entries follow regardless.
		case RespError:
			if resp.Error == nil {
				return fmt.Errorf("replication: peer sent empty error response")
			}
			return fmt.Errorf("replication: peer error %s: %s", resp.Error.Code, resp.Error.Message)
		case RespHistoricalBatch:
			if resp.HistoricalBatch == nil {
				continue
			}
			for i := range resp.HistoricalBatch.Ops {
				if err := c.applyAndAck(tenant, &resp.HistoricalBatch.Ops[i], stream); err != nil {
					return err
				}
			}
		case RespOperation:
			if resp.Operation == nil {
				continue
			}
			if err := c.applyAndAck(tenant, resp.Operation, stream); err != nil {
				return err
			}
		}
	}
}

func (c *Client) applyAndAck(tenant string, op *Operation, stream Replication_StreamSyncClient) error {
	if err := c.applier.Apply(op); err != nil {
		metrics.ReplicationGapsTotal.WithLabelValues(tenant, c.peerID).Inc()
		return err
	}
	if err := c.saveCheckpoint(tenant, op.Seq); err != nil {
		return err
	}
	return stream.Send(&StreamSyncRequest{Kind: ReqAck, Ack: &AckRequest{Seq: op.Seq}})
}

// checkpoint reads the durably persisted watermark for tenant, 0 if this
// peer has never synced it before.
func (c *Client) checkpoint(tenant string) (uint64, error) {
	v, err := c.kv.Get(tenant, kv.BucketWal, codec.PeerCheckpointKey(tenant, c.peerID))
	if errors.Is(err, remerr.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("replication: malformed checkpoint for tenant %s peer %s", tenant, c.peerID)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (c *Client) saveCheckpoint(tenant string, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return c.kv.PutOne(tenant, kv.BucketWal, codec.PeerCheckpointKey(tenant, c.peerID), buf[:])
}
