package replication

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/events"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/metrics"
)

const historicalBatchSize = 100

// AuthVerifier checks a Subscribe request's auth_token, the tenant-scoping
// check layered above mTLS transport security (spec.md §6).
type AuthVerifier interface {
	Verify(tenant, deviceID, token string) bool
}

// Server implements the server side of StreamSync: catch-up from the
// client's watermark followed by a live tail of newly appended WAL entries
// (spec.md §4.8).
type Server struct {
	UnimplementedReplicationServer
	kv      *kv.Store
	broker  *events.Broker
	auth    AuthVerifier
	applier *Applier
}

func NewServer(store *kv.Store, broker *events.Broker, auth AuthVerifier, nodeID string) *Server {
	return &Server{kv: store, broker: broker, auth: auth, applier: NewApplier(store, nodeID)}
}

func (s *Server) StreamSync(stream Replication_StreamSyncServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	if req.Kind != ReqSubscribe || req.Subscribe == nil {
		return status.Error(codes.InvalidArgument, "first message must be Subscribe")
	}
	sub := req.Subscribe
	if s.auth != nil && !s.auth.Verify(sub.Tenant, sub.DeviceID, sub.AuthToken) {
		return status.Errorf(codes.Unauthenticated, "invalid auth_token for tenant %s", sub.Tenant)
	}
	current, err := s.kv.CurrentSeq(sub.Tenant)
	if err != nil {
		return err
	}
	if err := stream.Send(&StreamSyncResponse{Kind: RespConnected, Connected: &Connected{CurrentSeq: current}}); err != nil {
		return err
	}

	lastSent, err := s.sendHistorical(stream, sub.Tenant, sub.DeviceID, sub.Watermark)
	if err != nil {
		return err
	}
	metrics.ReplicationLag.WithLabelValues(sub.Tenant, sub.DeviceID).Set(0)

	errCh := make(chan error, 1)
	go s.recvLoop(stream, sub.DeviceID, errCh)

	return s.liveTail(stream, sub.Tenant, sub.DeviceID, lastSent, errCh)
}

// sendHistorical streams every WAL entry with seq > after in batches of up
// to historicalBatchSize, returning the last seq sent.
func (s *Server) sendHistorical(stream Replication_StreamSyncServer, tenant, peer string, after uint64) (uint64, error) {
	last := after
	var batch []Operation
	var bytesSent int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp := &StreamSyncResponse{Kind: RespHistoricalBatch, HistoricalBatch: &HistoricalBatch{
			Ops: batch, BatchStart: batch[0].Seq, BatchEnd: batch[len(batch)-1].Seq,
		}}
		batch = nil
		return stream.Send(resp)
	}
	err := s.kv.IterWAL(tenant, after+1, func(seq uint64, entryBytes []byte) error {
		entry, err := codec.DecodeWALEntry(entryBytes)
		if err != nil {
			return err
		}
		batch = append(batch, *operationFromEntry(entry))
		bytesSent += len(entryBytes)
		last = seq
		if len(batch) >= historicalBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	metrics.ReplicationBytesTotal.WithLabelValues(tenant, peer, "out").Add(float64(bytesSent))
	return last, nil
}

// liveTail blocks on wal.appended events for tenant, re-running
// sendHistorical for whatever landed since after, until the client
// disconnects or the stream's context ends.
func (s *Server) liveTail(stream Replication_StreamSyncServer, tenant, peer string, after uint64, errCh chan error) error {
	if s.broker == nil {
		<-stream.Context().Done()
		return stream.Context().Err()
	}
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if ev.Type != events.EventWalAppended || ev.Tenant != tenant {
				continue
			}
			last, err := s.sendHistorical(stream, tenant, peer, after)
			if err != nil {
				return err
			}
			after = last
		case err := <-errCh:
			return err
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

// recvLoop drains Ack/PushOps messages from the client so the receive
// queue never blocks; a Recv error (including a normal client-initiated
// close) is forwarded to errCh to unblock liveTail.
func (s *Server) recvLoop(stream Replication_StreamSyncServer, peer string, errCh chan error) {
	for {
		req, err := stream.Recv()
		if err != nil {
			errCh <- err
			return
		}
		switch req.Kind {
		case ReqAck:
			// informational; the client's durable checkpoint is authoritative.
		case ReqPushOps:
			if req.PushOps == nil {
				continue
			}
			for i := range req.PushOps.Batch {
				op := &req.PushOps.Batch[i]
				if err := s.applier.Apply(op); err != nil {
					metrics.ReplicationGapsTotal.WithLabelValues(op.TenantID, peer).Inc()
					log.WithComponent("replication").Warn().Err(err).Msg("failed to apply pushed op")
				}
			}
		}
	}
}
