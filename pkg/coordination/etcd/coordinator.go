package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"gridlock/pkg/coordination"
)

const (
	electionPrefix = "/gridlock/elections/"
	replicaPrefix  = "/gridlock/replicas/"
)

type EtcdCoordinator struct {
	client *clientv3.Client
}

func NewEtcdCoordinator(endpoints []string) (*EtcdCoordinator, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdCoordinator{client: cli}, nil
}

func (c *EtcdCoordinator) Close() error {
	return c.client.Close()
}

// NewSession creates a lease with the given TTL. The concurrency session
// keeps the lease alive via heartbeats and closes Done when it cannot.
func (c *EtcdCoordinator) NewSession(ctx context.Context, ttl int) (coordination.Session, error) {
	sess, err := concurrency.NewSession(c.client,
		concurrency.WithTTL(ttl),
		concurrency.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create concurrency session: %w", err)
	}
	return &etcdSession{session: sess}, nil
}

// CurrentLeader reads the oldest key under the election prefix, which is the
// current leader's proclamation, without joining the election.
func (c *EtcdCoordinator) CurrentLeader(ctx context.Context, name string) (string, error) {
	resp, err := c.client.Get(ctx, electionPrefix+name, clientv3.WithFirstCreate()...)
	if err != nil {
		return "", fmt.Errorf("failed to read leader key: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

// RegisterReplica puts the replica's presence key under a fresh short lease.
// Callers invoke this on a heartbeat ticker; a replica that stops
// heartbeating disappears when the lease expires.
func (c *EtcdCoordinator) RegisterReplica(ctx context.Context, replicaID, payload string, ttl int) error {
	lease, err := c.client.Grant(ctx, int64(ttl))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	_, err = c.client.Put(ctx, replicaPrefix+replicaID, payload, clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to put replica key: %w", err)
	}
	return nil
}

// ActiveReplicas lists all registered replicas.
func (c *EtcdCoordinator) ActiveReplicas(ctx context.Context) (map[string]string, error) {
	resp, err := c.client.Get(ctx, replicaPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}

	replicas := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), replicaPrefix)
		replicas[id] = string(kv.Value)
	}
	return replicas, nil
}

type etcdSession struct {
	session *concurrency.Session
}

func (s *etcdSession) NewElection(name string) coordination.Election {
	e := concurrency.NewElection(s.session, electionPrefix+name)
	return &etcdElection{election: e}
}

func (s *etcdSession) Done() <-chan struct{} {
	return s.session.Done()
}

func (s *etcdSession) Close() error {
	return s.session.Close()
}

// etcdElection wraps the etcd concurrency.Election struct.
type etcdElection struct {
	election *concurrency.Election
}

func (e *etcdElection) Campaign(ctx context.Context, value string) error {
	return e.election.Campaign(ctx, value)
}

func (e *etcdElection) Resign(ctx context.Context) error {
	return e.election.Resign(ctx)
}

func (e *etcdElection) Leader(ctx context.Context) (string, error) {
	resp, err := e.election.Leader(ctx)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", concurrency.ErrElectionNoLeader
	}
	return string(resp.Kvs[0].Value), nil
}
