package gateway

import (
	"context"
	"sync"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolStatus is the health snapshot exposed on the admin surface.
type PoolStatus struct {
	Ready bool `json:"ready"`
	Total int  `json:"total"`
}

// Pool owns one Connection per active bot account and hands work out
// round-robin across the ready ones.
type Pool struct {
	repo    store.Repository
	cfg     config.GatewayConfig
	handler EventHandler

	mu    sync.Mutex
	conns []*Connection
	idx   int
}

func NewPool(repo store.Repository, cfg config.GatewayConfig, handler EventHandler) *Pool {
	return &Pool{repo: repo, cfg: cfg, handler: handler}
}

// Initialize connects every active account concurrently. Individual
// dial failures are logged and tolerated; the pool is usable with at
// least one live connection.
func (p *Pool) Initialize(ctx context.Context) error {
	accounts, err := p.repo.Accounts().ListActive(ctx)
	if err != nil {
		return err
	}

	p.disconnectAll()

	var (
		g     errgroup.Group
		mu    sync.Mutex
		conns []*Connection
	)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			conn := NewConnection(account, p.cfg, p.handler)
			if err := conn.Connect(ctx); err != nil {
				logger.Warn("Account failed to connect",
					zap.Int64("account_id", account.ID),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.conns = conns
	p.idx = 0
	p.mu.Unlock()

	logger.Info("Gateway pool initialized",
		zap.Int("accounts", len(accounts)),
		zap.Int("connected", len(conns)),
	)

	if len(accounts) > 0 && len(conns) == 0 {
		return domain.ErrNoConnection
	}
	return nil
}

// Next returns the next ready connection round-robin, or
// domain.ErrNoConnection when none is ready.
func (p *Pool) Next() (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ready []*Connection
	for _, conn := range p.conns {
		if conn.Ready() {
			ready = append(ready, conn)
		}
	}
	if len(ready) == 0 {
		return nil, domain.ErrNoConnection
	}

	p.idx = (p.idx + 1) % len(ready)
	return ready[p.idx], nil
}

// ConnectionFor finds the live connection for an account id, used when
// an action must run on the same account as its source task.
func (p *Pool) ConnectionFor(accountID int64) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, conn := range p.conns {
		if conn.Account().ID == accountID && conn.Ready() {
			return conn, nil
		}
	}
	return nil, domain.ErrNoConnection
}

// Reload tears every connection down and reconnects from the current
// account table.
func (p *Pool) Reload(ctx context.Context) error {
	return p.Initialize(ctx)
}

func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	ready := false
	for _, conn := range p.conns {
		if conn.Ready() {
			ready = true
			break
		}
	}
	return PoolStatus{Ready: ready, Total: len(p.conns)}
}

func (p *Pool) Shutdown() {
	p.disconnectAll()
}

func (p *Pool) disconnectAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
