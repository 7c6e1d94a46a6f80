package planner

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Planner is the walker's path source.
type Planner interface {
	HasNext(ctx context.Context) (bool, error)
	GetNext(ctx context.Context) (Step, error)
	// GetData and SetData expose the generator's model context. Offline
	// planners return an empty map and ignore writes.
	GetData(ctx context.Context) (map[string]string, error)
	SetData(ctx context.Context, key string, value any) error
	Restart(ctx context.Context) error
	// Fail marks the last step as failed in the path statistics.
	Fail(ctx context.Context, message string) error
	GetStatistics(ctx context.Context) (Statistics, error)
	// Close releases the path source; owned generator processes are killed.
	// Idempotent.
	Close() error
}

// Client is the generator REST surface the online planner delegates to.
// Implemented by the graphwalker client.
type Client interface {
	HasNext(ctx context.Context) (bool, error)
	GetNext(ctx context.Context) (Step, error)
	GetData(ctx context.Context) (map[string]string, error)
	SetData(ctx context.Context, key string, value any) error
	Restart(ctx context.Context) error
	Fail(ctx context.Context, message string) error
	GetStatistics(ctx context.Context) (Statistics, error)
}

// Online plans a path one step at a time through the generator REST service.
// When it owns the service process it kills it on Close.
type Online struct {
	client  Client
	service io.Closer

	closeOnce sync.Once
	closeErr  error
}

// NewOnline wraps a generator client. A non-nil service transfers ownership
// of the generator process to the planner.
func NewOnline(client Client, service io.Closer) *Online {
	return &Online{client: client, service: service}
}

func (p *Online) HasNext(ctx context.Context) (bool, error) { return p.client.HasNext(ctx) }
func (p *Online) GetNext(ctx context.Context) (Step, error) { return p.client.GetNext(ctx) }

func (p *Online) GetData(ctx context.Context) (map[string]string, error) {
	return p.client.GetData(ctx)
}

func (p *Online) SetData(ctx context.Context, key string, value any) error {
	return p.client.SetData(ctx, key, value)
}

func (p *Online) Restart(ctx context.Context) error { return p.client.Restart(ctx) }

func (p *Online) Fail(ctx context.Context, message string) error {
	return p.client.Fail(ctx, message)
}

func (p *Online) GetStatistics(ctx context.Context) (Statistics, error) {
	return p.client.GetStatistics(ctx)
}

func (p *Online) Close() error {
	p.closeOnce.Do(func() {
		if p.service != nil {
			p.closeErr = p.service.Close()
		}
	})
	return p.closeErr
}

// Offline replays a finite recorded path. Data operations are inert and the
// statistics are synthesized from replay progress.
type Offline struct {
	// Log is used to surface ignored SetData calls; defaults to no logging.
	Log zerolog.Logger

	path     []Step
	position int

	failedStep    *Step
	failedMessage string
	lastStep      *Step
}

// NewOffline builds a planner replaying the given steps in order.
func NewOffline(steps []Step) *Offline {
	return &Offline{Log: zerolog.Nop(), path: append([]Step(nil), steps...)}
}

// Path returns the original step sequence.
func (p *Offline) Path() []Step { return append([]Step(nil), p.path...) }

func (p *Offline) HasNext(ctx context.Context) (bool, error) {
	return p.position < len(p.path), nil
}

func (p *Offline) GetNext(ctx context.Context) (Step, error) {
	if p.position >= len(p.path) {
		return Step{}, fmt.Errorf("planner: no steps left in path (%d consumed)", p.position)
	}
	step := p.path[p.position]
	p.position++
	p.lastStep = &step
	return step, nil
}

func (p *Offline) GetData(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (p *Offline) SetData(ctx context.Context, key string, value any) error {
	p.Log.Warn().Str("key", key).Msg("set data ignored in offline mode")
	return nil
}

func (p *Offline) Restart(ctx context.Context) error {
	p.position = 0
	p.failedStep = nil
	p.failedMessage = ""
	p.lastStep = nil
	return nil
}

func (p *Offline) Fail(ctx context.Context, message string) error {
	if p.lastStep != nil {
		step := *p.lastStep
		p.failedStep = &step
	}
	p.failedMessage = message
	return nil
}

func (p *Offline) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		"totalNumberOfSteps":          len(p.path),
		"totalCompletedNumberOfSteps": p.position,
	}
	if p.failedStep != nil {
		stats["failedStep"] = *p.failedStep
		stats["failedMessage"] = p.failedMessage
	}
	return stats, nil
}

func (p *Offline) Close() error { return nil }
