package sdr

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Graph is a set of connected blocks that are started and stopped as a
// unit. Blocks can be added and removed while the graph is running,
// without affecting other blocks.
type Graph struct {
	mu      sync.Mutex
	blocks  []Block
	running bool
}

// waiter is implemented by blocks that report worker completion.
type waiter interface {
	Done() <-chan struct{}
	Err() error
}

// NewGraph returns a graph of provided blocks.
func NewGraph(blocks ...Block) *Graph {
	return &Graph{
		blocks: blocks,
	}
}

// Add appends blocks to the graph. If graph is running, blocks are
// started.
func (g *Graph) Add(blocks ...Block) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocks = append(g.blocks, blocks...)
	if g.running {
		for _, b := range blocks {
			b.Start()
		}
	}
}

// Remove stops the block and removes it from the graph. It returns false
// if block doesn't belong to the graph.
func (g *Graph) Remove(b Block) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.blocks {
		if g.blocks[i] == b {
			b.Stop()
			g.blocks = append(g.blocks[:i], g.blocks[i+1:]...)
			return true
		}
	}
	return false
}

// Start starts all blocks, sinks first.
func (g *Graph) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.blocks) - 1; i >= 0; i-- {
		g.blocks[i].Start()
	}
	g.running = true
}

// Stop stops all blocks, sources first.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.blocks {
		b.Stop()
	}
	g.running = false
}

// Blocks returns the blocks of the graph.
func (g *Graph) Blocks() []Block {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Block(nil), g.blocks...)
}

// Wait blocks until workers of all blocks exit or context is done. Errors
// of the workers are merged. Blocks that don't report completion are
// ignored. It must be called after Start.
func (g *Graph) Wait(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	var (
		mu   sync.Mutex
		errs Errors
	)
	for _, b := range g.Blocks() {
		w, ok := b.(waiter)
		if !ok {
			continue
		}
		done := w.Done()
		if done == nil {
			continue
		}
		eg.Go(func() error {
			select {
			case <-done:
				if err := w.Err(); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return errs.Ret()
}
