package halo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/notargets/porosity/field"
)

// ErrCollectiveTimeout is returned when a neighbour did not take part in a
// collective exchange within the world timeout
var ErrCollectiveTimeout = errors.New("collective exchange timed out")

// DefaultTimeout bounds every collective call of a World
const DefaultTimeout = 10 * time.Second

// message carries the values of a set of cells, identified by global id
type message struct {
	ids    []int
	values []float64
}

// World connects in-process ranks with one buffered channel per directed
// pair of neighbours. Every collective call sends exactly one message to
// each neighbour and then receives exactly one from each, in ascending
// neighbour order.
type World struct {
	conn    *CellConnector
	timeout time.Duration
	links   [][]chan message // [source][target]
	gather  chan reduction   // every rank to rank 0
	scatter []chan []float64 // rank 0 to every rank
	log     logrus.FieldLogger
}

type reduction struct {
	rank   int
	values []float64
}

type WorldOption func(*World)

func WithTimeout(d time.Duration) WorldOption {
	return func(w *World) { w.timeout = d }
}

func WithLogger(l logrus.FieldLogger) WorldOption {
	return func(w *World) { w.log = l }
}

func NewWorld(conn *CellConnector, opts ...WorldOption) *World {
	if conn == nil {
		panic("halo: nil connector")
	}
	w := &World{
		conn:    conn,
		timeout: DefaultTimeout,
		links:   make([][]chan message, conn.NumPartitions),
		gather:  make(chan reduction, conn.NumPartitions),
		scatter: make([]chan []float64, conn.NumPartitions),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	for p := range w.links {
		w.scatter[p] = make(chan []float64, 1)
		w.links[p] = make([]chan message, conn.NumPartitions)
		for _, q := range conn.Neighbours(p) {
			w.links[p][q] = make(chan message, 1)
		}
	}
	return w
}

func (w *World) Size() int { return w.conn.NumPartitions }

// Rank returns the communicator of rank r. A Rank is used by one goroutine.
func (w *World) Rank(r int) *Rank {
	if r < 0 || r >= w.conn.NumPartitions {
		panic(fmt.Sprintf("halo: rank %d outside world of %d", r, w.conn.NumPartitions))
	}
	return &Rank{world: w, id: r}
}

type Rank struct {
	world *World
	id    int
}

func (r *Rank) ID() int { return r.id }

// CorrectBoundary overwrites the ghost copies of boundary cells with the
// tensors computed by their owners. boundary lists local cells; owned cells
// not in it are not sent. It is collective: every rank of the world must
// call it the same number of times.
func (r *Rank) CorrectBoundary(AU field.TensorField, boundary []int) error {
	if err := r.checkSize(len(AU)); err != nil {
		return err
	}
	in := make(map[int]struct{}, len(boundary))
	for _, c := range boundary {
		in[c] = struct{}{}
	}
	selected := func(c int) bool {
		_, ok := in[c]
		return ok
	}
	return r.exchange(9, selected,
		func(c int, dst []float64) { copy(dst, AU[c][:]) },
		func(c int, src []float64) { copy(AU[c][:], src) })
}

// ExchangeVectors refreshes every ghost copy of a vector field
func (r *Rank) ExchangeVectors(U field.VectorField) error {
	if err := r.checkSize(len(U)); err != nil {
		return err
	}
	return r.exchange(3, func(int) bool { return true },
		func(c int, dst []float64) { copy(dst, U[c][:]) },
		func(c int, src []float64) { copy(U[c][:], src) })
}

// ExchangeScalars refreshes every ghost copy of a scalar field
func (r *Rank) ExchangeScalars(s field.ScalarField) error {
	if err := r.checkSize(len(s)); err != nil {
		return err
	}
	return r.exchange(1, func(int) bool { return true },
		func(c int, dst []float64) { dst[0] = s[c] },
		func(c int, src []float64) { s[c] = src[0] })
}

func (r *Rank) checkSize(n int) error {
	if want := len(r.world.conn.LocalToGlobal[r.id]); n != want {
		return fmt.Errorf("rank %d: field has %d cells, local mesh has %d", r.id, n, want)
	}
	return nil
}

func (r *Rank) exchange(stride int, selected func(int) bool,
	get func(cell int, dst []float64), set func(cell int, src []float64)) error {

	w := r.world
	cc := w.conn
	neighbours := cc.Neighbours(r.id)
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	// Send
	for _, q := range neighbours {
		var msg message
		for _, c := range cc.GetPickIndices(r.id, q) {
			if !selected(c) {
				continue
			}
			msg.ids = append(msg.ids, cc.LocalToGlobal[r.id][c])
			vals := make([]float64, stride)
			get(c, vals)
			msg.values = append(msg.values, vals...)
		}
		select {
		case w.links[r.id][q] <- msg:
		case <-timer.C:
			return fmt.Errorf("rank %d sending to %d: %w", r.id, q, ErrCollectiveTimeout)
		}
	}

	// Receive
	for _, q := range neighbours {
		var msg message
		select {
		case msg = <-w.links[q][r.id]:
		case <-timer.C:
			return fmt.Errorf("rank %d waiting for %d: %w", r.id, q, ErrCollectiveTimeout)
		}
		for i, g := range msg.ids {
			c, ok := cc.GlobalToLocal[r.id][g]
			if !ok || c < cc.NumOwned[r.id] {
				return fmt.Errorf("rank %d received cell %d from %d that is not a ghost here", r.id, g, q)
			}
			set(c, msg.values[i*stride:(i+1)*stride])
		}
		w.log.WithFields(logrus.Fields{"rank": r.id, "from": q, "cells": len(msg.ids)}).Debug("halo exchange")
	}
	return nil
}

// AllReduceSum returns the element-wise sum of values over all ranks. It is
// collective and every rank must pass the same number of values.
func (r *Rank) AllReduceSum(values ...float64) ([]float64, error) {
	return r.allReduce(values, func(a, b float64) float64 { return a + b })
}

// AllReduceMax returns the largest value over all ranks. It is collective.
func (r *Rank) AllReduceMax(value float64) (float64, error) {
	out, err := r.allReduce([]float64{value}, math.Max)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// allReduce combines on rank 0 and broadcasts the result. Rank 0 answers a
// round only after every rank joined it, so rounds never overlap.
func (r *Rank) allReduce(values []float64, op func(a, b float64) float64) ([]float64, error) {
	w := r.world
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	if r.id != 0 {
		select {
		case w.gather <- reduction{rank: r.id, values: append([]float64(nil), values...)}:
		case <-timer.C:
			return nil, fmt.Errorf("rank %d reducing: %w", r.id, ErrCollectiveTimeout)
		}
		select {
		case out := <-w.scatter[r.id]:
			return out, nil
		case <-timer.C:
			return nil, fmt.Errorf("rank %d waiting for reduction: %w", r.id, ErrCollectiveTimeout)
		}
	}

	acc := append([]float64(nil), values...)
	for i := 1; i < w.Size(); i++ {
		select {
		case in := <-w.gather:
			if len(in.values) != len(acc) {
				return nil, fmt.Errorf("rank %d reduced %d values, rank 0 %d", in.rank, len(in.values), len(acc))
			}
			for j, v := range in.values {
				acc[j] = op(acc[j], v)
			}
		case <-timer.C:
			return nil, fmt.Errorf("rank 0 reducing: %w", ErrCollectiveTimeout)
		}
	}
	for q := 1; q < w.Size(); q++ {
		w.scatter[q] <- append([]float64(nil), acc...)
	}
	return acc, nil
}
