// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package qos implements the QoS policy model and the Requested/Offered
// (RxO) matcher (spec.md §4.F): a Qos is a map from policy id to tagged
// policy value, with fixed per-policy mutability and a match() entry point
// endpoint discovery calls.
package qos

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// PolicyID identifies one QoS policy, stable across the process (used as
// both the Qos map key and the incompatible_policy_id match reports).
type PolicyID uint32

const (
	Durability PolicyID = iota
	Reliability
	LatencyBudget
	Deadline
	TimeBasedFilter
	Ownership
	OwnershipStrength
	DestinationOrder
	Lifespan
	TransportPriority
	History
	Liveliness
	ResourceLimits
	Presentation
	Partition
	IgnoreLocal
	WriterBatching
	WriterDataLifecycle
	ReaderDataLifecycle
	DurabilityService
	EntityName
)

func (p PolicyID) String() string {
	names := [...]string{
		"DURABILITY", "RELIABILITY", "LATENCY_BUDGET", "DEADLINE", "TIME_BASED_FILTER",
		"OWNERSHIP", "OWNERSHIP_STRENGTH", "DESTINATION_ORDER", "LIFESPAN", "TRANSPORT_PRIORITY",
		"HISTORY", "LIVELINESS", "RESOURCE_LIMITS", "PRESENTATION", "PARTITION",
		"IGNORELOCAL", "WRITER_BATCHING", "WRITER_DATA_LIFECYCLE", "READER_DATA_LIFECYCLE",
		"DURABILITY_SERVICE", "ENTITY_NAME",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "UNKNOWN_QOS_POLICY_ID"
}

// Mutability classifies whether set_qos may change a policy after an
// entity is enabled (spec.md §4.F).
type Mutability uint8

const (
	Immutable Mutability = iota
	Mutable
	MutableInSpecNotImpl
)

// mutabilityOf is the fixed per-policy classification spec.md §4.F names,
// taken from Cyclone's own qostable[] (qos_set_match.c): TIME_BASED_FILTER,
// OWNERSHIP_STRENGTH, LIFESPAN, TRANSPORT_PRIORITY, WRITER_DATA_LIFECYCLE,
// and READER_DATA_LIFECYCLE are the only policies actually mutable
// post-enable; LATENCY_BUDGET, DEADLINE, and PARTITION are mutable in the
// DDS spec but unimplemented in Cyclone (MutableInSpecNotImpl); everything
// else, including WRITER_BATCHING and ENTITY_NAME, is immutable.
var mutabilityOf = map[PolicyID]Mutability{
	Durability:          Immutable,
	Reliability:         Immutable,
	LatencyBudget:       MutableInSpecNotImpl,
	Deadline:            MutableInSpecNotImpl,
	TimeBasedFilter:     Mutable,
	Ownership:           Immutable,
	OwnershipStrength:   Mutable,
	DestinationOrder:    Immutable,
	Lifespan:            Mutable,
	TransportPriority:   Mutable,
	History:             Immutable,
	Liveliness:          Immutable,
	ResourceLimits:      Immutable,
	Presentation:        Immutable,
	Partition:           MutableInSpecNotImpl,
	IgnoreLocal:         Immutable,
	WriterBatching:      Immutable,
	WriterDataLifecycle: Mutable,
	ReaderDataLifecycle: Mutable,
	DurabilityService:   Immutable,
	EntityName:          Immutable,
}

// DurabilityKind, ReliabilityKind, ... are the finite-lattice enums the RxO
// rules compare by ordinal (spec.md §4.F "reader-kind ≤ writer-kind").
type DurabilityKind uint8

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

type ReliabilityKind uint8

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

type OwnershipKind uint8

const (
	Shared OwnershipKind = iota
	Exclusive
)

type DestinationOrderKind uint8

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

type HistoryKind uint8

const (
	KeepLast HistoryKind = iota
	KeepAll
)

type LivelinessKind uint8

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

type PresentationScope uint8

const (
	Instance PresentationScope = iota
	Topic
	Group
)

type IgnoreLocalKind uint8

const (
	IgnoreNone IgnoreLocalKind = iota
	IgnoreParticipant
	IgnoreProcess
)

const Unlimited = -1

// Value is the tagged union spec.md §4.F describes for one policy's stored
// value. Only the fields relevant to the policy key it's stored under are
// meaningful — table-driven over PolicyID rather than twenty Go types, to
// match the way internal/descriptor keeps one Instruction shape for every
// op kind.
type Value struct {
	DurabilityKind       DurabilityKind
	ReliabilityKind      ReliabilityKind
	MaxBlockingTime      time.Duration
	Duration             time.Duration
	OwnershipKind        OwnershipKind
	OwnershipStrength    int32
	DestinationOrderKind DestinationOrderKind
	TransportPriority    int32
	HistoryKind          HistoryKind
	HistoryDepth         int32
	LivelinessKind       LivelinessKind
	LeaseDuration        time.Duration
	MaxSamples           int32
	MaxInstances         int32
	MaxSamplesPerInstance int32
	PresentationScope    PresentationScope
	Coherent             bool
	Ordered              bool
	PartitionNames       []string
	IgnoreLocalKind      IgnoreLocalKind
	Bool                 bool
	ServiceCleanupDelay  time.Duration
	ServiceHistoryKind   HistoryKind
	ServiceHistoryDepth  int32
	ServiceResourceLimits [3]int32
	ReaderDataLifecycleNoWriters time.Duration
	ReaderDataLifecycleDisposed  time.Duration
	String               string
}

// Qos is a map from policy id to its stored value, guarded by an owning
// entity's lock (spec.md §5: "a per-entity lock and swaps the policy table
// atomically; there is no global QoS lock").
type Qos map[PolicyID]Value

// Clone returns a shallow copy safe to store as a new atomic snapshot.
func (q Qos) Clone() Qos {
	out := make(Qos, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

var (
	ErrImmutablePolicy = errors.New("qos: immutable policy")
	ErrUnsupported     = errors.New("qos: policy change not implemented")
	ErrInvalidValue    = errors.New("qos: invalid policy value")
)

// Entity owns one Qos snapshot behind a lock, the unit set_qos/get_qos
// operate on (spec.md §5).
type Entity struct {
	mu  sync.RWMutex
	qos Qos
}

func NewEntity(initial Qos) *Entity {
	return &Entity{qos: initial.Clone()}
}

// Get returns a snapshot of the current Qos. Safe to call concurrently with
// SetQos from another goroutine (spec.md §5: "read-side matching sees a
// snapshot").
func (e *Entity) Get() Qos {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.qos.Clone()
}

// SetQos validates new, checks every differing policy's mutability, and
// atomically swaps the stored table (spec.md §4.F Mutation).
func (e *Entity) SetQos(new Qos) error {
	if err := Validate(new); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, v := range new {
		old, existed := e.qos[id]
		if existed && valueEqual(id, old, v) {
			continue
		}
		switch mutabilityOf[id] {
		case Immutable:
			if existed {
				return ErrImmutablePolicy
			}
		case MutableInSpecNotImpl:
			return ErrUnsupported
		}
	}
	e.qos = new.Clone()
	return nil
}

// valueEqual compares the fields relevant to id only: Value is not a
// comparable type (it carries a slice for PARTITION), so equality must be
// taken policy-by-policy rather than as a whole-struct comparison.
func valueEqual(id PolicyID, a, b Value) bool {
	switch id {
	case Durability:
		return a.DurabilityKind == b.DurabilityKind
	case Reliability:
		return a.ReliabilityKind == b.ReliabilityKind && a.MaxBlockingTime == b.MaxBlockingTime
	case LatencyBudget, Lifespan:
		return a.Duration == b.Duration
	case Deadline:
		return a.Duration == b.Duration
	case TimeBasedFilter:
		return a.Duration == b.Duration
	case Ownership:
		return a.OwnershipKind == b.OwnershipKind
	case OwnershipStrength:
		return a.OwnershipStrength == b.OwnershipStrength
	case DestinationOrder:
		return a.DestinationOrderKind == b.DestinationOrderKind
	case TransportPriority:
		return a.TransportPriority == b.TransportPriority
	case History:
		return a.HistoryKind == b.HistoryKind && a.HistoryDepth == b.HistoryDepth
	case Liveliness:
		return a.LivelinessKind == b.LivelinessKind && a.LeaseDuration == b.LeaseDuration
	case ResourceLimits:
		return a.MaxSamples == b.MaxSamples && a.MaxInstances == b.MaxInstances && a.MaxSamplesPerInstance == b.MaxSamplesPerInstance
	case Presentation:
		return a.PresentationScope == b.PresentationScope && a.Coherent == b.Coherent && a.Ordered == b.Ordered
	case Partition:
		return stringSlicesEqual(a.PartitionNames, b.PartitionNames)
	case IgnoreLocal:
		return a.IgnoreLocalKind == b.IgnoreLocalKind
	case WriterBatching, WriterDataLifecycle:
		return a.Bool == b.Bool
	case ReaderDataLifecycle:
		return a.ReaderDataLifecycleNoWriters == b.ReaderDataLifecycleNoWriters && a.ReaderDataLifecycleDisposed == b.ReaderDataLifecycleDisposed
	case DurabilityService:
		return a.ServiceCleanupDelay == b.ServiceCleanupDelay && a.ServiceHistoryKind == b.ServiceHistoryKind &&
			a.ServiceHistoryDepth == b.ServiceHistoryDepth && a.ServiceResourceLimits == b.ServiceResourceLimits
	case EntityName:
		return a.String == b.String
	default:
		return false
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Validate applies the "separate check" spec.md §4.F names: negative
// durations where non-negative is required, HISTORY.depth = 0 for
// KEEP_LAST, DEADLINE below TIME_BASED_FILTER, and RESOURCE_LIMITS that do
// not exceed HISTORY.depth. Enum-valued fields are not range-checked.
func Validate(q Qos) error {
	if h, ok := q[History]; ok {
		if h.HistoryKind == KeepLast && h.HistoryDepth <= 0 {
			return fmt.Errorf("%w: HISTORY.depth must be > 0 for KEEP_LAST", ErrInvalidValue)
		}
	}
	if d, ok := q[Deadline]; ok && d.Duration < 0 {
		return fmt.Errorf("%w: DEADLINE duration must be non-negative", ErrInvalidValue)
	}
	if lb, ok := q[LatencyBudget]; ok && lb.Duration < 0 {
		return fmt.Errorf("%w: LATENCY_BUDGET duration must be non-negative", ErrInvalidValue)
	}
	if d, hasDeadline := q[Deadline]; hasDeadline {
		if tbf, hasTBF := q[TimeBasedFilter]; hasTBF && d.Duration < tbf.Duration {
			return fmt.Errorf("%w: DEADLINE must be >= TIME_BASED_FILTER", ErrInvalidValue)
		}
	}
	if l, ok := q[Liveliness]; ok && l.LeaseDuration < 0 {
		return fmt.Errorf("%w: LIVELINESS lease_duration must be non-negative", ErrInvalidValue)
	}
	if rl, ok := q[ResourceLimits]; ok {
		if h, hasHist := q[History]; hasHist && h.HistoryKind == KeepLast {
			for _, v := range []int32{rl.MaxSamples, rl.MaxSamplesPerInstance} {
				if v != Unlimited && v <= h.HistoryDepth {
					return fmt.Errorf("%w: RESOURCE_LIMITS must be UNLIMITED or exceed HISTORY.depth", ErrInvalidValue)
				}
			}
		}
	}
	return nil
}

// Result is match's verdict: matched, or the id of the first policy that
// failed the RxO rule (spec.md §4.F Algorithm).
type Result struct {
	Matched             bool
	IncompatiblePolicyID PolicyID
	HasPolicyID          bool
}

// Match implements match(reader_qos, writer_qos): the first RxO rule that
// fails decides the result (spec.md §4.F point 1). Partition and
// IGNORELOCAL are checked too but never carry a reported policy id (point
// 2).
func Match(reader, writer Qos) Result {
	type rule struct {
		id PolicyID
		ok func() bool
	}
	rules := []rule{
		{Durability, func() bool { return reader[Durability].DurabilityKind <= writer[Durability].DurabilityKind }},
		{Reliability, func() bool { return reader[Reliability].ReliabilityKind <= writer[Reliability].ReliabilityKind }},
		{LatencyBudget, func() bool { return reader[LatencyBudget].Duration >= writer[LatencyBudget].Duration }},
		{Deadline, func() bool { return reader[Deadline].Duration >= writer[Deadline].Duration }},
		{Ownership, func() bool { return reader[Ownership].OwnershipKind == writer[Ownership].OwnershipKind }},
		{DestinationOrder, func() bool {
			return reader[DestinationOrder].DestinationOrderKind <= writer[DestinationOrder].DestinationOrderKind
		}},
		{Liveliness, func() bool {
			r, w := reader[Liveliness], writer[Liveliness]
			return r.LivelinessKind <= w.LivelinessKind && r.LeaseDuration >= w.LeaseDuration
		}},
		{Presentation, func() bool {
			r, w := reader[Presentation], writer[Presentation]
			return r.PresentationScope <= w.PresentationScope && boolLE(r.Coherent, w.Coherent) && boolLE(r.Ordered, w.Ordered)
		}},
	}
	for _, r := range rules {
		if !r.ok() {
			return Result{Matched: false, IncompatiblePolicyID: r.id, HasPolicyID: true}
		}
	}
	if !partitionMatch(reader[Partition].PartitionNames, writer[Partition].PartitionNames) {
		return Result{Matched: false}
	}
	if !ignoreLocalMatch(reader[IgnoreLocal].IgnoreLocalKind) {
		return Result{Matched: false}
	}
	return Result{Matched: true}
}

func boolLE(reader, writer bool) bool {
	// "subscriber-field ≤ publisher-field": false(0) ≤ true(1), true ≤ true
	// only; reader demanding true when writer offers false fails.
	return !reader || writer
}

// partitionMatch reports whether any reader name glob-matches any writer
// name (spec.md §4.F, filepath.Match-style globs).
func partitionMatch(readerNames, writerNames []string) bool {
	if len(readerNames) == 0 && len(writerNames) == 0 {
		return true
	}
	for _, r := range readerNames {
		for _, w := range writerNames {
			if r == w {
				return true
			}
			if ok, _ := filepath.Match(r, w); ok {
				return true
			}
			if ok, _ := filepath.Match(w, r); ok {
				return true
			}
		}
	}
	return false
}

// ignoreLocalMatch applies the IGNORELOCAL special-case rule (spec.md
// §4.F): this is evaluated by the caller against participant/process
// co-location, which this package has no visibility into, so NONE is the
// only kind this pure function can resolve unconditionally.
func ignoreLocalMatch(kind IgnoreLocalKind) bool {
	return kind == IgnoreNone
}
