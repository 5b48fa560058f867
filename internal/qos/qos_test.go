package qos

import (
	"testing"
	"time"
)

func TestEntitySetQosRoundTrip(t *testing.T) {
	e := NewEntity(Qos{
		Durability: {DurabilityKind: Volatile},
		History:    {HistoryKind: KeepLast, HistoryDepth: 1},
	})
	got := e.Get()
	if got[Durability].DurabilityKind != Volatile {
		t.Errorf("Get() durability = %v, want Volatile", got[Durability].DurabilityKind)
	}

	err := e.SetQos(Qos{
		Durability:        {DurabilityKind: Volatile},
		History:           {HistoryKind: KeepLast, HistoryDepth: 1},
		TransportPriority: {TransportPriority: 7},
		TimeBasedFilter:   {Duration: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("SetQos() error = %v", err)
	}
	got = e.Get()
	if got[TransportPriority].TransportPriority != 7 {
		t.Errorf("SetQos() did not apply mutable TRANSPORT_PRIORITY change")
	}
	if got[TimeBasedFilter].Duration != 5*time.Second {
		t.Errorf("SetQos() did not apply mutable TIME_BASED_FILTER change")
	}
}

func TestSetQosRejectsEntityNameChange(t *testing.T) {
	e := NewEntity(Qos{EntityName: {String: "writer1"}})
	err := e.SetQos(Qos{EntityName: {String: "renamed"}})
	if err != ErrImmutablePolicy {
		t.Fatalf("SetQos() error = %v, want ErrImmutablePolicy", err)
	}
}

func TestSetQosRejectsLatencyBudgetChange(t *testing.T) {
	e := NewEntity(Qos{LatencyBudget: {Duration: 1 * time.Second}})
	err := e.SetQos(Qos{LatencyBudget: {Duration: 2 * time.Second}})
	if err != ErrUnsupported {
		t.Fatalf("SetQos() error = %v, want ErrUnsupported (mutable in spec, not implemented)", err)
	}
}

func TestSetQosRejectsPartitionChange(t *testing.T) {
	e := NewEntity(Qos{Partition: {PartitionNames: []string{"a"}}})
	err := e.SetQos(Qos{Partition: {PartitionNames: []string{"b"}}})
	if err != ErrUnsupported {
		t.Fatalf("SetQos() error = %v, want ErrUnsupported (mutable in spec, not implemented)", err)
	}
}

func TestSetQosRejectsImmutableChange(t *testing.T) {
	e := NewEntity(Qos{Durability: {DurabilityKind: Volatile}})
	err := e.SetQos(Qos{Durability: {DurabilityKind: Persistent}})
	if err != ErrImmutablePolicy {
		t.Fatalf("SetQos() error = %v, want ErrImmutablePolicy", err)
	}
}

func TestSetQosAllowsSameImmutableValue(t *testing.T) {
	e := NewEntity(Qos{Durability: {DurabilityKind: Volatile}})
	if err := e.SetQos(Qos{Durability: {DurabilityKind: Volatile}}); err != nil {
		t.Fatalf("SetQos() with an unchanged immutable value should succeed, got %v", err)
	}
}

func TestSetQosRejectsWriterBatchingChange(t *testing.T) {
	e := NewEntity(Qos{WriterBatching: {Bool: false}})
	err := e.SetQos(Qos{WriterBatching: {Bool: true}})
	if err != ErrImmutablePolicy {
		t.Fatalf("SetQos() error = %v, want ErrImmutablePolicy", err)
	}
}

func TestValidateHistoryKeepLastRequiresPositiveDepth(t *testing.T) {
	err := Validate(Qos{History: {HistoryKind: KeepLast, HistoryDepth: 0}})
	if err == nil {
		t.Fatal("expected an error for KEEP_LAST with depth 0")
	}
}

func TestValidateDeadlineMustExceedTimeBasedFilter(t *testing.T) {
	err := Validate(Qos{
		Deadline:        {Duration: 1 * time.Second},
		TimeBasedFilter: {Duration: 2 * time.Second},
	})
	if err == nil {
		t.Fatal("expected an error when DEADLINE < TIME_BASED_FILTER")
	}
}

func TestValidateResourceLimitsVsHistoryDepth(t *testing.T) {
	err := Validate(Qos{
		History:        {HistoryKind: KeepLast, HistoryDepth: 10},
		ResourceLimits: {MaxSamples: 5, MaxSamplesPerInstance: 5},
	})
	if err == nil {
		t.Fatal("expected an error when RESOURCE_LIMITS < HISTORY.depth")
	}

	if err := Validate(Qos{
		History:        {HistoryKind: KeepLast, HistoryDepth: 10},
		ResourceLimits: {MaxSamples: Unlimited, MaxSamplesPerInstance: Unlimited},
	}); err != nil {
		t.Errorf("UNLIMITED resource limits should always satisfy the HISTORY check, got %v", err)
	}
}

func TestMatchReliabilityMismatch(t *testing.T) {
	reader := Qos{Reliability: {ReliabilityKind: Reliable}}
	writer := Qos{Reliability: {ReliabilityKind: BestEffort}}
	res := Match(reader, writer)
	if res.Matched {
		t.Fatal("expected reliable reader vs best-effort writer to mismatch")
	}
	if !res.HasPolicyID || res.IncompatiblePolicyID != Reliability {
		t.Errorf("expected IncompatiblePolicyID = RELIABILITY, got %+v", res)
	}
}

func TestMatchDurabilityCompatible(t *testing.T) {
	reader := Qos{Durability: {DurabilityKind: Volatile}}
	writer := Qos{Durability: {DurabilityKind: Persistent}}
	if res := Match(reader, writer); !res.Matched {
		t.Errorf("expected reader requesting less durability than offered to match: %+v", res)
	}
}

func TestMatchLatencyBudget(t *testing.T) {
	reader := Qos{LatencyBudget: {Duration: 10 * time.Millisecond}}
	writer := Qos{LatencyBudget: {Duration: 5 * time.Millisecond}}
	if res := Match(reader, writer); !res.Matched {
		t.Errorf("expected writer offering a tighter budget than requested to match: %+v", res)
	}
	if res := Match(writer, reader); res.Matched {
		t.Errorf("expected writer offering a looser budget than requested to mismatch")
	}
}

func TestMatchPartitionGlob(t *testing.T) {
	reader := Qos{Partition: {PartitionNames: []string{"sensors/*"}}}
	writer := Qos{Partition: {PartitionNames: []string{"sensors/temp"}}}
	if res := Match(reader, writer); !res.Matched {
		t.Errorf("expected glob-matching partitions to match: %+v", res)
	}

	writer2 := Qos{Partition: {PartitionNames: []string{"actuators/temp"}}}
	if res := Match(reader, writer2); res.Matched {
		t.Errorf("expected non-matching partitions to mismatch")
	}
}

func TestMatchEmptyPartitionsMatchByDefault(t *testing.T) {
	if res := Match(Qos{}, Qos{}); !res.Matched {
		t.Errorf("expected empty QoS sets (default partition) to match: %+v", res)
	}
}
