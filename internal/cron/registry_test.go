package cron

import (
	"context"
	"reflect"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	etl := &stubJob{name: "product-sales-metrics"}
	vacuum := &stubJob{name: "vacuum"}
	registry := NewRegistry(etl, nil, vacuum)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != etl || jobs[1] != vacuum {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	if got := registry.Names(); !reflect.DeepEqual(got, []string{"product-sales-metrics", "vacuum"}) {
		t.Fatalf("unexpected names %v", got)
	}

	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	var registry Registry
	if !registry.Register(&stubJob{name: "etl"}) {
		t.Fatal("first registration should be accepted")
	}
	if registry.Register(&stubJob{name: "etl"}) {
		t.Fatal("duplicate name should be rejected")
	}
	if registry.Register(nil) {
		t.Fatal("nil job should be rejected")
	}
	if n := len(registry.Jobs()); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
}
