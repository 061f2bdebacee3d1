package service

import (
	"errors"
	"testing"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
)

func testInstance(id uint, port int) model.ProxyInstance {
	return model.ProxyInstance{
		Id:       id,
		Country:  "UK",
		Location: "London",
		Port:     port,
		Status:   model.Stopped,
	}
}

func TestRegistryAddAndList(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(testInstance(1, 1080)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(testInstance(2, 1081)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(list))
	}
	if list[0].Id != 1 || list[1].Id != 2 {
		t.Errorf("creation order not preserved: %v, %v", list[0].Id, list[1].Id)
	}
}

func TestRegistryRejectsDuplicatePort(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testInstance(1, 1080)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := r.Add(testInstance(2, 1080))
	if err == nil {
		t.Fatal("expected duplicate port to be rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "port" {
		t.Errorf("expected port field, got %q", verr.Field)
	}
}

func TestRegistryListReturnsCopies(t *testing.T) {
	r := NewRegistry()
	inst := testInstance(1, 1080)
	inst.Server = []byte(`{"country":"UK"}`)
	if err := r.Add(inst); err != nil {
		t.Fatalf("Add: %v", err)
	}

	list := r.List()
	list[0].Status = model.Running
	list[0].Server[0] = 'X'

	got, ok := r.Get(1)
	if !ok {
		t.Fatal("instance disappeared")
	}
	if got.Status != model.Stopped {
		t.Error("mutating a listed copy changed stored status")
	}
	if got.Server[0] != '{' {
		t.Error("mutating a listed copy changed stored server bytes")
	}
}

func TestRegistrySetStatusClearsStartTime(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testInstance(1, 1080)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.SetStatus(1, model.Running)
	r.SetStartTime(1, time.Now())

	got, _ := r.Get(1)
	if got.StartTime == nil {
		t.Fatal("expected StartTime to be set while running")
	}

	r.SetStatus(1, model.Stopped)
	got, _ = r.Get(1)
	if got.StartTime != nil {
		t.Error("expected StartTime to be cleared when leaving Running")
	}
}

func TestRegistryRemoveReturnsHandle(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testInstance(1, 1080)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h := &ProcessHandle{Pid: 4242}
	r.AttachProcess(1, h)

	got, ok := r.Remove(1)
	if !ok {
		t.Fatal("Remove reported missing instance")
	}
	if got != h {
		t.Error("expected the attached handle back")
	}
	if _, ok := r.Get(1); ok {
		t.Error("instance still present after Remove")
	}
	if r.PortInUse(1080) {
		t.Error("port still marked in use after Remove")
	}
}

func TestRegistryDetachProcess(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testInstance(1, 1080)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h := &ProcessHandle{Pid: 4242}
	r.AttachProcess(1, h)

	if got, ok := r.Process(1); !ok || got != h {
		t.Fatal("Process peek failed")
	}
	if got, ok := r.DetachProcess(1); !ok || got != h {
		t.Fatal("DetachProcess failed")
	}
	if _, ok := r.Process(1); ok {
		t.Error("handle still attached after detach")
	}
}

func TestRegistryTempFiles(t *testing.T) {
	r := NewRegistry()
	r.TrackTempFile("/tmp/a.conf")
	r.TrackTempFile("/tmp/b.conf")

	files := r.DrainTempFiles()
	if len(files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(files))
	}
	if len(r.DrainTempFiles()) != 0 {
		t.Error("drain did not reset the tracked list")
	}
}
