package com

import (
	"sync/atomic"
	"testing"
)

type testClient struct {
	id Uid
	c  int32
}

func (t *testClient) Id() Uid      { return t.id }
func (t *testClient) Disconnect()  {}
func (t *testClient) change(n int) { atomic.AddInt32(&t.c, int32(n)) }

func TestPointerValue(t *testing.T) {
	m := NewNetMap[Uid, *testClient]()
	c := testClient{id: NewUid()}
	m.Add(&c)
	fc, _ := m.FindBy(func(cl *testClient) bool { return cl.id == c.id })
	c.change(100)
	fc2, _ := m.Find(c.id)

	expected := c.c == fc.c && c.c == fc2.c
	if !expected {
		t.Errorf("not expected change, o: %v != %v != %v", c.c, fc.c, fc2.c)
	}
}

func TestPop(t *testing.T) {
	m := NewMap[string, int]()
	m.Put("a", 1)
	if v := m.Pop("a"); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}
	if m.Has("a") {
		t.Errorf("expected the value to be removed")
	}
}

func TestListIsACopy(t *testing.T) {
	m := NewMap[string, int]()
	m.Put("a", 1)
	list := m.List()
	delete(list, "a")
	if !m.Has("a") {
		t.Errorf("expected the source map to be intact")
	}
}
