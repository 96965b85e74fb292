package kafka

import (
	"testing"
)

func TestMessage(t *testing.T) {
	msg, err := Message(Event{Key: "run-1", Value: map[string]int{"failed": 0}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "run-1" || string(msg.Value) != `{"failed":0}` {
		t.Errorf("message = %s / %s", msg.Key, msg.Value)
	}
	if _, err := Message(Event{Key: "bad", Value: make(chan int)}); err == nil {
		t.Error("expected marshal error for channel value")
	}
}
