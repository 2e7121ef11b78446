package com

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/network/websocket"
)

func TestPackets(t *testing.T) {
	r, err := json.Marshal(Out{Payload: "asd"})
	if err != nil {
		t.Fatalf("can't marshal packet")
	}
	t.Logf("PACKET: %v", string(r))
}

func TestWebsocket(t *testing.T) {
	log := logger.New(false)

	var server *websocket.WS
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("no socket, %v", err)
			return
		}
		sock, err := websocket.NewServerWithConn(conn, log)
		if err != nil {
			t.Errorf("couldn't init socket server")
			return
		}
		server = sock
		server.OnMessage = func(m []byte, err error) { server.Write(m) } // echo
		server.Listen()
	}))
	defer srv.Close()

	addr := url.URL{Scheme: "ws", Host: strings.TrimPrefix(srv.URL, "http://"), Path: "/"}
	client, err := NewConnector().NewClient(addr, log)
	if err != nil {
		t.Fatalf("error: couldn't connect to %v because of %v", addr.String(), err)
	}
	client.OnPacket(func(packet In) {
		// nop
	})
	client.Listen()

	calls := []struct {
		packet     Out
		concurrent bool
		value      any
	}{
		{packet: Out{T: 10, Payload: "test"}, value: "test", concurrent: true},
		{packet: Out{T: 10, Payload: "test2"}, value: "test2"},
		{packet: Out{T: 11, Payload: "test3"}, value: "test3"},
		{packet: Out{T: 99, Payload: ""}, value: ""},
		{packet: Out{T: 12, Payload: 123}, value: 123},
		{packet: Out{T: 10, Payload: false}, value: false},
		{packet: Out{T: 10, Payload: true}, value: true},
		{packet: Out{T: 11, Payload: []string{"test", "test", "test"}}, value: []string{"test", "test", "test"}},
		{packet: Out{T: 22, Payload: []string{}}, value: []string{}},
	}

	const n = 16
	var wait sync.WaitGroup

	for _, call := range calls {
		if call.concurrent {
			wait.Add(n)
			for i := 0; i < n; i++ {
				packet := call.packet
				value := call.value
				go func() {
					defer wait.Done()
					vv, err := client.Call(packet.T, packet.Payload)
					if err := checkCall(vv, err, value); err != nil {
						t.Errorf("%v", err)
					}
				}()
			}
		} else {
			vv, err := client.Call(call.packet.T, call.packet.Payload)
			if err := checkCall(vv, err, call.value); err != nil {
				t.Fatalf("%v", err)
			}
		}
	}
	wait.Wait()

	client.Close()
	<-client.Wait()
}

func checkCall(v []byte, err error, need any) error {
	if err != nil {
		return err
	}
	var value any
	if v != nil {
		if err = json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("can't unmarshal %v", v)
		}
	}

	nice := true
	// cast values after default unmarshal
	switch value.(type) {
	default:
		nice = value == need
	case bool:
		nice = value == need.(bool)
	case float64:
		nice = value == float64(need.(int))
	case string:
		nice = value == need.(string)
	case []any:
		// let's assume that's strings
		vv := value.([]any)
		for i := 0; i < len(need.([]string)); i++ {
			if vv[i].(string) != need.([]string)[i] {
				nice = false
				break
			}
		}
	}

	if !nice {
		return fmt.Errorf("expected %v, but got %v", need, v)
	}
	return nil
}
