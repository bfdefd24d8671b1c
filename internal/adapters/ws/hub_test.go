package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/internal/adapters/ws"
	"github.com/okian/roadwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type submission struct {
	kind    string
	conn    model.Conn
	report  model.PositionReport
	actorID string
	image   []byte
}

type fakeSubmitter struct {
	mu   sync.Mutex
	subs chan submission
	full bool
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{subs: make(chan submission, 16)}
}

func (f *fakeSubmitter) SubmitReport(_ context.Context, conn model.Conn, rep model.PositionReport) error {
	f.mu.Lock()
	full := f.full
	f.mu.Unlock()
	if full {
		return queue.ErrFull
	}
	f.subs <- submission{kind: "report", conn: conn, report: rep}
	return nil
}

func (f *fakeSubmitter) SubmitFrame(_ context.Context, conn model.Conn, actorID string, image []byte) error {
	f.subs <- submission{kind: "frame", conn: conn, actorID: actorID, image: image}
	return nil
}

func (f *fakeSubmitter) SubmitDisconnect(_ context.Context, conn model.Conn) error {
	f.subs <- submission{kind: "disconnect", conn: conn}
	return nil
}

func (f *fakeSubmitter) next(t *testing.T) submission {
	t.Helper()
	select {
	case s := <-f.subs:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no submission received")
		return submission{}
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind an HTTP server", t, func() {
		sub := newFakeSubmitter()
		hub, err := ws.NewHub(sub, ws.WithSendBuffer(4))
		So(err, ShouldBeNil)
		server := httptest.NewServer(hub)
		defer server.Close()
		defer hub.Close()

		client := dial(t, server.URL)
		defer func() { _ = client.Close() }()

		Convey("When the client sends a position update", func() {
			So(client.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"update","id":"driver1","role":"A","latitude":43.6629,"longitude":-79.3957}`)), ShouldBeNil)
			s := sub.next(t)

			Convey("Then a report is submitted on a ws connection", func() {
				So(s.kind, ShouldEqual, "report")
				So(s.conn.Transport, ShouldEqual, model.TransportWS)
				So(s.conn.ID, ShouldNotBeEmpty)
				So(s.report.ID, ShouldEqual, "driver1")
				So(s.report.Latitude, ShouldEqual, 43.6629)
				So(hub.Len(), ShouldEqual, 1)
			})

			Convey("And an alert delivered to that connection reaches the client", func() {
				env := model.NewEnvelope("driver1", model.Alert{
					Kind: model.KindAlert, FromID: "biker1", FromRole: model.RoleB, DistanceMeters: 32.2, BearingDegrees: 90,
				}, time.Now())
				So(hub.Deliver(context.Background(), s.conn, env), ShouldBeNil)

				msg := readJSON(t, client)
				So(msg["kind"], ShouldEqual, "alert")
				So(msg["fromId"], ShouldEqual, "biker1")
				So(msg["distanceMeters"], ShouldEqual, 32.2)
			})

			Convey("And closing the socket submits a disconnect for it", func() {
				_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = client.Close()
				d := sub.next(t)
				So(d.kind, ShouldEqual, "disconnect")
				So(d.conn, ShouldResemble, s.conn)
			})
		})

		Convey("When the client sends a frame", func() {
			So(client.WriteMessage(websocket.TextMessage, []byte(`{"type":"frame","id":"driver1","image":"aGVsbG8="}`)), ShouldBeNil)
			s := sub.next(t)

			Convey("Then the decoded image is submitted", func() {
				So(s.kind, ShouldEqual, "frame")
				So(s.actorID, ShouldEqual, "driver1")
				So(string(s.image), ShouldEqual, "hello")
			})
		})

		Convey("When the client sends an invalid message", func() {
			So(client.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","id":"driver1","role":"pedestrian","latitude":1,"longitude":1}`)), ShouldBeNil)

			Convey("Then an error reply is sent and nothing is submitted", func() {
				msg := readJSON(t, client)
				So(msg["kind"], ShouldEqual, "error")
				So(len(sub.subs), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			sub.mu.Lock()
			sub.full = true
			sub.mu.Unlock()
			So(client.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","id":"driver1","role":"A","latitude":1,"longitude":1}`)), ShouldBeNil)

			Convey("Then the client is told the server is busy", func() {
				msg := readJSON(t, client)
				So(msg["error"], ShouldEqual, "server busy")
			})
		})

		Convey("When delivering to an unknown connection", func() {
			err := hub.Deliver(context.Background(), model.Conn{Transport: model.TransportWS, ID: "nope"},
				model.NewEnvelope("x", model.DetectionEvent{Kind: model.KindDetection}, time.Now()))
			So(errors.Is(err, ws.ErrUnknownConnection), ShouldBeTrue)
		})
	})
}

func TestErrorMessageShape(t *testing.T) {
	Convey("Error replies carry an error kind", t, func() {
		data, err := json.Marshal(ws.ErrorMessage{Kind: "error", Error: "bad"})
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `{"kind":"error","error":"bad"}`)
	})
}

// quietSubmitter accepts everything without blocking.
type quietSubmitter struct{}

func (quietSubmitter) SubmitReport(context.Context, model.Conn, model.PositionReport) error {
	return nil
}
func (quietSubmitter) SubmitFrame(context.Context, model.Conn, string, []byte) error { return nil }
func (quietSubmitter) SubmitDisconnect(context.Context, model.Conn) error            { return nil }

func TestHubCloseWhileConnecting(t *testing.T) {
	Convey("Given clients connecting while the hub closes", t, func() {
		hub, err := ws.NewHub(quietSubmitter{})
		So(err, ShouldBeNil)
		server := httptest.NewServer(hub)
		defer server.Close()
		url := "ws" + strings.TrimPrefix(server.URL, "http")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					return
				}
				defer func() { _ = c.Close() }()
				_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, _ = c.ReadMessage()
			}()
		}

		closed := make(chan struct{})
		go func() {
			hub.Close()
			close(closed)
		}()

		Convey("Then Close returns once every writer has exited", func() {
			select {
			case <-closed:
			case <-time.After(3 * time.Second):
				t.Fatal("hub.Close did not return")
			}
			wg.Wait()
		})

		Convey("And a connection after Close is refused", func() {
			<-closed
			c := dial(t, server.URL)
			defer func() { _ = c.Close() }()
			_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := c.ReadMessage()
			So(err, ShouldNotBeNil)
			So(hub.Len(), ShouldEqual, 0)
			wg.Wait()
		})
	})
}
