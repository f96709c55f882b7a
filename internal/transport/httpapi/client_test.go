package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/matheus3301/peerchat/internal/store"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Token: "tok"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://host", "://nope", "localhost:5000"} {
		if _, err := New(Options{BaseURL: u}, nil); err == nil {
			t.Errorf("New(%q) expected error", u)
		}
	}
}

func TestListPeersAndUnseen(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/message/users" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("token"); got != "tok" {
			t.Errorf("token header = %q, want tok", got)
		}
		_, _ = io.WriteString(w, `{"success":true,
			"users":[{"_id":"u1","fullName":"Ana","profilePic":"a.png"},{"_id":"u2","fullName":"Bo"}],
			"unseenMessages":{"u2":3}}`)
	})

	roster, err := c.ListPeersAndUnseen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(roster.Peers) != 2 || roster.Peers[0].ID != "u1" || roster.Peers[0].Name != "Ana" || roster.Peers[0].Avatar != "a.png" {
		t.Errorf("peers = %+v", roster.Peers)
	}
	if !reflect.DeepEqual(roster.Unseen, map[string]int{"u2": 3}) {
		t.Errorf("unseen = %v, want map[u2:3]", roster.Unseen)
	}
}

func TestListPeersUnsuccessful(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"jwt expired"}`)
	})

	_, err := c.ListPeersAndUnseen(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "jwt expired" {
		t.Fatalf("err = %v, want APIError(jwt expired)", err)
	}
}

func TestGetHistoryShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"bare array", `[{"_id":"m1","senderId":"u1","receiverId":"me","text":"a","createdAt":"2024-05-01T10:00:00Z"},{"_id":"m2","senderId":"me","receiverId":"u1","image":"x.png"}]`, []string{"m1", "m2"}},
		{"enveloped messages", `{"success":true,"messages":[{"_id":"m1","senderId":"u1","receiverId":"me"}]}`, []string{"m1"}},
		{"enveloped data", `{"success":true,"data":[{"_id":"m3","senderId":"u1","receiverId":"me"}]}`, []string{"m3"}},
		{"null", `null`, []string{}},
		{"empty array", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/message/u1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, tt.body)
			})
			msgs, err := c.GetHistory(context.Background(), "u1")
			if err != nil {
				t.Fatal(err)
			}
			got := []string{}
			for _, m := range msgs {
				got = append(got, m.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHistoryDecodesFields(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"_id":"m1","senderId":"u1","receiverId":"me","text":"hey","image":"i.png","seen":true,"createdAt":"2024-05-01T10:00:00Z"}]`)
	})
	msgs, err := c.GetHistory(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	m := msgs[0]
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if m.SenderID != "u1" || m.ReceiverID != "me" || m.Text != "hey" || m.Image != "i.png" || !m.Seen || !m.CreatedAt.Equal(want) {
		t.Errorf("message = %+v", m)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"message":"not authorized"}`)
	})

	_, err := c.GetHistory(context.Background(), "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "not authorized" {
		t.Errorf("err = %+v", apiErr)
	}
	if got, want := apiErr.Error(), "http 401: not authorized"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSendMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/message/send/u1" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["text"] != "hello" {
			t.Errorf("body = %v", body)
		}
		_, _ = io.WriteString(w, `{"success":true,"newMessage":{"_id":"srv1","senderId":"me","receiverId":"u1","text":"hello","createdAt":"2024-05-01T10:00:00Z"}}`)
	})

	m, err := c.SendMessage(context.Background(), "u1", store.Payload{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "srv1" || m.ReceiverID != "u1" || m.CreatedAt.IsZero() {
		t.Errorf("message = %+v", m)
	}
}

func TestSendMessageRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"receiver not found"}`)
	})
	_, err := c.SendMessage(context.Background(), "u1", store.Payload{Text: "hello"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "receiver not found" {
		t.Fatalf("err = %v, want APIError(receiver not found)", err)
	}
}

func TestMarkSeen(t *testing.T) {
	called := false
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodPut || r.URL.Path != "/api/message/mark/m1" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	if err := c.MarkSeen(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("server not called")
	}
}

func TestPathSegmentsEscapedOnce(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"u1", "/api/message/u1"},
		{"a/b", "/api/message/a%2Fb"},
		{"a b", "/api/message/a%20b"},
		{"50%", "/api/message/50%25"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var got string
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.EscapedPath()
				_, _ = io.WriteString(w, `[]`)
			})
			if _, err := c.GetHistory(context.Background(), tt.id); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBasePathPrefix(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL + "/chat/"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.MarkSeen(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}
	if got != "/chat/api/message/mark/m1" {
		t.Errorf("path = %q", got)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := New(Options{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv.Close()

	if err := c.MarkSeen(context.Background(), "m1"); err == nil {
		t.Error("expected error from closed server")
	}
}
