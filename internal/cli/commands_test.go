package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deviart/internal/control"
)

// run выполняет команду cobra с аргументами args.
func run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

type buffers struct {
	out, errOut bytes.Buffer
}

func (b *buffers) outputFn(jsonMode bool) func() *Output {
	return func() *Output { return NewOutputTo(jsonMode, &b.out, &b.errOut) }
}

func TestWorkerCmd_Start(t *testing.T) {
	var body map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "stats worker started"})
	})

	var b buffers
	cmd := NewWorkerCmd(func() *Client { return client }, b.outputFn(false))
	if err := run(t, cmd, "start", "stats", "--username", "artist"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if body["username"] != "artist" {
		t.Errorf("body = %v", body)
	}
	if strings.TrimSpace(b.errOut.String()) != "stats worker started" {
		t.Errorf("stderr = %q", b.errOut.String())
	}
}

func TestWorkerCmd_StatusTable(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"feature": "broadcast", "running": true, "queue_remaining": 4},
		})
	})

	var b buffers
	cmd := NewWorkerCmd(func() *Client { return client }, b.outputFn(false))
	if err := run(t, cmd, "status", "broadcast"); err != nil {
		t.Fatalf("status: %v", err)
	}

	out := b.out.String()
	for _, want := range []string{"FIELD", "queue_remaining", "running", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("вывод не содержит %q:\n%s", want, out)
		}
	}
}

func TestQueueCmd_ListJSON(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"deviationid": "d1", "status": "pending", "attempts": 0}},
		})
	})

	var b buffers
	cmd := NewQueueCmd(func() *Client { return client }, b.outputFn(true))
	if err := run(t, cmd, "list", "comments"); err != nil {
		t.Fatalf("list: %v", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(b.out.Bytes(), &items); err != nil {
		t.Fatalf("stdout не JSON: %v\n%s", err, b.out.String())
	}
	if len(items) != 1 || items[0]["deviationid"] != "d1" {
		t.Errorf("items = %v", items)
	}
}

func TestQueueCmd_AddParsesRecipients(t *testing.T) {
	var body struct {
		MessageID  int64       `json:"message_id"`
		Recipients []Recipient `json:"recipients"`
	}
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "added 1 recipients"})
	})

	var b buffers
	cmd := NewQueueCmd(func() *Client { return client }, b.outputFn(false))
	if err := run(t, cmd, "add", "5", "--recipient", "alice:u-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if body.MessageID != 5 || len(body.Recipients) != 1 || body.Recipients[0] != (Recipient{Username: "alice", UserID: "u-1"}) {
		t.Errorf("body = %+v", body)
	}

	cmd = NewQueueCmd(func() *Client { return client }, b.outputFn(false))
	if err := run(t, cmd, "add", "5", "--recipient", "alice"); err == nil {
		t.Error("ожидалась ошибка формата получателя")
	}
}

func TestTemplateCmd_UpdateSendsOnlyChangedFlags(t *testing.T) {
	var body map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/comments/templates/2" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"message_id": 2, "title": "t", "body": "b", "is_active": false},
		})
	})

	var b buffers
	cmd := NewTemplateCmd(func() *Client { return client }, b.outputFn(false))
	if err := run(t, cmd, "update", "comments", "2", "--active=false"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(body) != 1 || body["is_active"] != false {
		t.Errorf("body = %v", body)
	}
}

type fakePublisher struct {
	commands []control.Command
	err      error
}

func (p *fakePublisher) PublishCommand(_ context.Context, cmd control.Command) error {
	if p.err != nil {
		return p.err
	}
	p.commands = append(p.commands, cmd)
	return nil
}

func TestSendCmd(t *testing.T) {
	pub := &fakePublisher{}
	closed := false
	factory := func(context.Context) (CommandPublisher, func(), error) {
		return pub, func() { closed = true }, nil
	}

	var b buffers
	cmd := NewSendCmd(factory, b.outputFn(false))
	if err := run(t, cmd, "comments", "collect", "--arg", "source=global", "--arg", "max_pages=3"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(pub.commands) != 1 {
		t.Fatalf("commands = %v", pub.commands)
	}
	got := pub.commands[0]
	if got.Feature != "comments" || got.Action != control.ActionCollect || got.Args["source"] != "global" || got.Args["max_pages"] != "3" {
		t.Errorf("command = %+v", got)
	}
	if !closed {
		t.Error("соединение с брокером должно закрываться")
	}
}

func TestSendCmd_Errors(t *testing.T) {
	var b buffers

	// Неверный формат аргумента — до подключения к брокеру
	dialed := false
	factory := func(context.Context) (CommandPublisher, func(), error) {
		dialed = true
		return &fakePublisher{}, func() {}, nil
	}
	if err := run(t, NewSendCmd(factory, b.outputFn(false)), "fave", "collect", "--arg", "oops"); err == nil {
		t.Error("ожидалась ошибка формата аргумента")
	}
	if dialed {
		t.Error("брокер не должен вызываться при неверных аргументах")
	}

	// Ошибка подключения
	dialErr := errors.New("connection refused")
	failing := func(context.Context) (CommandPublisher, func(), error) {
		return nil, nil, dialErr
	}
	if err := run(t, NewSendCmd(failing, b.outputFn(false)), "fave", "collect"); !errors.Is(err, dialErr) {
		t.Errorf("err = %v, want %v", err, dialErr)
	}
}

func TestParseKV(t *testing.T) {
	got, err := parseKV([]string{"a=1", "b=x=y", "c="})
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != "1" || got["b"] != "x=y" || got["c"] != "" {
		t.Errorf("got = %v", got)
	}
	if _, err := parseKV([]string{"=1"}); err == nil {
		t.Error("пустой ключ должен отклоняться")
	}
}
