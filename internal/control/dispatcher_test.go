package control

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/worker"
)

type fakeAuth struct {
	token      string
	refreshed  string
	refreshErr error
	ensureErr  error
	refreshes  int
}

func (a *fakeAuth) EnsureAuthenticated(context.Context) error { return a.ensureErr }

func (a *fakeAuth) ValidToken(context.Context) (string, error) { return a.token, nil }

func (a *fakeAuth) Refresh(context.Context) (string, error) {
	a.refreshes++
	if a.refreshErr != nil {
		return "", a.refreshErr
	}
	a.token = a.refreshed
	return a.refreshed, nil
}

type fakeController struct {
	name    string
	running bool
	opts    worker.StartOptions
	stops   int
}

func (c *fakeController) Name() string { return c.name }

func (c *fakeController) Start(_ context.Context, opts worker.StartOptions) error {
	if c.running {
		return worker.ErrAlreadyRunning
	}
	c.running = true
	c.opts = opts
	return nil
}

func (c *fakeController) Stop() (worker.StopResult, error) {
	if !c.running {
		return worker.StopResult{}, worker.ErrNotRunning
	}
	c.running = false
	c.stops++
	return worker.StopResult{Stopped: true, Message: "stopped"}, nil
}

func (c *fakeController) Status(context.Context) worker.Status {
	return worker.Status{Feature: c.name, Stats: worker.Stats{Running: c.running}}
}

func (c *fakeController) Running() bool { return c.running }

func newDispatcher(auth worker.Authenticator, controllers ...worker.Controller) *Dispatcher {
	reg := worker.NewRegistry()
	for _, c := range controllers {
		reg.Register(c)
	}
	return New(Config{Registry: reg, Auth: auth})
}

func expiredToken() error {
	return httpclient.NewAPIError(http.StatusUnauthorized,
		[]byte(`{"error":"invalid_token","error_description":"Expired oAuth2 user token."}`))
}

func TestDispatcher_StartPassesAuthAndParams(t *testing.T) {
	auth := &fakeAuth{token: "tok"}
	c := &fakeController{name: "comments"}
	d := newDispatcher(auth, c)

	params := map[string]string{"template_id": "7"}
	if err := d.Start(context.Background(), "comments", params); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.opts.Auth != auth {
		t.Error("Auth должен передаваться воркеру")
	}
	if c.opts.Params["template_id"] != "7" {
		t.Errorf("Params = %v", c.opts.Params)
	}

	// Повторный запуск
	if err := d.Start(context.Background(), "comments", nil); !errors.Is(err, worker.ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestDispatcher_StartErrors(t *testing.T) {
	c := &fakeController{name: "fave"}

	// Неизвестная фича
	d := newDispatcher(&fakeAuth{}, c)
	if err := d.Start(context.Background(), "nope", nil); !errors.Is(err, worker.ErrUnknownFeature) {
		t.Errorf("err = %v, want ErrUnknownFeature", err)
	}

	// Нет коллаборатора аутентификации
	d = newDispatcher(nil, c)
	if err := d.Start(context.Background(), "fave", nil); !errors.Is(err, worker.ErrNoToken) {
		t.Errorf("err = %v, want ErrNoToken", err)
	}

	// Аккаунт не авторизован
	notAuth := errors.New("not authenticated")
	d = newDispatcher(&fakeAuth{ensureErr: notAuth}, c)
	if err := d.Start(context.Background(), "fave", nil); !errors.Is(err, notAuth) {
		t.Errorf("err = %v, want %v", err, notAuth)
	}
	if c.running {
		t.Error("воркер не должен запускаться без аутентификации")
	}
}

func TestDispatcher_StopAndStatus(t *testing.T) {
	c := &fakeController{name: "stats"}
	d := newDispatcher(&fakeAuth{token: "tok"}, c)

	if _, err := d.Stop("stats"); !errors.Is(err, worker.ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}

	_ = d.Start(context.Background(), "stats", nil)
	st, err := d.Status(context.Background(), "stats")
	if err != nil || !st.Running {
		t.Fatalf("Status = %+v, %v", st, err)
	}

	res, err := d.Stop("stats")
	if err != nil || !res.Stopped {
		t.Fatalf("Stop = %+v, %v", res, err)
	}
	if len(d.StatusAll(context.Background())) != 1 {
		t.Error("StatusAll должен вернуть один статус")
	}
}

func TestDispatcher_Run(t *testing.T) {
	auth := &fakeAuth{token: "tok"}
	d := newDispatcher(auth)

	var gotToken string
	var gotArgs map[string]string
	d.Handle("fave", ActionCollect, func(_ context.Context, token string, args map[string]string) (any, error) {
		gotToken, gotArgs = token, args
		return 42, nil
	})

	res, err := d.Run(context.Background(), "fave", ActionCollect, map[string]string{"max_pages": "2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != 42 || gotToken != "tok" || gotArgs["max_pages"] != "2" {
		t.Errorf("res=%v token=%q args=%v", res, gotToken, gotArgs)
	}

	if _, err := d.Run(context.Background(), "fave", ActionSync, nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestDispatcher_RunRefreshesExpiredTokenOnce(t *testing.T) {
	auth := &fakeAuth{token: "old", refreshed: "new"}
	d := newDispatcher(auth)

	var tokens []string
	d.Handle("stats", ActionSync, func(_ context.Context, token string, _ map[string]string) (any, error) {
		tokens = append(tokens, token)
		if token == "old" {
			return nil, expiredToken()
		}
		return "ok", nil
	})

	res, err := d.Run(context.Background(), "stats", ActionSync, nil)
	if err != nil || res != "ok" {
		t.Fatalf("Run = %v, %v", res, err)
	}
	if len(tokens) != 2 || tokens[1] != "new" || auth.refreshes != 1 {
		t.Errorf("tokens = %v, refreshes = %d", tokens, auth.refreshes)
	}
}

func TestDispatcher_RunRefreshFailureKeepsOriginalError(t *testing.T) {
	auth := &fakeAuth{token: "old", refreshErr: errors.New("refresh denied")}
	d := newDispatcher(auth)

	calls := 0
	d.Handle("comments", ActionCollect, func(context.Context, string, map[string]string) (any, error) {
		calls++
		return nil, expiredToken()
	})

	_, err := d.Run(context.Background(), "comments", ActionCollect, nil)
	if !httpclient.IsExpiredToken(err) {
		t.Errorf("err = %v, want expired token error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatcher_Execute(t *testing.T) {
	c := &fakeController{name: "broadcast"}
	d := newDispatcher(&fakeAuth{token: "tok"}, c)
	d.Handle("broadcast", ActionFetch, func(context.Context, string, map[string]string) (any, error) {
		return "fetched", nil
	})

	ctx := context.Background()
	if _, err := d.Execute(ctx, Command{Feature: "broadcast", Action: ActionStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.running {
		t.Error("воркер должен быть запущен")
	}

	res, err := d.Execute(ctx, Command{Feature: "broadcast", Action: ActionFetch})
	if err != nil || res != "fetched" {
		t.Errorf("fetch = %v, %v", res, err)
	}

	if _, err := d.Execute(ctx, Command{Feature: "broadcast", Action: ActionStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.stops != 1 {
		t.Errorf("stops = %d, want 1", c.stops)
	}

	if _, err := d.Execute(ctx, Command{Feature: "broadcast", Action: "explode"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}
