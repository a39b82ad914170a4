package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/bartek5186/xls2jobs/internal/jobs"
)

var ErrUnauthorized = errors.New("sync endpoint: unauthorized")

type RemoteConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int // 0 = jedna próba
}

// Remote wysyła paczkę JSON-em na zdalny /api/sync/jobs. Brak atomowości
// między wierszami: serwer zapisuje je pojedynczo.
type Remote struct {
	log     zerolog.Logger
	cfg     RemoteConfig
	url     string
	http    *http.Client
	backoff func() backoff.BackOff
}

func NewRemote(log zerolog.Logger, cfg RemoteConfig) (*Remote, error) {
	endpoint, err := endpointURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("remote: brak tokenu synchronizacji")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		log:  log,
		cfg:  cfg,
		url:  endpoint,
		http: &http.Client{Timeout: timeout},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}, nil
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Send(ctx context.Context, rows []jobs.Row) (Result, error) {
	body, err := json.Marshal(Payload{Jobs: rows})
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}

	var out Response
	attempt := 0
	op := func() error {
		attempt++
		resp, err := r.post(ctx, body)
		if resp != nil {
			out = *resp
		}
		if err != nil {
			r.log.Warn().Err(err).Int("attempt", attempt).Msg("remote sync: próba nieudana")
			return err
		}
		return nil
	}

	var b backoff.BackOff = backoff.WithMaxRetries(r.backoff(), uint64(max(r.cfg.Retries, 0)))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return Result{Count: len(rows), Saved: out.Saved}, err
	}
	return Result{Count: len(rows), Saved: out.Saved}, nil
}

func (r *Remote) post(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "xls2jobs/1.0")
	req.Header.Set(HeaderToken, r.cfg.Token)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &out, backoff.Permanent(ErrUnauthorized)
	case resp.StatusCode >= 500:
		return &out, fmt.Errorf("sync endpoint: http %d: %s", resp.StatusCode, errText(out, raw))
	case resp.StatusCode != http.StatusOK:
		return &out, backoff.Permanent(fmt.Errorf("sync endpoint: http %d: %s", resp.StatusCode, errText(out, raw)))
	}
	if decodeErr != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	if !out.Success {
		return &out, backoff.Permanent(fmt.Errorf("sync endpoint: %s", errText(out, raw)))
	}
	return &out, nil
}

func errText(r Response, raw []byte) string {
	if r.Error != "" {
		return r.Error
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// endpointURL: sam host -> dopisz /api/sync/jobs
func endpointURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("remote: brak adresu URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("remote: zły URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("remote: nieobsługiwany schemat %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = SyncPath
	}
	return u.String(), nil
}
