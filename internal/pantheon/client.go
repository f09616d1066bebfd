package pantheon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alex65536/statboard/internal/util/backoff"
	"github.com/alex65536/statboard/internal/util/httputil"
	"github.com/alex65536/statboard/internal/util/slogx"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var errMalformed = errors.New("malformed response")

type Options struct {
	Endpoint      string          `toml:"endpoint"`
	Timeout       time.Duration   `toml:"timeout"`
	RatePerSecond float64         `toml:"rate-per-second"`
	Burst         int             `toml:"burst"`
	PageSize      int             `toml:"page-size"`
	Backoff       backoff.Options `toml:"backoff"`
}

func (o *Options) FillDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RatePerSecond == 0 {
		o.RatePerSecond = 5
	}
	if o.Burst == 0 {
		o.Burst = 1
	}
	if o.PageSize == 0 {
		o.PageSize = 200
	}
	o.Backoff.FillDefaults()
}

// Client fetches finished games from a Pantheon server over JSON-RPC.
type Client struct {
	o       Options
	log     *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	lastID  atomic.Int64
}

func NewClient(log *slog.Logger, o Options, httpClient *http.Client) (*Client, error) {
	o.FillDefaults()
	if o.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint")
	}
	if err := o.Backoff.Validate(); err != nil {
		return nil, fmt.Errorf("bad backoff: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		o:       o,
		log:     log,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Limit(o.RatePerSecond), o.Burst),
	}, nil
}

func shouldRetry(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, errMalformed) {
		return false
	}
	return httputil.IsTemporary(err)
}

func (c *Client) callOnce(ctx context.Context, data []byte, id int64) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.o.Timeout)
	defer cancel()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.o.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	hReq.Header.Set("Content-Type", "application/json")
	hRsp, err := c.client.Do(hReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, hRsp.Body)
		_ = hRsp.Body.Close()
	}()
	if err := httputil.ErrorFromResponse(hRsp); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	rspBytes, err := io.ReadAll(hRsp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var rsp rpcResponse
	if err := json.Unmarshal(rspBytes, &rsp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %w", errMalformed, err)
	}
	if rsp.Error != nil {
		return nil, rsp.Error
	}
	if rsp.ID != id {
		return nil, fmt.Errorf("%w: id mismatch: expected %v, got %v", errMalformed, id, rsp.ID)
	}
	return rsp.Result, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	id := c.lastID.Add(1)
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	b, err := backoff.New(c.o.Backoff)
	if err != nil {
		return fmt.Errorf("create backoff: %w", err)
	}
	var result json.RawMessage
	err = b.Do(ctx, shouldRetry, func() error {
		var err error
		result, err = c.callOnce(ctx, data, id)
		if err != nil && shouldRetry(err) {
			c.log.Info("pantheon call failed, retrying", slog.String("method", method), slogx.Err(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("call %v: %w", method, err)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("call %v: %w: unmarshal result: %w", method, errMalformed, err)
	}
	return nil
}

func (c *Client) fetchEventGames(ctx context.Context, eventID int) ([]Game, error) {
	var games []Game
	for offset := 0; ; offset += c.o.PageSize {
		var page lastGamesResult
		err := c.call(ctx, "getLastGames", []any{eventID, c.o.PageSize, offset, "id", "asc"}, &page)
		if err != nil {
			return nil, err
		}
		conv, err := page.convert()
		if err != nil {
			return nil, fmt.Errorf("convert games: %w", err)
		}
		games = append(games, conv...)
		if len(page.Games) < c.o.PageSize {
			break
		}
	}
	sortGames(games)
	c.log.Info("fetched pantheon games", slog.Int("event_id", eventID), slog.Int("count", len(games)))
	return games, nil
}

// EventGames returns all the finished games of the event in chronological order. Concurrent
// requests for the same event share one fetch. The fetch goes on if one of the callers gives up;
// it is still bounded by the request timeout and the backoff attempts.
func (c *Client) EventGames(ctx context.Context, eventID int) ([]Game, error) {
	ch := c.group.DoChan(strconv.Itoa(eventID), func() (any, error) {
		return c.fetchEventGames(context.WithoutCancel(ctx), eventID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]Game)), nil
	}
}
