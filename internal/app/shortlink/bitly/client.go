package bitly

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

	"bitcli.local/internal/app/shortlink"
	"bitcli.local/internal/platform/config"
	"bitcli.local/internal/platform/httpmiddleware"
)

const (
	opFetchUser = "fetch_user"
	opShorten   = "shorten"
)

// 每个接口认可的状态码。不在这里的状态码都按协议违约处理。
var (
	fetchUserOK     = statusSet(http.StatusOK)
	fetchUserFailed = statusSet(
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	)

	shortenOK     = statusSet(http.StatusOK, http.StatusCreated)
	shortenFailed = statusSet(
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusGone,
		http.StatusExpectationFailed,
		http.StatusUnprocessableEntity,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	)
)

type Options struct {
	// BaseURL 不带版本路径，例如 https://api-ssl.bitly.com
	BaseURL string
	Token   string
	Offline bool
	Timeout time.Duration
	// Transport 为 nil 时使用 http.DefaultTransport
	Transport http.RoundTripper
}

// Client 是 Bitly v4 API 的客户端。创建后只读，可并发使用。
type Client struct {
	baseURL *url.URL
	offline bool
	http    *http.Client
}

func NewClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = config.DefaultAPIURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", raw)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/v4/"

	transport := httpmiddleware.Chain(opts.Transport,
		httpmiddleware.Traced(),
		httpmiddleware.Metrics(),
		httpmiddleware.Bearer(opts.Token),
	)

	return &Client{
		baseURL: base,
		offline: opts.Offline,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}, nil
}

type userResponse struct {
	IsActive         *bool   `json:"is_active"`
	DefaultGroupGUID *string `json:"default_group_guid"`
}

// FetchUser 查询当前 token 对应的用户。
//
// <https://dev.bitly.com/api-reference/#getUser>
func (c *Client) FetchUser(ctx context.Context) (shortlink.UserInfo, error) {
	if c.offline {
		return shortlink.UserInfo{}, &shortlink.OfflineError{Op: opFetchUser}
	}

	var resp userResponse
	status, err := c.do(ctx, opFetchUser, http.MethodGet, "user", nil, fetchUserOK, fetchUserFailed, &resp)
	if err != nil {
		return shortlink.UserInfo{}, err
	}
	if resp.IsActive == nil {
		return shortlink.UserInfo{}, &shortlink.ProtocolError{
			Op: opFetchUser, Status: status, Err: errors.New("missing field is_active"),
		}
	}

	user := shortlink.UserInfo{IsActive: *resp.IsActive}
	if resp.DefaultGroupGUID != nil {
		user.DefaultGroupGUID = *resp.DefaultGroupGUID
	}
	return user, nil
}

type bitlinkResponse struct {
	Link    string `json:"link"`
	ID      string `json:"id"`
	LongURL string `json:"long_url"`
}

// CreateShortlink 创建（或取回已存在的）bitlink。
//
// <https://dev.bitly.com/api-reference/#createBitlink>
func (c *Client) CreateShortlink(ctx context.Context, req shortlink.ShortenRequest) (shortlink.Bitlink, error) {
	if c.offline {
		return shortlink.Bitlink{}, &shortlink.OfflineError{Op: opShorten}
	}

	var resp bitlinkResponse
	status, err := c.do(ctx, opShorten, http.MethodPost, "shorten", req, shortenOK, shortenFailed, &resp)
	if err != nil {
		return shortlink.Bitlink{}, err
	}
	if resp.Link == "" || resp.ID == "" {
		return shortlink.Bitlink{}, &shortlink.ProtocolError{
			Op: opShorten, Status: status, Err: errors.New("missing field link or id"),
		}
	}
	if _, err := url.Parse(resp.Link); err != nil {
		return shortlink.Bitlink{}, &shortlink.ProtocolError{Op: opShorten, Status: status, Err: err}
	}

	link := shortlink.Bitlink{Link: resp.Link, ID: resp.ID, LongURL: resp.LongURL}
	if link.LongURL == "" {
		link.LongURL = req.LongURL
	}
	return link, nil
}

// do 发出请求并按状态码分类响应：
// - ok 中的状态码：响应体解码到 out
// - failed 中的状态码：响应体解码为 ErrorEnvelope，返回 *RemoteError
// - 其他状态码，或者已知状态码但响应体无法解码：*ProtocolError
func (c *Client) do(ctx context.Context, op, method, path string, payload any, ok, failed map[int]struct{}, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(httpmiddleware.WithOp(ctx, op), method, endpoint.String(), body)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &shortlink.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &shortlink.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if _, found := ok[resp.StatusCode]; found {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, &shortlink.ProtocolError{Op: op, Status: resp.StatusCode, Err: err}
		}
		return resp.StatusCode, nil
	}

	if _, found := failed[resp.StatusCode]; found {
		var envelope shortlink.ErrorEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return resp.StatusCode, &shortlink.ProtocolError{Op: op, Status: resp.StatusCode, Err: err}
		}
		if envelope.Message == "" {
			return resp.StatusCode, &shortlink.ProtocolError{
				Op: op, Status: resp.StatusCode, Err: errors.New("error response without message"),
			}
		}
		return resp.StatusCode, &shortlink.RemoteError{Status: resp.StatusCode, Envelope: envelope}
	}

	return resp.StatusCode, &shortlink.ProtocolError{Op: op, Status: resp.StatusCode}
}

func statusSet(codes ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}
