package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/internal/model/dto"
	"AttendGate/pkg/errors"
)

// HTTPSubmitter 通过 POST /v1/attendance 提交
type HTTPSubmitter struct {
	client  *client.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewHTTPSubmitter(baseURL, token string, timeout time.Duration) (*HTTPSubmitter, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c, err := newClient(timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPSubmitter{
		client:  c,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}, nil
}

func newClient(timeout time.Duration) (*client.Client, error) {
	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return c, nil
}

// envelope 服务端统一响应
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
}

func (s *HTTPSubmitter) Submit(ctx context.Context, attempt model.AttendanceAttempt) (admission.Outcome, error) {
	body, err := json.Marshal(attempt)
	if err != nil {
		return admission.Outcome{}, fmt.Errorf("failed to encode attempt: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + "/v1/attendance")
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte(consts.MIMEApplicationJSON))
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.SetBody(body)

	if err := s.client.DoTimeout(ctx, req, resp, s.timeout); err != nil {
		return admission.Outcome{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return decodeOutcome(resp.StatusCode(), resp.Body())
}

// decodeOutcome 2xx 为准入成功，带拒绝码的 4xx 为确定性拒绝，其余都按传输失败处理
//
// 401 来自令牌校验，429 来自限流，都不是准入结论。
func decodeOutcome(status int, body []byte) (admission.Outcome, error) {
	if status == consts.StatusUnauthorized || status == consts.StatusTooManyRequests {
		return admission.Outcome{}, fmt.Errorf("%w: status %d", ErrTransport, status)
	}
	if status < 200 || status >= 500 {
		return admission.Outcome{}, fmt.Errorf("%w: status %d", ErrTransport, status)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return admission.Outcome{}, fmt.Errorf("%w: malformed response (status %d): %v", ErrTransport, status, err)
	}

	if status < 300 && env.Success {
		var data dto.AdmitData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return admission.Outcome{}, fmt.Errorf("%w: malformed admission data: %v", ErrTransport, err)
		}
		return admission.Admit(admission.Admission{
			AttendanceID: data.AttendanceID,
			Status:       model.AttendanceStatus(data.Status),
			Time:         data.Time,
		}), nil
	}

	if status >= 400 && status < 500 && errors.IsRejection(env.Error) {
		reason := errors.Get(env.Error)
		if env.Message != "" {
			reason = reason.WithMessage(env.Message)
		}
		return admission.Reject(reason), nil
	}

	return admission.Outcome{}, fmt.Errorf("%w: unexpected response %d %s", ErrTransport, status, env.Error)
}

// HTTPProber 通过 GET /healthz 判断是否联网
type HTTPProber struct {
	client  *client.Client
	url     string
	timeout time.Duration
}

func NewHTTPProber(baseURL string, timeout time.Duration) (*HTTPProber, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c, err := newClient(timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPProber{
		client:  c,
		url:     strings.TrimRight(baseURL, "/") + "/healthz",
		timeout: timeout,
	}, nil
}

func (p *HTTPProber) Online(ctx context.Context) bool {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(p.url)
	req.SetMethod(consts.MethodGet)
	if err := p.client.DoTimeout(ctx, req, resp, p.timeout); err != nil {
		return false
	}
	return resp.StatusCode() == consts.StatusOK
}
