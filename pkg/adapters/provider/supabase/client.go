package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// restRequest is one PostgREST call. Prefer headers drive representation
// and exact counting.
type restRequest struct {
	method string
	path   string // begins with /rest/v1
	query  string
	prefer string
	body   any
}

// restResponse carries the decoded body plus the Content-Range total when
// the request asked for an exact count.
type restResponse struct {
	status int
	body   []byte
	total  int64 // -1 when absent
}

func (a *Adapter) do(ctx context.Context, req restRequest) (*restResponse, error) {
	var reader io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := a.config.URL + req.path
	if req.query != "" {
		u += "?" + req.query
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	key := a.config.key()
	httpReq.Header.Set("apikey", key)
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.prefer != "" {
		httpReq.Header.Set("Prefer", req.prefer)
	}

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %s", apperrors.ErrQueryFailed, err)
	}

	out := &restResponse{status: resp.StatusCode, body: body, total: -1}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if total, ok := parseContentRangeTotal(cr); ok {
			out.total = total
		}
	}

	if resp.StatusCode >= 400 {
		return nil, a.translateStatus(resp.StatusCode, body)
	}
	return out, nil
}

// parseContentRangeTotal extracts the total from "0-24/3573" or "*/3573".
func parseContentRangeTotal(header string) (int64, bool) {
	_, totalPart, found := strings.Cut(header, "/")
	if !found || totalPart == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// pgrstError is the PostgREST error body shape.
type pgrstError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Hint    string `json:"hint"`
}

func (a *Adapter) translateStatus(status int, body []byte) error {
	var perr pgrstError
	_ = json.Unmarshal(body, &perr)
	msg := perr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256]
		}
	}
	msg = logging.Sanitize(msg)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: API key rejected", apperrors.ErrConnectionFailed)
	case status == http.StatusForbidden || perr.Code == "42501" || strings.Contains(msg, "row-level security"):
		return fmt.Errorf("%w: %s (the stored credential may lack write access; reconnect with the service role key)",
			apperrors.ErrQueryFailed, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, msg)
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, msg)
	}
}
