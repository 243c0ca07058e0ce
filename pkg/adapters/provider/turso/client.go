package turso

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// pipeline wire types for the v2 HTTP protocol. Every request carries one
// execute step and a close step so no stream state is left on the server.

type pipelineRequest struct {
	Requests []pipelineStep `json:"requests"`
}

type pipelineStep struct {
	Type string         `json:"type"` // "execute" or "close"
	Stmt *pipelineStmt  `json:"stmt,omitempty"`
}

type pipelineStmt struct {
	SQL  string      `json:"sql"`
	Args []wireValue `json:"args,omitempty"`
}

type wireValue struct {
	Type   string `json:"type"` // null, integer, float, text, blob
	Value  string `json:"value,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

type pipelineResponse struct {
	Results []struct {
		Type     string `json:"type"` // "ok" or "error"
		Error    *struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error,omitempty"`
		Response *struct {
			Type   string `json:"type"`
			Result *stmtResult `json:"result,omitempty"`
		} `json:"response,omitempty"`
	} `json:"results"`
}

type stmtResult struct {
	Cols []struct {
		Name     string `json:"name"`
		Decltype string `json:"decltype"`
	} `json:"cols"`
	Rows         [][]wireValue `json:"rows"`
	AffectedRows int           `json:"affected_row_count"`
}

// client speaks the pipeline protocol against one database.
type client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// execute runs a single statement with positional args and returns its
// result. Statement-level errors arrive inside a 200 response and are
// surfaced as query failures.
func (c *client) execute(ctx context.Context, sql string, args []any) (*stmtResult, error) {
	stmt := &pipelineStmt{SQL: sql}
	for _, arg := range args {
		wv, err := toWireValue(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		stmt.Args = append(stmt.Args, wv)
	}

	body, err := json.Marshal(pipelineRequest{
		Requests: []pipelineStep{
			{Type: "execute", Stmt: stmt},
			{Type: "close"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode pipeline request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: auth token rejected (status %d)", apperrors.ErrConnectionFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", apperrors.ErrQueryFailed, resp.StatusCode, logging.Sanitize(string(snippet)))
	}

	var decoded pipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed pipeline response: %s", apperrors.ErrQueryFailed, err)
	}
	if len(decoded.Results) == 0 {
		return nil, fmt.Errorf("%w: empty pipeline response", apperrors.ErrQueryFailed)
	}

	first := decoded.Results[0]
	if first.Type == "error" || first.Error != nil {
		msg := "unknown error"
		if first.Error != nil {
			msg = first.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, msg)
	}
	if first.Response == nil || first.Response.Result == nil {
		return nil, fmt.Errorf("%w: pipeline response missing result", apperrors.ErrQueryFailed)
	}
	return first.Response.Result, nil
}

func toWireValue(v any) (wireValue, error) {
	switch val := v.(type) {
	case nil:
		return wireValue{Type: "null"}, nil
	case bool:
		if val {
			return wireValue{Type: "integer", Value: "1"}, nil
		}
		return wireValue{Type: "integer", Value: "0"}, nil
	case int:
		return wireValue{Type: "integer", Value: strconv.Itoa(val)}, nil
	case int64:
		return wireValue{Type: "integer", Value: strconv.FormatInt(val, 10)}, nil
	case float64:
		if val == float64(int64(val)) {
			return wireValue{Type: "integer", Value: strconv.FormatInt(int64(val), 10)}, nil
		}
		return wireValue{Type: "float", Value: strconv.FormatFloat(val, 'g', -1, 64)}, nil
	case string:
		return wireValue{Type: "text", Value: val}, nil
	case []byte:
		return wireValue{Type: "blob", Base64: base64.StdEncoding.EncodeToString(val)}, nil
	default:
		return wireValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromWireValue(wv wireValue) any {
	switch wv.Type {
	case "null":
		return nil
	case "integer":
		if n, err := strconv.ParseInt(wv.Value, 10, 64); err == nil {
			return n
		}
		return wv.Value
	case "float":
		if f, err := strconv.ParseFloat(wv.Value, 64); err == nil {
			return f
		}
		return wv.Value
	case "blob":
		if raw, err := base64.StdEncoding.DecodeString(wv.Base64); err == nil {
			return raw
		}
		return wv.Base64
	default:
		return wv.Value
	}
}

// rowMaps converts a statement result into generic row maps.
func rowMaps(res *stmtResult) []map[string]any {
	rows := make([]map[string]any, 0, len(res.Rows))
	for _, wireRow := range res.Rows {
		row := make(map[string]any, len(res.Cols))
		for i, col := range res.Cols {
			if i < len(wireRow) {
				row[col.Name] = fromWireValue(wireRow[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}
