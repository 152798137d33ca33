package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/pkg/types"
)

// DecodeRow decodes one JSON object into a Row for table t. Each value is
// decoded into the Go type of its column: integers as int64, binary columns
// from base64 strings and timestamps from RFC 3339 strings. JSON null leaves
// the column absent. Keys that name no column are kept so that ValidateRow
// reports them.
func DecodeRow(t types.TableDef, data []byte) (Row, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ferrors.NewValidationError(ferrors.CodeTypeMismatch,
			fmt.Sprintf("%s: row is not a JSON object: %v", t.Name, err))
	}

	row := make(Row, len(raw))
	for name, msg := range raw {
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			continue
		}
		c, ok := t.Column(name)
		if !ok {
			row[name] = string(msg)
			continue
		}
		v, err := decodeValue(c.Type, msg)
		if err != nil {
			return nil, ferrors.NewValidationError(ferrors.CodeTypeMismatch,
				fmt.Sprintf("%s.%s: cannot decode %s as %s: %v", t.Name, name, msg, c.Type, err)).
				WithDetails(map[string]interface{}{"table": t.Name, "column": name})
		}
		row[name] = v
	}
	return row, nil
}

func decodeValue(ct types.ColumnType, msg json.RawMessage) (interface{}, error) {
	switch ct {
	case types.TypeText:
		var s string
		err := json.Unmarshal(msg, &s)
		return s, err
	case types.TypeBigInt, types.TypeInteger, types.TypeSmallInt:
		var n int64
		err := json.Unmarshal(msg, &n)
		return n, err
	case types.TypeBool:
		var b bool
		err := json.Unmarshal(msg, &b)
		return b, err
	case types.TypeBinary:
		var b []byte
		if err := json.Unmarshal(msg, &b); err != nil {
			return nil, err
		}
		if b == nil {
			b = []byte{}
		}
		return b, nil
	case types.TypeTimestamp:
		var ts time.Time
		err := json.Unmarshal(msg, &ts)
		return ts.UTC(), err
	}
	return nil, fmt.Errorf("unsupported column type %s", ct)
}
