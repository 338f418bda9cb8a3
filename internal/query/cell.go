package query

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
	KindBool
	KindTime
	KindBytes
	KindOther
)

var kindNames = [...]string{
	KindNull:    "null",
	KindText:    "text",
	KindInteger: "integer",
	KindFloat:   "float",
	KindBool:    "bool",
	KindTime:    "time",
	KindBytes:   "bytes",
	KindOther:   "other",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Cell is one value of a result row, tagged with the kind the driver reported.
type Cell struct {
	Kind  Kind
	Value any
}

// NullCell is the value used for SQL NULL and for rows that could not be scanned.
var NullCell = Cell{Kind: KindNull}

// NewCell converts a value scanned into *any by database/sql.
func NewCell(value any) Cell {
	switch typed := value.(type) {
	case nil:
		return NullCell
	case string:
		return Cell{Kind: KindText, Value: typed}
	case []byte:
		if utf8.Valid(typed) {
			return Cell{Kind: KindText, Value: string(typed)}
		}
		return Cell{Kind: KindBytes, Value: append([]byte(nil), typed...)}
	case int64:
		return Cell{Kind: KindInteger, Value: typed}
	case int:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case int32:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case int16:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case int8:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case uint32:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case uint16:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case uint8:
		return Cell{Kind: KindInteger, Value: int64(typed)}
	case uint64:
		return Cell{Kind: KindOther, Value: typed}
	case float64:
		return Cell{Kind: KindFloat, Value: typed}
	case float32:
		return Cell{Kind: KindFloat, Value: float64(typed)}
	case bool:
		return Cell{Kind: KindBool, Value: typed}
	case time.Time:
		return Cell{Kind: KindTime, Value: typed}
	default:
		return Cell{Kind: KindOther, Value: typed}
	}
}

func (c Cell) IsNull() bool {
	return c.Kind == KindNull
}

func (c Cell) String() string {
	switch c.Kind {
	case KindNull:
		return "NULL"
	case KindText:
		return c.Value.(string)
	case KindInteger:
		return strconv.FormatInt(c.Value.(int64), 10)
	case KindFloat:
		return strconv.FormatFloat(c.Value.(float64), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(c.Value.(bool))
	case KindTime:
		return c.Value.(time.Time).Format(time.RFC3339Nano)
	case KindBytes:
		return `x'` + hex.EncodeToString(c.Value.([]byte)) + `'`
	default:
		return fmt.Sprint(c.Value)
	}
}

// MarshalJSON emits the bare value; byte strings and unknown kinds are emitted
// in their text form.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindText, KindInteger, KindFloat, KindBool, KindTime:
		return json.Marshal(c.Value)
	default:
		return json.Marshal(c.String())
	}
}
