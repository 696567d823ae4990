package evaluator

import (
	"strings"
	"time"

	"github.com/sandrolain/goirl/pkg/types"
)

func fnTime(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewDatetime(c.Eval.opts.Now().Unix()), nil
}

func fnTimeStr(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewString(time.Unix(args[0].Time, 0).UTC().Format(types.DatetimeLayout)), nil
}

// fnDatetime converts seconds or a time string. The optional second
// argument is a strftime format for the string.
func fnDatetime(c *CallContext, args []*types.Value) (*types.Value, error) {
	layout := ""
	if len(args) > 1 {
		layout = strftimeLayout(args[1].Str)
	}
	v, err := toDatetime(c.Region, args[0], layout)
	return converted(c, v, err)
}

func fnTimeStrf(c *CallContext, args []*types.Value) (*types.Value, error) {
	t := time.Unix(args[0].Time, 0).UTC()
	return c.Region.NewString(t.Format(strftimeLayout(args[1].Str))), nil
}

func fnDatetimef(c *CallContext, args []*types.Value) (*types.Value, error) {
	return fnDatetime(c, args)
}

var strftimeCodes = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'h': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'Z': "MST",
	'z': "-0700",
	'T': "15:04:05",
	'D': "01/02/06",
	'F': "2006-01-02",
	'%': "%",
}

// strftimeLayout converts a strftime format to a time layout. Unknown
// directives are kept as written.
func strftimeLayout(format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 == len(format) {
			sb.WriteByte(format[i])
			continue
		}
		i++
		if l, ok := strftimeCodes[format[i]]; ok {
			sb.WriteString(l)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}
	return sb.String()
}
