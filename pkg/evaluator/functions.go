package evaluator

import (
	"sort"
	"sync"

	"github.com/sandrolain/goirl/pkg/parser"
)

var (
	builtinFunctions     map[string]*Builtin
	builtinFunctionsOnce sync.Once
)

// initBuiltinFunctions initializes the builtin registry. Signatures are
// written in the type grammar of the parser and parsed once.
func initBuiltinFunctions() {
	builtinFunctionsOnce.Do(func() {
		table := []struct {
			name string
			sig  string
			fn   BuiltinFunc
		}{
			// Control
			{"nop", "->integer", fnNop},
			{"do", "e ?->?", fnDo},
			{"eval", "string->?", fnEval},
			{"evalrule", "string->?", fnEvalRule},
			{"applyAllRules", "e ? * f 0{integer string} => integer * f 1{integer string} => integer->?", fnApplyAllRules},
			{"errorcode", "e ?->integer", fnErrorCode},
			{"errormsg", "e ? * o string->integer", fnErrorMsg},
			{"let", "e 0 * e f 0 * e 1->1", fnLet},
			{"match", "e 0 * e (0 * 1)*->1", fnMatch},
			{"if", "e boolean * a ? * a ? * a ? * a ?->?", fnIf},
			{"ifExec", "e boolean * a ? * a ? * a ? * a ?->?", fnIfExec},
			{"if2", "e boolean * e 0 * e 0 * e ? * e ?->0", fnIf2},
			{"for", "e ? * e boolean * e ? * a ? * a ?->?", fnFor},
			{"forExec", "e ? * e boolean * e ? * a ? * a ?->?", fnFor},
			{"while", "e boolean * a ? * a ?->?", fnWhile},
			{"whileExec", "e boolean * a ? * a ?->?", fnWhile},
			{"foreach", "e f list 0 * a ? * a ?->?", fnForeach},
			{"forEachExec", "e f list 0 * a ? * a ?->?", fnForeach},
			{"foreach2", "forall X, e X * f list X * a ? * a ?->?", fnForeach2},
			{"break", "->integer", fnBreak},
			{"succeed", "->integer", fnSucceed},
			{"fail", "integer ?->integer", fnFail},
			{"failmsg", "integer * string->integer", fnFailMsg},
			{"cut", "->integer", fnCut},
			{"assign", "e 0 * e f 0->integer", fnAssign},
			{"assignStr", "e ? * e ?->integer", fnAssignStr},
			{"delayExec", "string * string * string->integer", fnDelayExec},
			{"remoteExec", "string * string * string * string->integer", fnRemoteExec},

			// Introspection and logging
			{"lmsg", "string->integer", fnLmsg},
			{"listvars", "->string", fnListVars},
			{"listcorerules", "->list string", listRules("core")},
			{"listapprules", "->list string", listRules("app")},
			{"listextrules", "->list string", listRules("ext")},
			{"type", "forall X, X->string", fnType},
			{"arity", "string->integer", fnArity},

			// Time
			{"time", "->time", fnTime},
			{"timestr", "time->string", fnTimeStr},
			{"datetime", "0{string integer double} * string ?->time", fnDatetime},
			{"timestrf", "time * string->string", fnTimeStrf},
			{"datetimef", "string * string->time", fnDatetimef},

			// Conversion
			{"str", "?->string", fnStr},
			{"double", "f 0{string double time}->double", fnDouble},
			{"int", "0{integer string double}->integer", fnInt},
			{"bool", "0{boolean integer string double}->boolean", fnBool},
			{"path", "string->path", fnPath},
			{"unspeced", "->?", fnUnspeced},

			// Lists
			{"list", "forall X, X*->list X", fnList},
			{"elem", "forall X, list X * integer->X", fnElem},
			{"setelem", "forall X, list X * integer * X->list X", fnSetElem},
			{"hd", "forall X, list X->X", fnHd},
			{"tl", "forall X, list X->list X", fnTl},
			{"cons", "forall X, X * list X->list X", fnCons},
			{"size", "forall X, list X->integer", fnSize},

			// Arithmetic
			{"+", "forall X in {integer double}, f X * f X->X", fnAdd},
			{"-", "forall X in {integer double}, f X * f X->X", fnSub},
			{"*", "forall X in {integer double}, f X * f X->X", fnMul},
			{"/", "forall X in {integer double}, f X * f X->?", fnDiv},
			{"%", "integer * integer->integer", fnMod},
			{"^", "f double * f double->double", fnPow},
			{"^^", "f double * f double->double", fnRoot},
			{"neg", "forall X in {integer double}, X->X", fnNeg},
			{"log", "f double->double", mathFunc("log")},
			{"exp", "f double->double", mathFunc("exp")},
			{"abs", "f double->double", mathFunc("abs")},
			{"floor", "f double->double", mathFunc("floor")},
			{"ceiling", "f double->double", mathFunc("ceiling")},
			{"max", "f double+->double", fnMax},
			{"min", "f double+->double", fnMin},
			{"average", "f double+->double", fnAverage},

			// Logic and comparison
			{"!", "boolean->boolean", fnNot},
			{"&&", "boolean * boolean->boolean", fnAnd},
			{"||", "boolean * boolean->boolean", fnOr},
			{"%%", "boolean * boolean->boolean", fnOr},
			{"==", "forall X in {integer double boolean string time path}, f X * f X->boolean", compareFunc("==")},
			{"!=", "forall X in {integer double boolean string time path}, f X * f X->boolean", compareFunc("!=")},
			{"<", "forall X in {integer double string time}, f X * f X->boolean", compareFunc("<")},
			{"<=", "forall X in {integer double string time}, f X * f X->boolean", compareFunc("<=")},
			{">", "forall X in {integer double string time}, f X * f X->boolean", compareFunc(">")},
			{">=", "forall X in {integer double string time}, f X * f X->boolean", compareFunc(">=")},

			// Strings
			{"++", "f string * f string->string", fnConcat},
			{"like", "string * string->boolean", likeFunc(false, false)},
			{"not like", "string * string->boolean", likeFunc(false, true)},
			{"like regex", "string * string->boolean", likeFunc(true, false)},
			{"not like regex", "string * string->boolean", likeFunc(true, true)},
			{"triml", "string * string->string", fnTriml},
			{"trimr", "string * string->string", fnTrimr},
			{"strlen", "string->integer", fnStrlen},
			{"substr", "string * integer * integer->string", fnSubstr},
			{"split", "string * string->list string", fnSplit},
			{"execCmdArg", "f string->string", fnExecCmdArg},
			{"writeLine", "string * ?->integer", writeFunc(true)},
			{"writeString", "string * ?->integer", writeFunc(false)},
			{"getstdout", "e ? * o string->integer", captureFunc(false)},
			{"getstderr", "e ? * o string->integer", captureFunc(true)},

			// Session and catalog
			{".", "forall X, `KeyValPair_PI` * expression X->string", fnDot},
			{"getValByKey", "`KeyValPair_PI` * string->string", fnGetValByKey},
			{"temporaryStorage", "->`KeyValPair_PI`", fnTemporaryStorage},
			{"getGlobalSessionId", "->string", fnGetGlobalSessionID},
			{"setGlobalSessionId", "string->integer", fnSetGlobalSessionID},
			{"query", "expression ? -> `GenQueryInp_PI` * `GenQueryOut_PI`", fnQuery},
			{"collection", "path -> `CollInpNew_PI`", fnCollection},
		}
		builtinFunctions = make(map[string]*Builtin, len(table))
		for _, d := range table {
			builtinFunctions[d.name] = &Builtin{Name: d.name, Sig: parser.MustParseFuncType(d.sig), Fn: d.fn}
		}
	})
}

func lookupBuiltin(name string) (*Builtin, bool) {
	initBuiltinFunctions()
	b, ok := builtinFunctions[name]
	return b, ok
}

// BuiltinNames returns the names of every builtin in sorted order.
func BuiltinNames() []string {
	initBuiltinFunctions()
	names := make([]string, 0, len(builtinFunctions))
	for n := range builtinFunctions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
