package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a rule engine status code. Codes share the host server's
// error space: 0 is success and every failure is negative.
type ErrorCode int

// Error codes used by the rule engine.
const (
	Success ErrorCode = 0

	SysInternalNullInputErr ErrorCode = -24000
	SysNotSupported         ErrorCode = -66000
	UnmatchedKeyOrIndex     ErrorCode = -313000
	UserParamTypeErr        ErrorCode = -323000

	// -1000000: rule engine core
	NoRuleFoundErr              ErrorCode = -1017000
	NoMoreRulesErr              ErrorCode = -1018000
	UnmatchedActionErr          ErrorCode = -1019000
	ActionArgCountMismatch      ErrorCode = -1021000
	InsufficientInputArgErr     ErrorCode = -1086000
	RetryWithoutRecoveryErr     ErrorCode = -1088000
	CutActionProcessedErr       ErrorCode = -1089000
	ActionFailedErr             ErrorCode = -1090000
	FailActionEncounteredErr    ErrorCode = -1091000
	UndefinedVariableMapErr     ErrorCode = -1094000
	NullValueErr                ErrorCode = -1095000
	NoRuleOrMsiFunctionFoundErr ErrorCode = -1097000
	DateFormatErr               ErrorCode = -1100000
	RuleFailedErr               ErrorCode = -1101000
	NoMicroserviceFoundErr      ErrorCode = -1102000
	InvalidRegexp               ErrorCode = -1103000
	BreakActionEncounteredErr   ErrorCode = -1108000

	// -1201000: parser
	ReParserError    ErrorCode = -1201000
	ReUnparsedSuffix ErrorCode = -1202000

	// -1205000: runtime
	ReRuntimeError             ErrorCode = -1205000
	ReDivisionByZero           ErrorCode = -1206000
	ReBufferOverflow           ErrorCode = -1207000
	ReUnsupportedOpOrType      ErrorCode = -1208000
	ReUnsupportedSessionVar    ErrorCode = -1209000
	ReUnableToWriteLocalVar    ErrorCode = -1210000
	ReUnableToReadLocalVar     ErrorCode = -1211000
	ReUnableToWriteSessionVar  ErrorCode = -1212000
	ReUnableToReadSessionVar   ErrorCode = -1213000
	ReUnableToWriteVar         ErrorCode = -1214000
	ReUnableToReadVar          ErrorCode = -1215000
	RePatternNotMatched        ErrorCode = -1216000
	ReUnknownError             ErrorCode = -1220000
	ReOutOfMemory              ErrorCode = -1221000
	ReUnsupportedAstNodeType   ErrorCode = -1224000
	ReUnsupportedSessionVarTyp ErrorCode = -1225000

	// -1230000: types
	ReTypeError             ErrorCode = -1230000
	ReFunctionRedefinition  ErrorCode = -1231000
	ReDynamicTypeError      ErrorCode = -1232000
	ReDynamicCoercionError  ErrorCode = -1233000
	RePackingError          ErrorCode = -1234000
)

var codeNames = map[ErrorCode]string{
	Success:                     "SUCCESS",
	SysInternalNullInputErr:     "SYS_INTERNAL_NULL_INPUT_ERR",
	SysNotSupported:             "SYS_NOT_SUPPORTED",
	UnmatchedKeyOrIndex:         "UNMATCHED_KEY_OR_INDEX",
	UserParamTypeErr:            "USER_PARAM_TYPE_ERR",
	NoRuleFoundErr:              "NO_RULE_FOUND_ERR",
	NoMoreRulesErr:              "NO_MORE_RULES_ERR",
	UnmatchedActionErr:          "UNMATCHED_ACTION_ERR",
	ActionArgCountMismatch:      "ACTION_ARG_COUNT_MISMATCH",
	InsufficientInputArgErr:     "INSUFFICIENT_INPUT_ARG_ERR",
	RetryWithoutRecoveryErr:     "RETRY_WITHOUT_RECOVERY_ERR",
	CutActionProcessedErr:       "CUT_ACTION_PROCESSED_ERR",
	ActionFailedErr:             "ACTION_FAILED_ERR",
	FailActionEncounteredErr:    "FAIL_ACTION_ENCOUNTERED_ERR",
	UndefinedVariableMapErr:     "UNDEFINED_VARIABLE_MAP_ERR",
	NullValueErr:                "NULL_VALUE_ERR",
	NoRuleOrMsiFunctionFoundErr: "NO_RULE_OR_MSI_FUNCTION_FOUND_ERR",
	DateFormatErr:               "DATE_FORMAT_ERR",
	RuleFailedErr:               "RULE_FAILED_ERR",
	NoMicroserviceFoundErr:      "NO_MICROSERVICE_FOUND_ERR",
	InvalidRegexp:               "INVALID_REGEXP",
	BreakActionEncounteredErr:   "BREAK_ACTION_ENCOUNTERED_ERR",
	ReParserError:               "RE_PARSER_ERROR",
	ReUnparsedSuffix:            "RE_UNPARSED_SUFFIX",
	ReRuntimeError:              "RE_RUNTIME_ERROR",
	ReDivisionByZero:            "RE_DIVISION_BY_ZERO",
	ReBufferOverflow:            "RE_BUFFER_OVERFLOW",
	ReUnsupportedOpOrType:       "RE_UNSUPPORTED_OP_OR_TYPE",
	ReUnsupportedSessionVar:     "RE_UNSUPPORTED_SESSION_VAR",
	ReUnableToWriteLocalVar:     "RE_UNABLE_TO_WRITE_LOCAL_VAR",
	ReUnableToReadLocalVar:      "RE_UNABLE_TO_READ_LOCAL_VAR",
	ReUnableToWriteSessionVar:   "RE_UNABLE_TO_WRITE_SESSION_VAR",
	ReUnableToReadSessionVar:    "RE_UNABLE_TO_READ_SESSION_VAR",
	ReUnableToWriteVar:          "RE_UNABLE_TO_WRITE_VAR",
	ReUnableToReadVar:           "RE_UNABLE_TO_READ_VAR",
	RePatternNotMatched:         "RE_PATTERN_NOT_MATCHED",
	ReUnknownError:              "RE_UNKNOWN_ERROR",
	ReOutOfMemory:               "RE_OUT_OF_MEMORY",
	ReUnsupportedAstNodeType:    "RE_UNSUPPORTED_AST_NODE_TYPE",
	ReUnsupportedSessionVarTyp:  "RE_UNSUPPORTED_SESSION_VAR_TYPE",
	ReTypeError:                 "RE_TYPE_ERROR",
	ReFunctionRedefinition:      "RE_FUNCTION_REDEFINITION",
	ReDynamicTypeError:          "RE_DYNAMIC_TYPE_ERROR",
	ReDynamicCoercionError:      "RE_DYNAMIC_COERCION_ERROR",
	RePackingError:              "RE_PACKING_ERROR",
}

// String returns the symbolic name of the code, or its number when unknown.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%d", int(c))
}

// Error represents a structured rule engine error.
type Error struct {
	Code     ErrorCode
	Message  string
	Position int    // byte offset in Base, -1 when unknown
	Base     string // rule base or source name the position refers to
	Err      error
}

// NewError creates a new rule engine error without position information.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Position: -1,
	}
}

// Errorf creates a new rule engine error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Position >= 0 {
		if e.Base != "" {
			return fmt.Sprintf("%s at %s:%d: %s", e.Code, e.Base, e.Position, e.Message)
		}
		return fmt.Sprintf("%s at position %d: %s", e.Code, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// At attaches a source position to the error.
func (e *Error) At(base string, position int) *Error {
	e.Base = base
	e.Position = position
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// CodeOf extracts the status code carried by err. A nil error is Success
// and an error that does not carry a code is ReUnknownError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ReUnknownError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ErrorMessage is one entry of an ErrorList.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
}

// ErrorList accumulates human readable context while an error propagates.
// Entries are only appended; Clear resets the list between independent
// top-level invocations.
type ErrorList struct {
	msgs []ErrorMessage
}

// Add appends a message.
func (l *ErrorList) Add(code ErrorCode, message string) {
	if l == nil {
		return
	}
	l.msgs = append(l.msgs, ErrorMessage{Code: code, Message: message})
}

// Addf appends a formatted message.
func (l *ErrorList) Addf(code ErrorCode, format string, args ...any) {
	l.Add(code, fmt.Sprintf(format, args...))
}

// AddError appends the message carried by err.
func (l *ErrorList) AddError(err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		l.Add(e.Code, e.Error())
		return
	}
	l.Add(ReUnknownError, err.Error())
}

// Messages returns the accumulated messages in order.
func (l *ErrorList) Messages() []ErrorMessage {
	if l == nil {
		return nil
	}
	return l.msgs
}

// Len returns the number of accumulated messages.
func (l *ErrorList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.msgs)
}

// Clear drops all messages.
func (l *ErrorList) Clear() {
	if l != nil {
		l.msgs = l.msgs[:0]
	}
}

// String renders the list one message per line, most recent last.
func (l *ErrorList) String() string {
	var sb strings.Builder
	for i, m := range l.Messages() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "Level %d: %s", i, m.Message)
	}
	return sb.String()
}
