package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/itsneelabh/storefront/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The backend refused or could not be reached
	ExitCommandError = 2 // Bad input or configuration
)

// Error codes in JSON output
const (
	ErrCodeGeneric  = "E000"
	ErrCodeAuth     = "E001"
	ErrCodeNetwork  = "E002"
	ErrCodeRequest  = "E003"
	ErrCodeInput    = "E004"
	ErrCodeCheckout = "E005"
	ErrCodeConfig   = "E006"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON reports whether output is machine readable
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success prints data as JSON, or calls text to render it for humans.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer) error) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Fail prints err and returns it as an ExitError carrying the matching exit
// code.
func (f *OutputFormatter) Fail(err error) error {
	code, exit := classify(err)
	if f.JSON() {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error()},
		})
	} else {
		fmt.Fprintf(f.errWriter(), "Error [%s]: %v\n", code, err)
	}
	return &ExitError{Code: exit, Message: "command failed", Err: err}
}

// Notice prints a hint for humans; JSON output stays clean.
func (f *OutputFormatter) Notice(format string, args ...interface{}) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		return ErrCodeAuth, ExitFailure
	case core.IsNetworkError(err):
		return ErrCodeNetwork, ExitFailure
	case core.IsCheckoutPrecondition(err), errors.Is(err, core.ErrPaymentCancelled), errors.Is(err, core.ErrCheckoutInProgress):
		return ErrCodeCheckout, ExitFailure
	case errors.Is(err, core.ErrInvalidInput):
		return ErrCodeInput, ExitCommandError
	case core.IsConfigurationError(err):
		return ErrCodeConfig, ExitCommandError
	case core.IsClientError(err):
		return ErrCodeRequest, ExitFailure
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

var printer = message.NewPrinter(language.English)

// formatMoney renders an amount in rupees with grouping and two decimals
func formatMoney(amount float64) string {
	return printer.Sprintf("%s %.2f", currency.INR, amount)
}

// writeTable renders rows as aligned columns
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	writeRow(tw, header)
	for _, r := range rows {
		writeRow(tw, r)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}
