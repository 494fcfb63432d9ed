package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	// Configuration could not be loaded or was invalid
	ConfigFailureExitCode ExitCode = 70

	// Request outcomes
	RequestFailedExitCode    ExitCode = 80
	RequestCancelledExitCode ExitCode = 81
	RequestTimeoutExitCode   ExitCode = 82

	InterruptedExitCode ExitCode = 130
)
